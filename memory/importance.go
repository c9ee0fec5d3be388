package memory

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"roundtable/conversation"
)

// importantPatterns flag self-disclosure worth keeping long term.
var importantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is\b`),
	regexp.MustCompile(`(?i)\bi(?: am|'m) (?:a|an|from|allergic)\b`),
	regexp.MustCompile(`(?i)\bi (?:live|work|study|grew up)\b`),
	regexp.MustCompile(`(?i)\bmy (?:wife|husband|partner|son|daughter|mom|mother|dad|father|sister|brother|friend|boss|dog|cat)\b`),
	regexp.MustCompile(`(?i)\b(?:birthday|anniversary|wedding|funeral|diagnos\w*)\b`),
	regexp.MustCompile(`(?i)\bmy favou?rite\b`),
	regexp.MustCompile(`(?i)\bi (?:love|hate|can't stand)\b`),
	regexp.MustCompile(`(?i)\b(?:remember|don't forget)\b`),
	regexp.MustCompile(`(?i)\bi(?: will|'ll| am going to|'m going to| plan to| promise)\b`),
}

// HeuristicImportance judges importance from patterns and defers to an optional
// model-backed judge when no pattern matches.
type HeuristicImportance struct {
	fallback conversation.ImportanceJudge
	logger   *zap.Logger
}

func NewHeuristicImportance(fallback conversation.ImportanceJudge, logger *zap.Logger) *HeuristicImportance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeuristicImportance{fallback: fallback, logger: logger.With(zap.String("component", "importance"))}
}

// MatchesImportantPattern reports whether text contains a self-disclosure pattern.
func MatchesImportantPattern(text string) bool {
	for _, p := range importantPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func (h *HeuristicImportance) IsImportant(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	if MatchesImportantPattern(text) {
		return true, nil
	}
	if h.fallback == nil {
		return false, nil
	}
	important, err := h.fallback.IsImportant(ctx, text)
	if err != nil {
		h.logger.Warn("importance fallback failed", zap.Error(err))
		return false, nil
	}
	return important, nil
}
