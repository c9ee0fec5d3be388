package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"roundtable/agent"
	"roundtable/conversation"
	"roundtable/models"
	"roundtable/prompts"
)

// personalityAttempts bounds how often a malformed profile is regenerated.
const personalityAttempts = 3

var (
	jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)
	yesNoRegex      = regexp.MustCompile(`(?i)\b(yes|no)\b`)
)

// AnalyzeEmotion rates how text affects agentName on the 1-10 scale.
func (c *Client) AnalyzeEmotion(ctx context.Context, agentName, text string) (conversation.EmotionReading, error) {
	raw, err := c.generateText(ctx, prompts.EmotionPrompt(agentName, agent.DefaultEmotionalState, text), jsonConfig())
	if err != nil {
		return conversation.EmotionReading{}, fmt.Errorf("emotion analysis: %w", err)
	}
	reading, err := ParseEmotionReading(raw)
	if err != nil {
		c.logger.Warn("unparsable emotion analysis", zap.String("agent", agentName), zap.String("response", raw))
		return conversation.EmotionReading{}, err
	}
	return reading, nil
}

// ParseEmotionReading extracts the first JSON object from raw. The value may be
// a number or a numeric string and is rounded and clamped to [1, 10].
func ParseEmotionReading(raw string) (conversation.EmotionReading, error) {
	obj := jsonObjectRegex.FindString(raw)
	if obj == "" {
		return conversation.EmotionReading{}, fmt.Errorf("no JSON object in emotion response")
	}
	var doc struct {
		Value       any    `json:"value"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return conversation.EmotionReading{}, fmt.Errorf("failed to parse emotion response: %w", err)
	}

	var value float64
	switch v := doc.Value.(type) {
	case float64:
		value = v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return conversation.EmotionReading{}, fmt.Errorf("emotion value %q is not a number", v)
		}
		value = f
	default:
		return conversation.EmotionReading{}, fmt.Errorf("emotion value missing")
	}

	return conversation.EmotionReading{
		Value:       agent.ClampEmotionalState(int(math.Round(value))),
		Description: strings.TrimSpace(doc.Description),
		Reason:      strings.TrimSpace(doc.Reason),
	}, nil
}

// IsImportant asks the model whether text is worth long-term storage.
func (c *Client) IsImportant(ctx context.Context, text string) (bool, error) {
	raw, err := c.generateText(ctx, prompts.ImportancePrompt(text), nil)
	if err != nil {
		return false, fmt.Errorf("importance check: %w", err)
	}
	return ParseYesNo(raw), nil
}

// ParseYesNo reports whether the first yes/no word in raw is "yes".
func ParseYesNo(raw string) bool {
	m := yesNoRegex.FindStringSubmatch(raw)
	return m != nil && strings.EqualFold(m[1], "yes")
}

// GeneratePersonality asks for a profile for the character in cast slot index,
// retrying incomplete or malformed answers.
func (c *Client) GeneratePersonality(ctx context.Context, ch models.Character, index int) (models.PersonalityProfile, error) {
	var lastErr error
	for attempt := 0; attempt < personalityAttempts; attempt++ {
		raw, err := c.generateText(ctx, prompts.PersonalityPrompt(ch, index, attempt), jsonConfig())
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		profile, err := ParsePersonality(raw)
		if err != nil {
			lastErr = err
			c.logger.Warn("personality attempt rejected",
				zap.String("character", ch.Name),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		return profile, nil
	}
	return models.PersonalityProfile{}, fmt.Errorf("personality for %s: %w", ch.Name, lastErr)
}

// ParsePersonality decodes a profile, tolerating code fences and surrounding
// prose, and rejects profiles with missing fields.
func ParsePersonality(raw string) (models.PersonalityProfile, error) {
	obj := jsonObjectRegex.FindString(raw)
	if obj == "" {
		return models.PersonalityProfile{}, fmt.Errorf("no JSON object in personality response")
	}
	var p models.PersonalityProfile
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return models.PersonalityProfile{}, fmt.Errorf("failed to parse personality: %w", err)
	}
	if !p.Complete() {
		return models.PersonalityProfile{}, fmt.Errorf("personality is missing fields")
	}
	return p, nil
}
