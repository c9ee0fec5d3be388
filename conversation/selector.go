package conversation

import (
	"context"
	"strings"

	"roundtable/agent"
)

// SelectReason says why a speaker was chosen.
type SelectReason string

const (
	ReasonAddressed SelectReason = "addressed"
	ReasonScored    SelectReason = "scored"
)

// Selection is the outcome of speaker selection. Agent is nil when nobody is
// eligible.
type Selection struct {
	Agent  *agent.Agent
	Reason SelectReason
	Scores map[string]float64
}

// Selector picks the next speaker. The last speaker is never selected, not even
// when addressed by name.
type Selector struct {
	scorer *Scorer
}

func NewSelector(scorer *Scorer) *Selector {
	return &Selector{scorer: scorer}
}

// DetectAddressed returns the first candidate, in order, whose name appears in
// text, skipping exclude.
func DetectAddressed(text string, candidates []*agent.Agent, exclude string) *agent.Agent {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for _, a := range candidates {
		if strings.EqualFold(a.Name, exclude) {
			continue
		}
		if a.MentionedIn(text) {
			return a
		}
	}
	return nil
}

// Select chooses among candidates (in registry order) who responds to lastText.
func (s *Selector) Select(ctx context.Context, lastSpeaker, lastText string, candidates []*agent.Agent, turn int) Selection {
	if a := DetectAddressed(lastText, candidates, lastSpeaker); a != nil {
		return Selection{Agent: a, Reason: ReasonAddressed}
	}

	var vec []float32
	if strings.TrimSpace(lastText) != "" {
		vec = s.scorer.Embed(ctx, lastText)
	}

	sel := Selection{Reason: ReasonScored, Scores: make(map[string]float64, len(candidates))}
	best := 0.0
	for _, a := range candidates {
		if strings.EqualFold(a.Name, lastSpeaker) {
			continue
		}
		score := 0.0
		if strings.TrimSpace(lastText) != "" {
			score = s.scorer.scoreVector(a, lastSpeaker, vec, turn)
		}
		sel.Scores[a.Name] = score
		if sel.Agent == nil || score > best {
			sel.Agent, best = a, score
		}
	}
	return sel
}
