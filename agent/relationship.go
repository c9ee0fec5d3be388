package agent

import (
	"strings"
)

const (
	DefaultBond  = 0.5
	DefaultTrust = 0.5
)

// Relationship is one agent's directed view of a target.
type Relationship struct {
	Bond  float64 `json:"bond" bson:"bond"`
	Trust float64 `json:"trust" bson:"trust"`
}

func NewRelationship() *Relationship {
	return &Relationship{Bond: DefaultBond, Trust: DefaultTrust}
}

// Adjust adds the deltas and saturates both values at [0, 1].
func (r *Relationship) Adjust(bond, trust float64) {
	r.Bond = Clamp01(r.Bond + bond)
	r.Trust = Clamp01(r.Trust + trust)
}

// Delta is a bond/trust change.
type Delta struct {
	Bond  float64
	Trust float64
}

var (
	AffirmativeKeywords = []string{"thank", "agree", "yes", "right"}
	NegativeKeywords    = []string{"no", "disagree", "annoy", "hate"}

	AffirmativeDelta = Delta{Bond: 0.05, Trust: 0.03}
	NegativeDelta    = Delta{Bond: -0.05, Trust: -0.05}
)

// EmotionDeltas maps a declared emotion to its relationship effect. Labels not
// in the table have no effect.
var EmotionDeltas = map[string]Delta{
	"sad":     {Bond: 0.10, Trust: 0.05},
	"angry":   {Bond: -0.10},
	"happy":   {Bond: 0.07, Trust: 0.07},
	"fearful": {Trust: -0.05},
}

// ContainsAny reports whether lowered text contains any of the keywords.
func ContainsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// UpdateRelationship applies the lexical scan of text and then the emotion rule
// to a's relationship toward target. Only that one relationship changes.
func UpdateRelationship(a *Agent, target, text, emotion string) {
	rel := a.Relationship(target)

	if ContainsAny(text, AffirmativeKeywords) {
		rel.Adjust(AffirmativeDelta.Bond, AffirmativeDelta.Trust)
	}
	if ContainsAny(text, NegativeKeywords) {
		rel.Adjust(NegativeDelta.Bond, NegativeDelta.Trust)
	}

	if d, ok := EmotionDeltas[strings.ToLower(strings.TrimSpace(emotion))]; ok {
		rel.Adjust(d.Bond, d.Trust)
	}
}
