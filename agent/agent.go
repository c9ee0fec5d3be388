package agent

import (
	"strings"
)

// NeverSpoken is the LastSpokenTurn sentinel for an agent that has not taken a turn yet.
const NeverSpoken = -1

// UserID is the relationship target used for the human participant.
const UserID = "User"

const (
	// MaxInterests caps how many interest phrases an agent keeps.
	MaxInterests = 9

	DefaultEmotionalState = 5
	MinEmotionalState     = 1
	MaxEmotionalState     = 10
)

// DefaultInterests is used when a personality carries no usable interests.
var DefaultInterests = []string{"talking about life", "helping others", "sharing thoughts"}

// Personality is the resolved persona of an agent. Every field has a value after
// ResolvePersonality; nothing is looked up lazily at use time.
type Personality struct {
	Traits        string
	Backstory     string
	Interests     []string
	Attitude      string
	Tone          string
	Appearance    string
	Topic         string
	Role          string
	Introversion  float64
	Assertiveness float64
}

// Agent is one synthetic participant of a session.
type Agent struct {
	Name        string
	Personality Personality

	// InterestVectors[i] is the embedding of Personality.Interests[i]. A nil entry
	// means the embedding could not be produced at creation time.
	InterestVectors [][]float32

	Relationships  map[string]*Relationship
	LastSpokenTurn int
	EmotionalState int
}

// New creates an agent with no relationships and no speaking history.
func New(name string, p Personality, vectors [][]float32) *Agent {
	return &Agent{
		Name:            name,
		Personality:     p,
		InterestVectors: vectors,
		Relationships:   make(map[string]*Relationship),
		LastSpokenTurn:  NeverSpoken,
		EmotionalState:  DefaultEmotionalState,
	}
}

func (a *Agent) Traits() string { return a.Personality.Traits }

// SpeakDrive is (1 - introversion) + assertiveness, in [0, 2].
func (a *Agent) SpeakDrive() float64 {
	return (1 - a.Personality.Introversion) + a.Personality.Assertiveness
}

// Relationship returns the agent's relationship toward target, creating it with
// defaults on first reference.
func (a *Agent) Relationship(target string) *Relationship {
	rel, ok := a.Relationships[target]
	if !ok {
		rel = NewRelationship()
		a.Relationships[target] = rel
	}
	return rel
}

// PeekRelationship returns the relationship values toward target without
// creating an entry. Unknown targets report the defaults.
func (a *Agent) PeekRelationship(target string) Relationship {
	if rel, ok := a.Relationships[target]; ok {
		return *rel
	}
	return *NewRelationship()
}

// MarkSpoken records that the agent spoke at turn. LastSpokenTurn never moves backwards.
func (a *Agent) MarkSpoken(turn int) {
	if turn > a.LastSpokenTurn {
		a.LastSpokenTurn = turn
	}
}

// SetEmotionalState stores value clamped to [1, 10].
func (a *Agent) SetEmotionalState(value int) {
	a.EmotionalState = ClampEmotionalState(value)
}

// ClampEmotionalState limits value to [MinEmotionalState, MaxEmotionalState].
func ClampEmotionalState(value int) int {
	switch {
	case value < MinEmotionalState:
		return MinEmotionalState
	case value > MaxEmotionalState:
		return MaxEmotionalState
	}
	return value
}

// MentionedIn reports whether the agent's name occurs in text, ignoring case.
func (a *Agent) MentionedIn(text string) bool {
	if a.Name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(a.Name))
}

// ParseInterests splits a comma separated list, dropping blanks and keeping at
// most MaxInterests entries.
func ParseInterests(list string) []string {
	var interests []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		interests = append(interests, part)
		if len(interests) == MaxInterests {
			break
		}
	}
	return interests
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
