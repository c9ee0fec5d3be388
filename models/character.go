package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Character is a cast slot from configuration: who the agent is before a
// personality is generated for them.
type Character struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Topic       string `yaml:"topic" json:"topic"`
}

// DefaultCharacters is the built-in cast.
func DefaultCharacters() []Character {
	return []Character{
		{Name: "Alice", Description: "Team Leader", Topic: "Leadership and management"},
		{Name: "Bob", Description: "Engineer", Topic: "Engineering and problem-solving"},
		{Name: "Charlie", Description: "Designer", Topic: "Design and creativity"},
		{Name: "Diana", Description: "Analyst", Topic: "Data analysis and insights"},
		{Name: "Eve", Description: "Strategist", Topic: "Strategic planning and execution"},
	}
}

// PersonalityProfile is the JSON document a generator returns for a character.
type PersonalityProfile struct {
	Traits           string    `json:"traits"`
	Backstory        string    `json:"backstory"`
	InterestsHobbies string    `json:"interests_hobbies"`
	Attitude         string    `json:"attitude"`
	Tone             string    `json:"tone"`
	Appearance       string    `json:"appearance"`
	Introversion     UnitFloat `json:"introversion"`
	Assertiveness    UnitFloat `json:"assertiveness"`
}

// Complete reports whether every textual field is present.
func (p PersonalityProfile) Complete() bool {
	for _, v := range []string{p.Traits, p.Backstory, p.InterestsHobbies, p.Attitude, p.Tone, p.Appearance} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return p.Introversion.Set && p.Assertiveness.Set
}

// FallbackProfile is used when generation keeps failing.
func FallbackProfile(topic string) PersonalityProfile {
	return PersonalityProfile{
		Traits:           "thoughtful, unique",
		Backstory:        "Shaped by " + topic,
		InterestsHobbies: "reading, art",
		Attitude:         "calm",
		Tone:             "gentle",
		Appearance:       "average height, casual attire",
		Introversion:     UnitFloat{Value: 0.5, Set: true},
		Assertiveness:    UnitFloat{Value: 0.5, Set: true},
	}
}

// UnitFloat decodes a number in [0, 1] that generators emit either as a JSON
// number or as a numeric string. Out of range values are clamped; unparsable
// values leave Set false.
type UnitFloat struct {
	Value float64
	Set   bool
}

func (u *UnitFloat) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var v float64
	switch t := raw.(type) {
	case float64:
		v = t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			*u = UnitFloat{}
			return nil
		}
		v = f
	default:
		*u = UnitFloat{}
		return nil
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	*u = UnitFloat{Value: v, Set: true}
	return nil
}

func (u UnitFloat) MarshalJSON() ([]byte, error) {
	if !u.Set {
		return []byte("null"), nil
	}
	return json.Marshal(u.Value)
}

// Or returns the value, or def when unset.
func (u UnitFloat) Or(def float64) float64 {
	if !u.Set {
		return def
	}
	return u.Value
}
