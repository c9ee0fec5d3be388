package prompts

import (
	"fmt"

	"roundtable/models"
)

var (
	diversityDirections = []string{
		"extremely introverted and analytical",
		"highly extroverted and spontaneous",
		"eccentric and unconventional",
		"traditional and disciplined",
	}
	culturalBackgrounds = []string{"East Asian", "South Asian", "Middle Eastern", "Latin American"}
	ageRanges           = []string{"young adult (20-29)", "early thirties", "fifties", "seventies"}
)

// PersonalityPrompt asks for a JSON personality profile for the cast slot at
// index. The first slot is always a rude, self-centered character so the cast
// has friction; the rest rotate through diversity directions.
func PersonalityPrompt(c models.Character, index, attempt int) string {
	direction := diversityDirections[(index+attempt)%len(diversityDirections)]
	culture := culturalBackgrounds[(index+attempt+3)%len(culturalBackgrounds)]
	age := ageRanges[(index+attempt+5)%len(ageRanges)]

	traitsRule := "a string of 4-5 comma-separated personality traits"
	attitudeRule := "describe their outlook on life"
	toneRule := "describe their speaking style"
	if index == 0 && attempt == 0 {
		direction = "rude, blunt, arrogant, self-centered"
		traitsRule += ", must include rude, blunt, arrogant, self-centered"
		attitudeRule = "doesn't care about others' opinions, focused solely on personal gain"
		toneRule = "harsh and unapologetically direct"
	}

	return fmt.Sprintf(`Generate only a valid JSON object for a unique personality profile of a person named %q who works as a %s and has experience with %q.
The personality must be: %s
Cultural background: %s
Age range: %s
The JSON object must have exactly these fields:
- "traits": %s
- "backstory": a string describing a specific personal experience related to %s
- "interests_hobbies": a string of 4-5 comma-separated hobbies or interests
- "attitude": %s
- "tone": %s
- "appearance": a string describing their physical appearance, including age and cultural elements
- "introversion": a number between 0.0 and 1.0
- "assertiveness": a number between 0.0 and 1.0
Respond with the JSON object only.`,
		c.Name, c.Description, c.Topic,
		direction, culture, age,
		traitsRule, c.Topic, attitudeRule, toneRule)
}

// EmotionPrompt asks for a 1-10 emotional rating of text as JSON.
func EmotionPrompt(agentName string, previous int, text string) string {
	return fmt.Sprintf(`Analyze the emotional tone of the latest sentence as it affects %s, whose current emotional state is %d on a 1-10 scale.
Respond ONLY in JSON format like this:
{
  "value": 5,
  "description": "calm",
  "reason": "brief explanation"
}
"value" is an integer from 1 (sad) to 10 (joyful).

Latest sentence:
%q`, agentName, previous, text)
}

// CoachPrompt asks for short feedback on one exchange.
func CoachPrompt(userText, speaker, reply string) string {
	return fmt.Sprintf(`As a coach, provide brief feedback on the following conversation:
User: %s
%s: %s

Provide 2-3 bullet points of constructive feedback or suggestions.
Keep it concise and actionable.`, userText, speaker, reply)
}

// ImportancePrompt asks whether text is worth remembering long term.
func ImportancePrompt(text string) string {
	return fmt.Sprintf(`Decide whether the following message contains something worth remembering about the speaker long term: personal facts, preferences, plans, commitments, or strong feelings.
Answer with only "yes" or "no".

Message:
%q`, text)
}

const TranscriptionPrompt = "Write the exact words used in the audio."

// AcousticEmotions is the label set for voice emotion classification.
var AcousticEmotions = []string{"neutral", "happy", "sad", "angry", "fearful", "surprised", "disgusted", "calm"}

const AcousticEmotionPrompt = `Analyze the speaker's tone, pace, and intonation in this audio.
Choose the most likely emotion from this list: neutral, happy, sad, angry, fearful, surprised, disgusted, calm.
Respond with only the emotion word, nothing else.`
