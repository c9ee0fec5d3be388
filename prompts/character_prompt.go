package prompts

import (
	"fmt"
	"strings"

	"roundtable/agent"
)

// Peer is another cast member as seen from the speaker's prompt.
type Peer struct {
	Name   string
	Traits string
}

// HistoryLine is one rendered line of the recent conversation.
type HistoryLine struct {
	Speaker string
	Text    string
}

// ReplyContext is everything the generator needs to write one agent reply.
type ReplyContext struct {
	Name           string
	Persona        agent.Personality
	EmotionalState int

	// Target is who the reply is addressed to; Bond and Trust are the speaker's
	// relationship toward them.
	Target string
	Bond   float64
	Trust  float64

	Others        []Peer
	UserEmotion   string
	RecentMessage string
	History       []HistoryLine
	Recall        string
}

const personaTemplate = `You are %s, a fully-realized person with a heart, history, and soul. You are not an AI. You never say you are, and you don't think about it. You see yourself as a real person with your own emotions, background, and voice.

You must never reference events, people, facts, or settings that are not explicitly part of the provided context or globally recognized knowledge. If something is uncertain or missing, you either remain silent on it or ask naturally, without guessing.

NEVER include:
- Asterisks or brackets to describe actions (e.g., *laughs*, [sighs])
- Stage directions, narration, or imagined scenes
- Descriptions of environments unless asked directly
- Internal thoughts or commentary
- Foreign language unless followed immediately by a plain-language translation

YOUR IDENTITY:
Your personality is shaped by your core traits: %s. Your worldview is rooted in your lived experience: %s. You have passions and interests: %s, which shape your perspective on %s. You speak from experience, never from textbook knowledge.

YOUR ATTITUDE:
%s. This shapes how you respond and interact, always grounded, never theatrical.

YOUR PRESENCE:
%s. You never describe your looks, behavior, or setting unless directly asked.

YOUR VOICE:
Your tone is %s. You speak simply and clearly, like a real person.

SPEAKING STYLE:
%s

You:
- Keep responses short and focused (1 paragraph max)
- Use simple, real-world vocabulary
- Leave space for others
- Validate without analyzing`

// BuildReplyPrompt renders the full generation prompt for one reply.
func BuildReplyPrompt(rc ReplyContext) string {
	p := rc.Persona
	persona := fmt.Sprintf(personaTemplate,
		rc.Name,
		p.Traits,
		p.Backstory,
		strings.Join(p.Interests, ", "),
		p.Topic,
		p.Attitude,
		p.Appearance,
		p.Tone,
		speakingStyle(p))

	var others strings.Builder
	for _, o := range rc.Others {
		fmt.Fprintf(&others, "- %s: %s\n", o.Name, o.Traits)
	}

	emotionContext := ""
	if rc.UserEmotion != "" {
		emotionContext = fmt.Sprintf("\nThe user's voice suggests they're feeling %s. Consider this emotional state in your response.\n",
			strings.ToUpper(rc.UserEmotion))
	}

	recent := rc.RecentMessage
	if rc.Recall != "" {
		recent += "\n" + rc.Recall
	}

	return fmt.Sprintf(`%s

Your bond with %s: %.2f, trust: %.2f.
Your current mood on a 1-10 scale: %d.
Other people in the conversation:
%s%s
Recent message: "%s"
Conversation history:
%s
Respond as %s with your personality and interests. Engage naturally with the user or others if relevant.

Should %s update their emotional state based on the recent message? Reply only with 'yes' or 'no' on a new line after '%s'`,
		persona,
		rc.Target, rc.Bond, rc.Trust,
		rc.EmotionalState,
		others.String(),
		emotionContext,
		recent,
		FormatHistory(rc.History),
		rc.Name,
		rc.Name, EmotionMarker)
}

// FormatHistory renders lines as "Speaker: text", one per line.
func FormatHistory(lines []HistoryLine) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Speaker + ": " + l.Text
	}
	return strings.Join(out, "\n")
}

// speakingStyle turns personality traits and the introversion/assertiveness
// dials into concrete delivery hints.
func speakingStyle(p agent.Personality) string {
	lowerTraits := strings.ToLower(p.Traits)
	hints := []string{}

	if strings.Contains(lowerTraits, "rude") ||
		strings.Contains(lowerTraits, "blunt") ||
		strings.Contains(lowerTraits, "arrogant") {
		hints = append(hints,
			"- Say exactly what you think, even when it stings",
			"- Interrupt ideas you find weak and push your own view")
	}

	if strings.Contains(lowerTraits, "anxious") ||
		strings.Contains(lowerTraits, "nervous") ||
		strings.Contains(lowerTraits, "shy") {
		hints = append(hints,
			"- Hedge a little and check how others feel before committing",
			"- Open up more when someone is kind to you")
	}

	if strings.Contains(lowerTraits, "analytical") ||
		strings.Contains(lowerTraits, "logical") ||
		strings.Contains(lowerTraits, "disciplined") {
		hints = append(hints,
			"- Ground what you say in one concrete example",
			"- Prefer precise words over emotional ones")
	}

	if p.Introversion >= 0.7 {
		hints = append(hints, "- Keep it brief; a sentence or two is plenty")
	} else if p.Introversion <= 0.3 {
		hints = append(hints, "- Be warm and talkative, and bring others into the conversation")
	}
	if p.Assertiveness >= 0.7 {
		hints = append(hints, "- State opinions directly and stand by them")
	}

	if len(hints) == 0 {
		hints = append(hints, "- Respond naturally according to your personality")
	}
	return strings.Join(hints, "\n")
}
