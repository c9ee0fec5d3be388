package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

// EmotionMarker is the line prefix a generated reply uses to request an
// emotion update for the speaking agent.
const EmotionMarker = "EMOTION_UPDATE:"

var (
	emotionMarkerRegex = regexp.MustCompile(`(?i)EMOTION_UPDATE:[\s*_]*(yes|no)\b`)
	markerLineRegex    = regexp.MustCompile(`(?im)^[ \t*_]*EMOTION_UPDATE:.*$`)
	inlineMarkerRegex  = regexp.MustCompile(`(?i)[ \t*_]*EMOTION_UPDATE:`)
)

// ParseEmotionMarker strips the emotion-update marker from reply and reports
// whether it asked for an update.
func ParseEmotionMarker(reply string) (string, bool) {
	update := false
	if m := emotionMarkerRegex.FindStringSubmatch(reply); m != nil {
		update = strings.EqualFold(m[1], "yes")
	}
	clean := markerLineRegex.ReplaceAllString(reply, "")
	// A marker left inline, after the reply text on the same line.
	if loc := inlineMarkerRegex.FindStringIndex(clean); loc != nil {
		clean = clean[:loc[0]]
	}
	return strings.TrimSpace(clean), update
}

// Nudge is the fixed line an idle agent uses to prompt the user.
func Nudge(name string) string {
	return fmt.Sprintf("%s glances over, waiting for you to say something.", name)
}
