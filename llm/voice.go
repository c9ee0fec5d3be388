package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"roundtable/prompts"
)

// Transcribe returns the words spoken in audio.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	text, err := c.generate(ctx, audioContents(prompts.TranscriptionPrompt, audio, mimeType), nil)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return text, nil
}

// ClassifyEmotion labels the speaker's tone with one of prompts.AcousticEmotions.
func (c *Client) ClassifyEmotion(ctx context.Context, audio []byte, mimeType string) (string, error) {
	raw, err := c.generate(ctx, audioContents(prompts.AcousticEmotionPrompt, audio, mimeType), nil)
	if err != nil {
		return "", fmt.Errorf("acoustic emotion: %w", err)
	}
	return NormalizeEmotion(raw), nil
}

// NormalizeEmotion maps a free-form answer onto the known emotion labels,
// falling back to "neutral".
func NormalizeEmotion(raw string) string {
	lower := strings.ToLower(raw)
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return r < 'a' || r > 'z'
	}) {
		for _, e := range prompts.AcousticEmotions {
			if word == e {
				return e
			}
		}
	}
	return "neutral"
}

func audioContents(prompt string, audio []byte, mimeType string) []*genai.Content {
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(audio, mimeType),
	}, genai.RoleUser)}
}
