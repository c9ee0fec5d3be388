package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"roundtable/prompts"
)

// GenerateReply writes one in-character reply. The emotion-update marker is
// left in place for the caller to parse.
func (c *Client) GenerateReply(ctx context.Context, rc prompts.ReplyContext) (string, error) {
	reply, err := c.generateText(ctx, prompts.BuildReplyPrompt(rc), c.replyConfig())
	if err != nil {
		return "", fmt.Errorf("reply for %s: %w", rc.Name, err)
	}
	c.logger.Debug("reply generated", zap.String("agent", rc.Name), zap.Int("chars", len(reply)))
	return reply, nil
}

// Embed returns the semantic-similarity embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	result, err := c.models.EmbedContent(ctx, c.cfg.EmbeddingModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// Feedback writes short coaching notes on one exchange.
func (c *Client) Feedback(ctx context.Context, userText, speaker, reply string) (string, error) {
	return c.generateText(ctx, prompts.CoachPrompt(userText, speaker, reply), nil)
}
