package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"roundtable/config"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// contentModels is the subset of genai.Models the client uses.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Client wraps one Gemini client shared by every generation, embedding and
// analysis call. Calls are throttled by a token bucket.
type Client struct {
	models  contentModels
	cfg     config.GeminiConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Gemini-backed client.
func New(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newClient(client.Models, cfg, logger), nil
}

func newClient(models contentModels, cfg config.GeminiConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		models:  models,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(zap.String("component", "gemini")),
	}
}

// generate sends contents to the text model and returns the trimmed answer.
func (c *Client) generate(ctx context.Context, contents []*genai.Content, genConfig *genai.GenerateContentConfig) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := c.models.GenerateContent(ctx, c.cfg.Model, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *Client) generateText(ctx context.Context, prompt string, genConfig *genai.GenerateContentConfig) (string, error) {
	return c.generate(ctx, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, genConfig)
}

// jsonConfig asks the model for a JSON document.
func jsonConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
}

// replyConfig carries the sampling settings used for in-character replies.
func (c *Client) replyConfig() *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	}
	if c.cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(c.cfg.Temperature)
	}
	if c.cfg.TopP > 0 {
		gc.TopP = genai.Ptr(c.cfg.TopP)
	}
	if c.cfg.TopK > 0 {
		gc.TopK = genai.Ptr(c.cfg.TopK)
	}
	return gc
}
