// Package llm wraps the OpenAI-backed language model behind the two
// capabilities the rest of the service needs, text embedding and chat
// generation, with client-side rate limiting on the embedding path.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Config holds the model selection for one client.
type Config struct {
	APIKey         string
	EmbeddingModel string
	ChatModel      string

	// EmbedRPS caps embedding calls per second. Zero means a conservative
	// default suited to bulk reindexing.
	EmbedRPS float64
}

const defaultEmbedRPS = 5

// Client is an OpenAI-backed embedder and chat model.
type Client struct {
	llm     *openai.LLM
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client for the configured models.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.EmbedRPS <= 0 {
		cfg.EmbedRPS = defaultEmbedRPS
	}
	if logger == nil {
		logger = slog.Default()
	}

	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.ChatModel),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}

	return &Client{
		llm:     model,
		limiter: rate.NewLimiter(rate.Limit(cfg.EmbedRPS), 1),
		logger:  logger,
	}, nil
}

// EmbedText embeds one text, waiting for rate-limiter headroom first.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	vectors, err := c.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return vectors[0], nil
}

// Model exposes the underlying chat model for content generation.
func (c *Client) Model() llms.Model {
	return c.llm
}
