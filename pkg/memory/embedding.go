package memory

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/harun/ragent/internal/observability"
	"github.com/harun/ragent/pkg/remote"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// EmbeddingProvider generates vector embeddings from text
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// EmbedderConfig configures OpenAIEmbedder
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string // optional, any OpenAI-compatible endpoint
	Model      string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// OpenAIEmbedder implements EmbeddingProvider with the OpenAI embeddings API
type OpenAIEmbedder struct {
	client openai.Client
	model  string
	logger zerolog.Logger
}

// NewOpenAIEmbedder creates a new OpenAI embedding client.
// SDK retries are disabled: one call per text.
func NewOpenAIEmbedder(cfg EmbedderConfig) *OpenAIEmbedder {
	observability.EnsureRegistered()

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Model returns the embedding model name
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// GenerateEmbedding embeds text with a single remote call
func (e *OpenAIEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	start := time.Now()

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		observability.RecordEmbedding(time.Since(start), false)
		return nil, remote.NewServiceError("embedding", "create", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		observability.RecordEmbedding(time.Since(start), false)
		return nil, remote.NewServiceError("embedding", "create", errors.New("response contained no embedding"))
	}

	observability.RecordEmbedding(time.Since(start), true)
	e.logger.Debug().
		Str("model", e.model).
		Int("dimension", len(resp.Data[0].Embedding)).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return resp.Data[0].Embedding, nil
}
