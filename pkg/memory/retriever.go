package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/ragent/internal/observability"
	"github.com/harun/ragent/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultIngestConcurrency bounds parallel embedding calls during IngestAll
const DefaultIngestConcurrency = 4

// RetrieverConfig configures a Retriever
type RetrieverConfig struct {
	Embedder    EmbeddingProvider
	Index       *Index // optional, a fresh index is created when nil
	Concurrency int
	Logger      zerolog.Logger
}

// Retriever embeds documents into an Index and answers similarity queries
type Retriever struct {
	embedder    EmbeddingProvider
	index       *Index
	concurrency int
	logger      zerolog.Logger
}

// NewRetriever creates a new retriever
func NewRetriever(cfg RetrieverConfig) *Retriever {
	observability.EnsureRegistered()

	index := cfg.Index
	if index == nil {
		index = NewIndex()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultIngestConcurrency
	}

	return &Retriever{
		embedder:    cfg.Embedder,
		index:       index,
		concurrency: concurrency,
		logger:      cfg.Logger,
	}
}

// Ingest embeds text, stores it and returns the embedding
func (r *Retriever) Ingest(ctx context.Context, text string) ([]float64, error) {
	if r.embedder == nil {
		return nil, errors.New("retriever has no embedding provider")
	}

	vector, err := r.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := r.index.Append(vector, text); err != nil {
		return nil, fmt.Errorf("failed to index document: %w", err)
	}

	observability.SetIndexDocuments(r.index.Stats().Count)
	return vector, nil
}

// IngestAll embeds every text concurrently, then stores them in input order
// so ranking ties resolve the same way on every run. Nothing is stored when
// any embedding fails.
func (r *Retriever) IngestAll(ctx context.Context, texts []string) error {
	ctx, span := tracing.StartSpan(ctx, "ragent.memory", "memory.ingest",
		attribute.Int("documents", len(texts)),
	)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	logger := tracing.LoggerFromContext(ctx, r.logger)

	if r.embedder == nil {
		err = errors.New("retriever has no embedding provider")
		return err
	}

	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vector, embedErr := r.embedder.GenerateEmbedding(gctx, text)
			if embedErr != nil {
				return fmt.Errorf("document %d: %w", i, embedErr)
			}
			vectors[i] = vector
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Knowledge base ingestion failed")
		return err
	}

	for i, text := range texts {
		if err = r.index.Append(vectors[i], text); err != nil {
			err = fmt.Errorf("document %d: failed to index document: %w", i, err)
			logger.Error().Err(err).Msg("Knowledge base ingestion failed")
			return err
		}
	}
	observability.SetIndexDocuments(r.index.Stats().Count)

	logger.Info().
		Int("documents", len(texts)).
		Int("indexed", r.index.Stats().Count).
		Msg("Knowledge base ingested")
	return nil
}

// Query embeds text and returns the contents of the topK most similar entries
func (r *Retriever) Query(ctx context.Context, text string, topK int) ([]string, error) {
	scored, err := r.Search(ctx, text, topK)
	if err != nil {
		return nil, err
	}

	contents := make([]string, len(scored))
	for i, s := range scored {
		contents[i] = s.Content
	}
	return contents, nil
}

// Search is Query with scores and insertion positions
func (r *Retriever) Search(ctx context.Context, text string, topK int) ([]ScoredDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "ragent.memory", "memory.query",
		attribute.Int("top_k", topK),
	)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	defer func() { observability.RecordRetrieval(time.Since(start)) }()

	if r.embedder == nil {
		err = errors.New("retriever has no embedding provider")
		return nil, err
	}

	var vector []float64
	vector, err = r.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	var scored []ScoredDocument
	scored, err = r.index.Search(vector, topK)
	if err != nil {
		return nil, err
	}

	logger := tracing.LoggerFromContext(ctx, r.logger)
	logger.Debug().
		Int("top_k", topK).
		Int("results", len(scored)).
		Dur("duration", time.Since(start)).
		Msg("Retrieved documents")

	return scored, nil
}

// Stats returns index statistics
func (r *Retriever) Stats() IndexStats {
	return r.index.Stats()
}

// Reset clears the index
func (r *Retriever) Reset() {
	r.index.Clear()
	observability.SetIndexDocuments(0)
}
