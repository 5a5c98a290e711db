package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harun/ragent/pkg/remote"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticEmbedder returns fixed vectors per text
type staticEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	fail    map[string]bool
	calls   int
}

func (s *staticEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if s.fail[text] {
		return nil, remote.NewServiceError("embedding", "create", errors.New("unavailable"))
	}
	v, ok := s.vectors[text]
	if !ok {
		return nil, remote.NewServiceError("embedding", "create", errors.New("unknown text"))
	}
	return v, nil
}

// delayedEmbedder returns the same vector for every text after a per-text delay
type delayedEmbedder struct {
	vector []float64
	delays map[string]time.Duration
}

func (d *delayedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	select {
	case <-time.After(d.delays[text]):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return append([]float64(nil), d.vector...), nil
}

func TestRetriever(t *testing.T) {
	docs := []string{
		"Iron Man builds a suit in a cave.",
		"Wukong is the monkey king who journeys west.",
		"Tomatoes grow best in warm weather.",
	}
	task := "Tell me about Wukong"

	newEmbedder := func() *staticEmbedder {
		return &staticEmbedder{
			vectors: map[string][]float64{
				docs[0]: {0.9, 0.1, 0.0},
				docs[1]: {0.1, 0.9, 0.2},
				docs[2]: {0.0, 0.2, 0.9},
				task:    {0.2, 1.0, 0.1},
			},
		}
	}

	t.Run("should return the closest document for the task", func(t *testing.T) {
		r := NewRetriever(RetrieverConfig{Embedder: newEmbedder(), Logger: zerolog.Nop()})

		require.NoError(t, r.IngestAll(context.Background(), docs))
		assert.Equal(t, 3, r.Stats().Count)

		top, err := r.Query(context.Background(), task, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{docs[1]}, top)
	})

	t.Run("should return scores with positions", func(t *testing.T) {
		r := NewRetriever(RetrieverConfig{Embedder: newEmbedder(), Concurrency: 1})
		require.NoError(t, r.IngestAll(context.Background(), docs))

		scored, err := r.Search(context.Background(), task, 3)
		require.NoError(t, err)
		require.Len(t, scored, 3)
		assert.Equal(t, docs[1], scored[0].Content)
		assert.Equal(t, 1, scored[0].Position)
		assert.Greater(t, scored[0].Score, scored[1].Score)
	})

	t.Run("should return the embedding on ingest", func(t *testing.T) {
		r := NewRetriever(RetrieverConfig{Embedder: newEmbedder()})

		vec, err := r.Ingest(context.Background(), docs[0])
		require.NoError(t, err)
		assert.Equal(t, []float64{0.9, 0.1, 0.0}, vec)
	})

	t.Run("should fail the whole ingestion when one document fails", func(t *testing.T) {
		emb := newEmbedder()
		emb.fail = map[string]bool{docs[2]: true}
		r := NewRetriever(RetrieverConfig{Embedder: emb})

		err := r.IngestAll(context.Background(), docs)
		var svcErr *remote.ServiceError
		require.True(t, errors.As(err, &svcErr))
		assert.Equal(t, "embedding", svcErr.Service)
		assert.Equal(t, 0, r.Stats().Count)
	})

	t.Run("should keep input order regardless of embedding completion order", func(t *testing.T) {
		texts := []string{"first twin", "second twin", "third twin", "fourth twin"}
		emb := &delayedEmbedder{vector: []float64{1, 1}, delays: map[string]time.Duration{
			"first twin":  30 * time.Millisecond,
			"second twin": 20 * time.Millisecond,
			"third twin":  10 * time.Millisecond,
		}}
		r := NewRetriever(RetrieverConfig{Embedder: emb, Concurrency: len(texts), Logger: zerolog.Nop()})

		require.NoError(t, r.IngestAll(context.Background(), texts))

		scored, err := r.Search(context.Background(), "query", len(texts))
		require.NoError(t, err)
		require.Len(t, scored, len(texts))
		for i, doc := range scored {
			assert.Equal(t, texts[i], doc.Content)
			assert.Equal(t, i, doc.Position)
		}
	})

	t.Run("should surface a dimension mismatch at ingest", func(t *testing.T) {
		emb := newEmbedder()
		emb.vectors["short"] = []float64{1, 0}
		r := NewRetriever(RetrieverConfig{Embedder: emb})

		_, err := r.Ingest(context.Background(), docs[0])
		require.NoError(t, err)

		_, err = r.Ingest(context.Background(), "short")
		var mismatch *DimensionMismatchError
		assert.True(t, errors.As(err, &mismatch))
	})

	t.Run("should propagate query embedding failures", func(t *testing.T) {
		emb := newEmbedder()
		r := NewRetriever(RetrieverConfig{Embedder: emb})
		require.NoError(t, r.IngestAll(context.Background(), docs))

		_, err := r.Query(context.Background(), "unknown query", 1)
		assert.Error(t, err)
	})

	t.Run("should be empty after reset", func(t *testing.T) {
		r := NewRetriever(RetrieverConfig{Embedder: newEmbedder()})
		require.NoError(t, r.IngestAll(context.Background(), docs))

		r.Reset()
		assert.Equal(t, 0, r.Stats().Count)
	})

	t.Run("should share a provided index", func(t *testing.T) {
		idx := NewIndex()
		r := NewRetriever(RetrieverConfig{Embedder: newEmbedder(), Index: idx})
		_, err := r.Ingest(context.Background(), docs[0])
		require.NoError(t, err)
		assert.Equal(t, 1, idx.Stats().Count)
	})

	t.Run("should fail without an embedder", func(t *testing.T) {
		r := NewRetriever(RetrieverConfig{})
		_, err := r.Ingest(context.Background(), "x")
		assert.Error(t, err)
		_, err = r.Query(context.Background(), "x", 1)
		assert.Error(t, err)
	})
}
