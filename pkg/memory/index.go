package memory

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrEmptyVector is returned when an empty vector is stored or queried
var ErrEmptyVector = errors.New("vector is empty")

// DimensionMismatchError reports a vector whose length differs from the index dimension
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index holds %d, got %d", e.Expected, e.Actual)
}

// EmbeddedDocument is one indexed entry
type EmbeddedDocument struct {
	Vector  []float64
	Content string
}

// ScoredDocument is a ranked entry
type ScoredDocument struct {
	Content  string
	Score    float64
	Position int // insertion index
}

// IndexStats describes the index
type IndexStats struct {
	Count     int
	Dimension int
}

// Index is an append-only, brute-force cosine similarity index
type Index struct {
	mu        sync.RWMutex
	docs      []EmbeddedDocument
	dimension int
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{}
}

// Append stores vector with its content. The first vector fixes the index dimension.
func (idx *Index) Append(vector []float64, content string) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dimension == 0 {
		idx.dimension = len(vector)
	} else if len(vector) != idx.dimension {
		return &DimensionMismatchError{Expected: idx.dimension, Actual: len(vector)}
	}

	stored := make([]float64, len(vector))
	copy(stored, vector)
	idx.docs = append(idx.docs, EmbeddedDocument{Vector: stored, Content: content})
	return nil
}

// Search ranks every entry against query and returns the best topK, highest first.
// Equal scores keep insertion order.
func (idx *Index) Search(query []float64, topK int) ([]ScoredDocument, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if topK <= 0 || len(idx.docs) == 0 {
		return []ScoredDocument{}, nil
	}
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}
	if len(query) != idx.dimension {
		return nil, &DimensionMismatchError{Expected: idx.dimension, Actual: len(query)}
	}

	scored := make([]ScoredDocument, len(idx.docs))
	for i, doc := range idx.docs {
		scored[i] = ScoredDocument{
			Content:  doc.Content,
			Score:    CosineSimilarity(query, doc.Vector),
			Position: i,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

// RankByQuery returns the contents of the topK entries most similar to query
func (idx *Index) RankByQuery(query []float64, topK int) ([]string, error) {
	scored, err := idx.Search(query, topK)
	if err != nil {
		return nil, err
	}

	contents := make([]string, len(scored))
	for i, s := range scored {
		contents[i] = s.Content
	}
	return contents, nil
}

// Clear drops every entry and forgets the dimension
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.docs = nil
	idx.dimension = 0
}

// Stats returns the entry count and dimension
func (idx *Index) Stats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return IndexStats{Count: len(idx.docs), Dimension: idx.dimension}
}

// CosineSimilarity returns dot(a,b)/(|a|*|b|). Mismatched lengths and
// zero-norm inputs score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(score) {
		return 0
	}
	return score
}
