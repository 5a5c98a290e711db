// Package memory holds the in-memory similarity index, the embedding client
// and the retriever that ties them together.
//
// Invariants:
// - Index entries keep insertion order; ranking never mutates the index.
// - Every stored vector has the dimension fixed by the first one.
// - Zero-norm vectors score 0 against anything, never NaN.
// - An embedding call yields a full vector or an error, never a partial vector.
//
// Usage:
//
//	embedder := memory.NewOpenAIEmbedder(memory.EmbedderConfig{APIKey: key, Model: "text-embedding-3-small"})
//	r := memory.NewRetriever(memory.RetrieverConfig{Embedder: embedder})
//	_ = r.IngestAll(ctx, docs)
//	top, _ := r.Query(ctx, task, 3)
//	_ = top
package memory
