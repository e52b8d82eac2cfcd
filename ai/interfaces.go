package ai

import "context"

// EmbeddingProvider generates fixed-length vector embeddings from text.
// Implementations must be thread-safe for concurrent use, and must fail
// rather than silently truncate or pad when they cannot produce a vector
// of exactly Dimension() length.
type EmbeddingProvider interface {
	// Name identifies the provider (e.g. "openai", "mock").
	Name() string

	// Model is the embedding model identifier (e.g. "text-embedding-3-small").
	Model() string

	// Dimension is the declared length of every vector this provider returns.
	Dimension() int

	// Embed generates a vector embedding for a single text string.
	// The returned vector has exactly Dimension() elements, or an error
	// is returned.
	Embed(ctx context.Context, text string) ([]float32, error)
}
