// Package mock provides a deterministic ai.EmbeddingProvider for tests
// and offline runs.
package mock
