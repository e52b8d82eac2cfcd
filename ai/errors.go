package ai

import "errors"

var (
	// ErrEmptyEmbedding indicates the provider returned no vector.
	ErrEmptyEmbedding = errors.New("provider returned empty embedding")

	// ErrDimensionMismatch indicates the provider returned a vector whose
	// length differs from its declared dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
