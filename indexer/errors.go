package indexer

import "errors"

var (
	// ErrProviderRequired is returned when Run is called without a provider.
	ErrProviderRequired = errors.New("embedding provider is required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)

// Skip reasons reported through OnItem.
const (
	ReasonEmptyText = "empty_text"
	ReasonUnchanged = "unchanged"
)
