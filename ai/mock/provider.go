package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Provider is a test double for ai.EmbeddingProvider. By default it
// produces deterministic vectors derived from the text hash, so the same
// text always embeds to the same vector. Custom behavior can be injected
// via EmbedFunc.
type Provider struct {
	name  string
	model string
	dim   int

	// EmbedFunc is called by Embed if set. If nil, the default
	// deterministic behavior is used.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	mu    sync.Mutex
	calls int
}

// NewProvider creates a mock provider with deterministic default behavior.
// Returns the concrete type so tests can inspect call counts and inject
// failures.
func NewProvider(model string, dim int) *Provider {
	return &Provider{
		name:  "mock",
		model: model,
		dim:   dim,
	}
}

// Name identifies the provider.
func (p *Provider) Name() string { return p.name }

// Model is the embedding model identifier.
func (p *Provider) Model() string { return p.model }

// Dimension is the declared vector length.
func (p *Provider) Dimension() int { return p.dim }

// Embed generates a deterministic embedding based on the text hash.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.EmbedFunc != nil {
		return p.EmbedFunc(ctx, text)
	}
	return DeterministicVector(text, p.dim), nil
}

// CallCount returns the number of times Embed was called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Reset clears the call count and any injected behavior.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = 0
	p.EmbedFunc = nil
}

// DeterministicVector creates a unit-normalized embedding vector from
// text. It uses an FNV hash so the same text always produces the same
// vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}

	var sumSquares float32
	for _, v := range vector {
		sumSquares += v * v
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(float64(sumSquares)))
		for i := range vector {
			vector[i] *= norm
		}
	}

	return vector
}
