// Copyright 2025 Catadex Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/catadex/catadex/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider implements ai.EmbeddingProvider against OpenAI-compatible
// embedding APIs (OpenAI, Ollama, LocalAI, vLLM).
type Provider struct {
	name     string
	model    string
	dim      int
	embedder embeddings.Embedder
	logger   *slog.Logger
}

var _ ai.EmbeddingProvider = (*Provider)(nil)

// NewProvider creates a provider using the given configuration.
//
// Returns ai.EmbeddingProvider to enforce abstraction.
func NewProvider(config *ai.Config) (ai.EmbeddingProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIToken),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Provider{
		name:     config.ProviderName,
		model:    config.EmbeddingModel,
		dim:      config.EmbeddingDim,
		embedder: embedder,
		logger:   slog.Default().With("component", "openai-provider"),
	}, nil
}

// Name identifies the provider.
func (p *Provider) Name() string { return p.name }

// Model is the embedding model identifier.
func (p *Provider) Model() string { return p.model }

// Dimension is the declared vector length.
func (p *Provider) Dimension() int { return p.dim }

// Embed generates a vector embedding for a single text string. The call
// fails if the service returns no vector or one of the wrong length; the
// vector is never truncated or padded.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.logger.Debug("generating embedding", "length", len(text))

	vectors, err := p.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		p.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}

	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ai.ErrEmptyEmbedding
	}

	vector := vectors[0]
	if len(vector) != p.dim {
		return nil, fmt.Errorf("%w: model %q returned %d values, want %d",
			ai.ErrDimensionMismatch, p.model, len(vector), p.dim)
	}

	return vector, nil
}
