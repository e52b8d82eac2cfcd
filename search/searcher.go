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


package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/catadex/catadex/ai"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/storage"
)

const (
	// DefaultMinSimilarity filters out weak matches.
	DefaultMinSimilarity = 0.60

	// DefaultMaxResults bounds result set size when the caller passes 0.
	DefaultMaxResults = 10
)

// Result is one ranked search hit.
type Result struct {
	Item  *core.CatalogItem
	Score float32
}

// Searcher provides semantic search over catalog items.
type Searcher struct {
	catalog       storage.CatalogRepository
	embeddings    storage.EmbeddingRepository
	provider      ai.EmbeddingProvider
	minSimilarity float32
	maxResults    int
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity sets the similarity threshold below which matches
// are dropped.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		s.minSimilarity = min
		return nil
	}
}

// WithMaxResults sets the default result cap used when Find is called
// with maxHits <= 0.
func WithMaxResults(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			n = 1
		}
		s.maxResults = n
		return nil
	}
}

// NewSearcher creates a new searcher. The provider must match the one
// that populated the embedding store, otherwise query vectors and stored
// vectors live in different spaces and the scores are meaningless.
func NewSearcher(
	catalog storage.CatalogRepository,
	embeddings storage.EmbeddingRepository,
	provider ai.EmbeddingProvider,
	opts ...Option,
) (*Searcher, error) {
	if catalog == nil {
		return nil, ErrCatalogRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}

	s := &Searcher{
		catalog:       catalog,
		embeddings:    embeddings,
		provider:      provider,
		minSimilarity: DefaultMinSimilarity,
		maxResults:    DefaultMaxResults,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Find returns up to maxHits catalog items most similar to the query,
// ranked by similarity score. A maxHits of 0 uses the configured default.
func (s *Searcher) Find(ctx context.Context, query string, maxHits int) ([]*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits <= 0 {
		maxHits = s.maxResults
	}

	vector, err := s.provider.Embed(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "err", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.embeddings.FindSimilar(ctx, vector, s.minSimilarity, maxHits)
	if err != nil {
		s.logger.Error("error querying for similar embeddings", "err", err)
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	results := make([]*Result, 0, len(matches))
	for _, match := range matches {
		item, err := s.catalog.GetItem(ctx, match.SKU)
		if err != nil {
			if err == storage.ErrNotFound {
				// Embedding row outlived its catalog item; skip it.
				s.logger.Debug("match has no catalog item", "sku", match.SKU)
				continue
			}
			return nil, fmt.Errorf("failed to load item %d: %w", match.SKU, err)
		}
		results = append(results, &Result{Item: item, Score: match.Score})
	}

	return results, nil
}
