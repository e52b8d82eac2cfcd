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


// Package catadex wires the catalog store, embedding store, sync engine
// and job lifecycle manager into one embeddable platform.
package catadex

import (
	"log/slog"

	"github.com/catadex/catadex/ai"
	"github.com/catadex/catadex/ai/openai"
	"github.com/catadex/catadex/compose"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/indexer"
	"github.com/catadex/catadex/jobs"
	"github.com/catadex/catadex/search"
	"github.com/catadex/catadex/storage"
	"github.com/catadex/catadex/storage/badger"
)

// Platform bundles the repositories, the sync indexer and the job
// manager over a single store.
type Platform struct {
	backend    *badger.Backend
	catalog    storage.CatalogRepository
	embeddings storage.EmbeddingRepository
	jobRepo    storage.JobRepository
	locks      storage.LockRepository
	indexer    *indexer.Indexer
	manager    *jobs.Manager
	providers  jobs.ProviderFactory
	logger     *slog.Logger
}

// PlatformOption configures a Platform.
type PlatformOption func(*platformOptions)

type platformOptions struct {
	aiConfig  *ai.Config
	providers jobs.ProviderFactory
	composer  compose.Composer
	jobOpts   []jobs.Option
}

// WithAIConfig sets the base embedding provider configuration. Per-job
// provider/model/dim parameters override it.
func WithAIConfig(config *ai.Config) PlatformOption {
	return func(o *platformOptions) {
		if config != nil {
			o.aiConfig = config
		}
	}
}

// WithProviderFactory replaces the default OpenAI-compatible provider
// factory, typically with a mock for tests.
func WithProviderFactory(factory jobs.ProviderFactory) PlatformOption {
	return func(o *platformOptions) {
		o.providers = factory
	}
}

// WithComposer replaces the default text composer.
func WithComposer(composer compose.Composer) PlatformOption {
	return func(o *platformOptions) {
		o.composer = composer
	}
}

// WithJobOptions passes options through to the job manager.
func WithJobOptions(opts ...jobs.Option) PlatformOption {
	return func(o *platformOptions) {
		o.jobOpts = append(o.jobOpts, opts...)
	}
}

// Open creates a Platform backed by a BadgerDB store at filePath. An
// empty filePath opens an in-memory store.
func Open(filePath string, opts ...PlatformOption) (*Platform, error) {
	options := &platformOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, filePath == "")
	if err != nil {
		return nil, err
	}

	catalogRepo, err := badger.NewCatalogRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	jobRepo, err := badger.NewJobRepository(backend)
	if err != nil {
		catalogRepo.Close()
		backend.Close()
		return nil, err
	}

	embeddingRepo := badger.NewEmbeddingRepository(backend)
	lockRepo := badger.NewLockRepository(backend)

	providers := options.providers
	if providers == nil {
		base := options.aiConfig
		providers = func(params core.JobParams) (ai.EmbeddingProvider, error) {
			config := ai.NewConfig(
				ai.WithProviderName(params.Provider),
				ai.WithHost(base.EmbeddingHost),
				ai.WithModel(params.Model),
				ai.WithDimension(params.Dim),
				ai.WithToken(base.APIToken),
			)
			return openai.NewProvider(config)
		}
	}

	ix := indexer.New(catalogRepo, embeddingRepo, options.composer)

	manager, err := jobs.NewManager(jobRepo, lockRepo, ix, providers, options.jobOpts...)
	if err != nil {
		jobRepo.Close()
		embeddingRepo.Close()
		catalogRepo.Close()
		backend.Close()
		return nil, err
	}

	return &Platform{
		backend:    backend,
		catalog:    catalogRepo,
		embeddings: embeddingRepo,
		jobRepo:    jobRepo,
		locks:      lockRepo,
		indexer:    ix,
		manager:    manager,
		providers:  providers,
		logger:     slog.Default(),
	}, nil
}

// Close releases the job manager, repositories and the underlying store.
func (p *Platform) Close() error {
	p.manager.Wait()
	p.manager.Release()

	if err := p.jobRepo.Close(); err != nil {
		p.logger.Error("error closing job repository", "err", err)
		return err
	}
	if err := p.embeddings.Close(); err != nil {
		p.logger.Error("error closing embedding repository", "err", err)
		return err
	}
	if err := p.catalog.Close(); err != nil {
		p.logger.Error("error closing catalog repository", "err", err)
		return err
	}
	if err := p.backend.Close(); err != nil {
		p.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Catalog returns the catalog repository.
func (p *Platform) Catalog() storage.CatalogRepository {
	return p.catalog
}

// Embeddings returns the embedding repository.
func (p *Platform) Embeddings() storage.EmbeddingRepository {
	return p.embeddings
}

// Jobs returns the job lifecycle manager.
func (p *Platform) Jobs() *jobs.Manager {
	return p.manager
}

// Indexer returns the sync planner/executor for direct (non-job) runs.
func (p *Platform) Indexer() *indexer.Indexer {
	return p.indexer
}

// NewSearcher creates a semantic searcher using a provider built from
// the given job-style parameters.
func (p *Platform) NewSearcher(params core.JobParams, opts ...search.Option) (*search.Searcher, error) {
	provider, err := p.providers(params)
	if err != nil {
		return nil, err
	}
	return search.NewSearcher(p.catalog, p.embeddings, provider, opts...)
}
