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


package badger

import "github.com/catadex/catadex/storage"

// MemoryRepositories bundles the in-memory repositories used by tests.
// Caller must close the backend when done; it owns all sequences.
type MemoryRepositories struct {
	Catalog    storage.CatalogRepository
	Embeddings storage.EmbeddingRepository
	Jobs       storage.JobRepository
	Locks      storage.LockRepository
	Backend    *Backend
}

// NewMemoryRepositories creates in-memory catalog, embedding, job and lock
// repositories for testing.
func NewMemoryRepositories() (*MemoryRepositories, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	catalogRepo, err := NewCatalogRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	jobRepo, err := NewJobRepository(backend)
	if err != nil {
		catalogRepo.Close()
		backend.Close()
		return nil, err
	}

	return &MemoryRepositories{
		Catalog:    catalogRepo,
		Embeddings: NewEmbeddingRepository(backend),
		Jobs:       jobRepo,
		Locks:      NewLockRepository(backend),
		Backend:    backend,
	}, nil
}

// Close releases every repository and the backend.
func (m *MemoryRepositories) Close() {
	m.Catalog.Close()
	m.Embeddings.Close()
	m.Jobs.Close()
	m.Backend.Close()
}
