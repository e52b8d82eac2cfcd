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

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/storage"
)

// EmbeddingRepository implements storage.EmbeddingRepository for BadgerDB.
// The store holds at most one row per SKU; all mutation goes through the
// conditional Upsert.
type EmbeddingRepository struct {
	backend *Backend
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(backend *Backend) *EmbeddingRepository {
	return &EmbeddingRepository{
		backend: backend,
	}
}

// Close releases repository resources.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// Get retrieves the embedding row for a SKU.
func (r *EmbeddingRepository) Get(ctx context.Context, sku core.SKUID) (*core.EmbeddingRow, error) {
	var row *core.EmbeddingRow
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		entry, err := tx.Get(makeEmbeddingKey(sku))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return entry.Value(func(val []byte) error {
			var unmarshalErr error
			row, unmarshalErr = storage.UnmarshalEmbeddingRow(val)
			return unmarshalErr
		})
	}, false)

	return row, err
}

// GetMany retrieves embedding rows for the given SKUs. Missing rows are
// absent from the result map.
func (r *EmbeddingRepository) GetMany(ctx context.Context, skus ...core.SKUID) (map[core.SKUID]*core.EmbeddingRow, error) {
	rows := make(map[core.SKUID]*core.EmbeddingRow, len(skus))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, sku := range skus {
			entry, err := tx.Get(makeEmbeddingKey(sku))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					continue
				}
				return err
			}
			var row *core.EmbeddingRow
			err = entry.Value(func(val []byte) error {
				var unmarshalErr error
				row, unmarshalErr = storage.UnmarshalEmbeddingRow(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			rows[row.SKU] = row
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert conditionally writes the record's derived row. The row is
// written only when content hash, model, provider or source timestamp
// differ from the stored state, read inside the same transaction, so the
// outcome is accurate even under concurrent writers.
func (r *EmbeddingRepository) Upsert(ctx context.Context, rec *core.EmbeddingRecord) (core.UpsertOutcome, error) {
	var outcome core.UpsertOutcome
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeEmbeddingKey(rec.SKU)

		var existing *core.EmbeddingRow
		entry, err := tx.Get(key)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			err = entry.Value(func(val []byte) error {
				var unmarshalErr error
				existing, unmarshalErr = storage.UnmarshalEmbeddingRow(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
		}

		switch {
		case existing == nil:
			outcome = core.UpsertInserted
		case existing.Matches(rec):
			// Already current. Nothing to write, so concurrent
			// writers can never downgrade a row.
			outcome = core.UpsertUnchanged
			return nil
		default:
			outcome = core.UpsertUpdated
		}

		row := &core.EmbeddingRow{}
		row.ApplyRecord(rec, time.Now().UTC())
		if err := tx.Set(key, storage.MarshalEmbeddingRow(row)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// Delete removes embedding rows by SKU. Missing rows are ignored.
func (r *EmbeddingRepository) Delete(ctx context.Context, skus ...core.SKUID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, sku := range skus {
			if err := tx.Delete(makeEmbeddingKey(sku)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Count returns the number of embedding rows.
func (r *EmbeddingRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = embeddingScanPrefix()
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)

	return count, err
}

// FindSimilar finds SKUs whose stored vectors are similar to the given
// vector. For unit-normalized vectors the dot product is the cosine
// similarity.
func (r *EmbeddingRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SKUMatch, error) {
	var matches []*core.SKUMatch

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = embeddingScanPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var row *core.EmbeddingRow
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				row, unmarshalErr = storage.UnmarshalEmbeddingRow(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if len(row.Vector) == 0 {
				continue
			}

			similarity := dotProduct(vector, row.Vector)
			if similarity >= minSimilarity {
				matches = append(matches, &core.SKUMatch{
					SKU:   row.SKU,
					Score: similarity,
				})
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(matches, func(a, b *core.SKUMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
