package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/storage"
)

// CatalogRepository implements storage.CatalogRepository for BadgerDB.
type CatalogRepository struct {
	backend *Backend
	skuSeq  *badger.Sequence
}

var _ storage.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(backend *Backend) (*CatalogRepository, error) {
	skuSeq, err := backend.GetSequence(catalogSKUSeq)
	if err != nil {
		return nil, err
	}

	return &CatalogRepository{
		backend: backend,
		skuSeq:  skuSeq,
	}, nil
}

// Close releases the SKU sequence.
func (r *CatalogRepository) Close() error {
	return r.skuSeq.Release()
}

// AddItems adds one or more catalog items to storage.
func (r *CatalogRepository) AddItems(ctx context.Context, items ...*core.CatalogItem) ([]*core.CatalogItem, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, item := range items {
			if item.SKU == 0 {
				next, err := r.skuSeq.Next()
				if err != nil {
					return err
				}
				// BadgerDB sequences can return 0 on first call, so we skip it
				if next == 0 {
					next, err = r.skuSeq.Next()
					if err != nil {
						return err
					}
				}
				item.SKU = core.SKUID(next)
			}

			if item.CreatedAt.IsZero() {
				item.CreatedAt = time.Now().UTC()
			}
			if item.UpdatedAt.IsZero() {
				item.UpdatedAt = item.CreatedAt
			}

			key := makeCatalogKey(item.SKU)
			if err := tx.Set(key, storage.MarshalCatalogItem(item)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return items, err
}

// UpdateItems updates existing catalog items.
func (r *CatalogRepository) UpdateItems(ctx context.Context, items ...*core.CatalogItem) ([]*core.CatalogItem, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, item := range items {
			key := makeCatalogKey(item.SKU)
			if _, err := tx.Get(key); err != nil {
				if err == badger.ErrKeyNotFound {
					return storage.ErrNotFound
				}
				return err
			}

			item.UpdatedAt = time.Now().UTC()
			if err := tx.Set(key, storage.MarshalCatalogItem(item)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return items, err
}

// DeleteItems removes catalog items by SKU.
func (r *CatalogRepository) DeleteItems(ctx context.Context, skus ...core.SKUID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, sku := range skus {
			key := makeCatalogKey(sku)
			if _, err := tx.Get(key); err != nil {
				if err == badger.ErrKeyNotFound {
					return storage.ErrNotFound
				}
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetItem retrieves a single catalog item by SKU.
func (r *CatalogRepository) GetItem(ctx context.Context, sku core.SKUID) (*core.CatalogItem, error) {
	var item *core.CatalogItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		entry, err := tx.Get(makeCatalogKey(sku))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return entry.Value(func(val []byte) error {
			var unmarshalErr error
			item, unmarshalErr = storage.UnmarshalCatalogItem(val)
			return unmarshalErr
		})
	}, false)

	return item, err
}

// ListBatch retrieves up to limit items with SKU > after in ascending SKU
// order, applying the filter and the updated-time floor.
func (r *CatalogRepository) ListBatch(ctx context.Context, after core.SKUID, limit int, filter core.CatalogFilter, updatedSince time.Time) ([]*core.CatalogItem, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var items []*core.CatalogItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = catalogScanPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Keys are BigEndian, so seeking past `after` lands on the next SKU.
		start := makeCatalogKey(after + 1)
		for iter.Seek(start); iter.Valid(); iter.Next() {
			var item *core.CatalogItem
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				item, unmarshalErr = storage.UnmarshalCatalogItem(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}

			if !updatedSince.IsZero() && item.UpdatedAt.Before(updatedSince) {
				continue
			}
			if !filter.Matches(item) {
				continue
			}

			items = append(items, item)
			if len(items) >= limit {
				break
			}
		}
		return nil
	}, false)

	return items, err
}

// Count returns the number of catalog items.
func (r *CatalogRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = catalogScanPrefix()
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
