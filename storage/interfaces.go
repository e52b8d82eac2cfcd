package storage

import (
	"context"
	"time"

	"github.com/catadex/catadex/core"
)

// CatalogRepository provides operations for managing catalog items.
// Implementations must be thread-safe and support concurrent access.
type CatalogRepository interface {
	// AddItems adds one or more catalog items to storage.
	// For items with SKU=0, generates new SKUs from sequence.
	// Sets CreatedAt/UpdatedAt timestamps if not already set.
	// Returns the items with generated SKUs and timestamps populated.
	AddItems(ctx context.Context, items ...*core.CatalogItem) ([]*core.CatalogItem, error)

	// UpdateItems updates existing catalog items and stamps UpdatedAt.
	// Returns ErrNotFound if any item doesn't exist.
	UpdateItems(ctx context.Context, items ...*core.CatalogItem) ([]*core.CatalogItem, error)

	// DeleteItems removes catalog items by SKU.
	// Returns ErrNotFound if any item doesn't exist.
	DeleteItems(ctx context.Context, skus ...core.SKUID) error

	// GetItem retrieves a single catalog item by SKU.
	// Returns ErrNotFound if the item doesn't exist.
	GetItem(ctx context.Context, sku core.SKUID) (*core.CatalogItem, error)

	// ListBatch retrieves up to limit items with SKU > after, in strictly
	// ascending SKU order, optionally restricted by filter and an
	// updated-time floor (zero updatedSince means no floor). An empty
	// result means the catalog tail is exhausted for this filter.
	ListBatch(ctx context.Context, after core.SKUID, limit int, filter core.CatalogFilter, updatedSince time.Time) ([]*core.CatalogItem, error)

	// Count returns the number of catalog items.
	Count(ctx context.Context) (int, error)

	// Close releases repository resources.
	Close() error
}

// EmbeddingRepository manages the embedding store: at most one row per SKU.
type EmbeddingRepository interface {
	// Get retrieves the embedding row for a SKU.
	// Returns ErrNotFound if no row exists.
	Get(ctx context.Context, sku core.SKUID) (*core.EmbeddingRow, error)

	// GetMany retrieves embedding rows for the given SKUs. Missing rows
	// are simply absent from the result map (no error).
	GetMany(ctx context.Context, skus ...core.SKUID) (map[core.SKUID]*core.EmbeddingRow, error)

	// Upsert conditionally writes the record's derived row, keyed by SKU.
	// The write happens only when content hash, model, provider or source
	// timestamp differ from the stored row, and the outcome reports
	// whether a row was inserted, updated, or left untouched. Concurrent
	// writers are safe: the condition is evaluated against the row's
	// state at write time.
	Upsert(ctx context.Context, rec *core.EmbeddingRecord) (core.UpsertOutcome, error)

	// Delete removes embedding rows by SKU. Missing rows are ignored.
	Delete(ctx context.Context, skus ...core.SKUID) error

	// Count returns the number of embedding rows.
	Count(ctx context.Context) (int, error)

	// FindSimilar finds SKUs whose stored vectors are similar to the
	// given vector. Returns matches with similarity >= minSimilarity, up
	// to limit results, ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SKUMatch, error)

	// Close releases repository resources.
	Close() error
}

// JobRepository provides durable CRUD for sync jobs and their append-only
// audit items.
type JobRepository interface {
	// CreateJob inserts a new job, assigning a monotonic ID from
	// sequence and stamping CreatedAt/UpdatedAt. If the job's status is
	// active and another active job already exists, returns
	// ErrDuplicateKey without writing.
	CreateJob(ctx context.Context, job *core.SyncJob) (*core.SyncJob, error)

	// GetJob retrieves a job by ID. Returns ErrNotFound if it doesn't exist.
	GetJob(ctx context.Context, id core.JobID) (*core.SyncJob, error)

	// UpdateJob overwrites a job row and stamps UpdatedAt. When the job
	// reaches a terminal status the active marker is cleared so a new
	// job may be created. Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.SyncJob) error

	// ListJobs returns up to limit jobs, most recent first.
	ListJobs(ctx context.Context, limit int) ([]*core.SyncJob, error)

	// ActiveJob returns the job currently in queued or running state, or
	// nil if there is none.
	ActiveJob(ctx context.Context) (*core.SyncJob, error)

	// AddJobItems appends audit items for a job, assigning item IDs from
	// sequence. Items are never updated or deleted afterward.
	AddJobItems(ctx context.Context, items ...*core.SyncJobItem) error

	// ListJobItems returns up to limit audit items for a job, in
	// insertion order.
	ListJobItems(ctx context.Context, jobID core.JobID, limit int) ([]*core.SyncJobItem, error)

	// Close releases repository resources.
	Close() error
}

// LockRepository provides named, process-independent mutual-exclusion
// locks backed by the store, so single-flight guarantees hold across
// process instances as well as goroutines.
type LockRepository interface {
	// Acquire attempts to take the named lock for owner, valid for ttl.
	// Returns false if another owner holds an unexpired lock. Calling
	// Acquire again with the same owner extends the deadline.
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)

	// Release frees the named lock if owner holds it. Releasing a lock
	// held by someone else (or nobody) is a no-op.
	Release(ctx context.Context, name, owner string) error
}
