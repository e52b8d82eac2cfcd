package core

import (
	"strings"
	"time"
)

// SKUID identifies a catalog item. IDs are assigned from a database
// sequence and are strictly ascending, which the sync engine relies on
// for resumable cursor iteration.
type SKUID uint64

// JobID identifies a sync job. IDs are monotonic (database sequence).
type JobID uint64

// CatalogItem is a single product record in the catalog.
type CatalogItem struct {
	SKU         SKUID
	Name        string
	Brand       string
	Category    string
	Description string
	Attributes  map[string]string
	PriceCents  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Fields returns the filterable string fields of the item, keyed by the
// names callers use in CatalogFilter.
func (i *CatalogItem) Fields() map[string]string {
	return map[string]string{
		"name":        i.Name,
		"brand":       i.Brand,
		"category":    i.Category,
		"description": i.Description,
	}
}

// CatalogFilter selects catalog items by field value. Equals entries must
// match exactly (case-insensitive); Contains entries match substrings
// (case-insensitive). An empty filter matches everything.
type CatalogFilter struct {
	Equals   map[string]string
	Contains map[string]string
}

// Empty reports whether the filter has no conditions.
func (f CatalogFilter) Empty() bool {
	return len(f.Equals) == 0 && len(f.Contains) == 0
}

// Matches reports whether the item satisfies every filter condition.
// Conditions on unknown field names never match.
func (f CatalogFilter) Matches(item *CatalogItem) bool {
	if f.Empty() {
		return true
	}
	fields := item.Fields()
	for name, want := range f.Equals {
		got, ok := fields[name]
		if !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	for name, want := range f.Contains {
		got, ok := fields[name]
		if !ok || !strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
			return false
		}
	}
	return true
}

// EmbeddingRecord is the freshly computed representation of a catalog
// item's text, built every time a row is processed. It is never stored
// as-is; only its derived fields land in an EmbeddingRow.
type EmbeddingRecord struct {
	SKU             SKUID
	SourceUpdatedAt time.Time
	Text            string
	Metadata        map[string]string
	ContentHash     string
	Provider        string
	Model           string
	Dim             int
	Vector          []float32
}

// EmbeddingRow is the persisted embedding for one SKU. At most one row
// exists per SKU.
type EmbeddingRow struct {
	SKU             SKUID
	Vector          []float32
	Dim             int
	Model           string
	Provider        string
	Text            string
	ContentHash     string
	Metadata        map[string]string
	SourceUpdatedAt time.Time
	UpdatedAt       time.Time
}

// Stale reports whether the row is outdated relative to the target
// provider/model and the SKU's current update time. A nil row is stale.
func (r *EmbeddingRow) Stale(provider, model string, sourceUpdatedAt time.Time) bool {
	if r == nil {
		return true
	}
	if r.SourceUpdatedAt.IsZero() || r.SourceUpdatedAt.Before(sourceUpdatedAt) {
		return true
	}
	if r.Provider != provider || r.Model != model {
		return true
	}
	return false
}

// Matches reports whether the stored row already reflects the record:
// same content hash, model, provider and source timestamp. This single
// predicate backs both dry-run classification and the conditional
// upsert, so the two modes cannot disagree.
func (r *EmbeddingRow) Matches(rec *EmbeddingRecord) bool {
	if r == nil {
		return false
	}
	return r.ContentHash == rec.ContentHash &&
		r.Model == rec.Model &&
		r.Provider == rec.Provider &&
		r.SourceUpdatedAt.Equal(rec.SourceUpdatedAt)
}

// ApplyRecord overwrites the row's payload from the record and stamps
// UpdatedAt.
func (r *EmbeddingRow) ApplyRecord(rec *EmbeddingRecord, now time.Time) {
	r.SKU = rec.SKU
	r.Vector = rec.Vector
	r.Dim = rec.Dim
	r.Model = rec.Model
	r.Provider = rec.Provider
	r.Text = rec.Text
	r.ContentHash = rec.ContentHash
	r.Metadata = rec.Metadata
	r.SourceUpdatedAt = rec.SourceUpdatedAt
	r.UpdatedAt = now
}

// UpsertOutcome is the store's report of what a conditional upsert did.
type UpsertOutcome int

const (
	// UpsertInserted means no row existed and one was created.
	UpsertInserted UpsertOutcome = iota + 1
	// UpsertUpdated means the existing row differed and was overwritten.
	UpsertUpdated
	// UpsertUnchanged means the existing row already matched; nothing was written.
	UpsertUnchanged
)

// JobMode selects between previewing and applying a sync run.
type JobMode string

const (
	JobModeDryRun  JobMode = "dry_run"
	JobModeExecute JobMode = "execute"
)

// JobStatus is a sync job's lifecycle state.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether the status can never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// Active reports whether the job counts against the single-flight limit.
func (s JobStatus) Active() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// JobParams carries everything a sync run needs. Zero values mean
// "no constraint" for Limit, UpdatedSince and RateLimit.
type JobParams struct {
	Mode         JobMode
	OnlyStale    bool
	UpdatedSince time.Time
	Limit        int
	BatchSize    int
	RateLimit    time.Duration
	Provider     string
	Model        string
	Dim          int
	Filter       CatalogFilter
}

// SyncJob is the durable record of one sync run.
type SyncJob struct {
	ID              JobID
	Mode            JobMode
	Status          JobStatus
	RequestedBy     string
	RequestIP       string
	Params          JobParams
	Processed       int64
	Inserted        int64
	Updated         int64
	Skipped         int64
	Errors          int64
	LastSKU         SKUID
	CancelRequested bool
	ErrorSummary    string
	StartedAt       time.Time
	FinishedAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemAction classifies the outcome for a single SKU during a sync run.
// ItemActionSkip exists only in callbacks and summaries; skip outcomes
// are never persisted as SyncJobItem rows.
type ItemAction string

const (
	ItemActionInsert ItemAction = "insert"
	ItemActionUpdate ItemAction = "update"
	ItemActionSkip   ItemAction = "skip"
	ItemActionError  ItemAction = "error"
)

// SKUMatch is an embedding-store match from vector similarity search.
type SKUMatch struct {
	SKU   SKUID
	Score float32
}

// SyncJobItem is one append-only audit row recorded while a job runs.
// Items are only ever created, never updated or deleted.
type SyncJobItem struct {
	ID           uint64
	JobID        JobID
	SKU          SKUID
	Action       ItemAction
	HashBefore   string
	HashAfter    string
	ErrorMessage string
	CreatedAt    time.Time
}
