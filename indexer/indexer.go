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


package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/catadex/catadex/ai"
	"github.com/catadex/catadex/compose"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/storage"
)

// Options configures a single sync run.
type Options struct {
	// Execute applies writes; false means dry-run (classify only).
	Execute bool

	// OnlyStale restricts the scan to rows whose stored embedding is
	// missing or outdated for the target provider/model.
	OnlyStale bool

	// UpdatedSince, when non-zero, restricts the scan to catalog items
	// updated at or after this time.
	UpdatedSince time.Time

	// Limit caps the number of processed rows. Zero means unlimited.
	Limit int

	// BatchSize is the number of rows fetched per batch, clamped to
	// [1, core.MaxBatchSize]. Zero means core.DefaultBatchSize.
	BatchSize int

	// RateLimit is the minimum interval between provider calls.
	// Zero means no pacing.
	RateLimit time.Duration

	// Filter restricts the scan to matching catalog items.
	Filter core.CatalogFilter

	// AfterSKU is the resume cursor: only rows with SKU > AfterSKU are
	// scanned. Zero starts from the beginning.
	AfterSKU core.SKUID

	// MaxRetries is the maximum number of attempts per provider call.
	// Zero means DefaultMaxRetries.
	MaxRetries int

	// RetryDelay is the base delay for retry backoff.
	// Zero means DefaultRetryDelay.
	RetryDelay time.Duration

	// OnItem is invoked after every processed row with its outcome.
	OnItem func(item *Item)

	// OnProgress is invoked after every processed row with the running
	// summary.
	OnProgress func(summary *Summary)

	// ShouldCancel is polled at batch boundaries and before each item.
	// Returning true stops the run cooperatively; already-applied writes
	// stay applied.
	ShouldCancel func() bool
}

const (
	// DefaultMaxRetries is the default number of attempts per provider call.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default base delay for retry backoff.
	DefaultRetryDelay = 250 * time.Millisecond
)

// Item reports the outcome for a single SKU.
type Item struct {
	SKU        core.SKUID
	Action     core.ItemAction
	Reason     string
	HashBefore string
	HashAfter  string
	Err        error
}

// Summary is the running (and final) report of a sync run. Planned is
// the number of rows that need a write (inserts plus updates), which is
// the headline figure of a dry-run.
type Summary struct {
	Mode      core.JobMode
	Processed int64
	Planned   int64
	Inserted  int64
	Updated   int64
	Unchanged int64
	Skipped   int64
	Errors    int64
	Batches   int64
	LastSKU   core.SKUID
	OnlyStale bool
	Canceled  bool
}

// Indexer scans the catalog and reconciles the embedding store against it.
type Indexer struct {
	catalog    storage.CatalogRepository
	embeddings storage.EmbeddingRepository
	composer   compose.Composer
	logger     *slog.Logger
}

// New creates an Indexer over the given repositories. A nil composer
// falls back to compose.NewTextComposer.
func New(catalog storage.CatalogRepository, embeddings storage.EmbeddingRepository, composer compose.Composer) *Indexer {
	if composer == nil {
		composer = compose.NewTextComposer()
	}
	return &Indexer{
		catalog:    catalog,
		embeddings: embeddings,
		composer:   composer,
		logger:     slog.Default().With("component", "indexer"),
	}
}

// candidate pairs a catalog item with its current embedding row snapshot
// (nil when no row exists yet).
type candidate struct {
	item *core.CatalogItem
	row  *core.EmbeddingRow
}

// Run executes one sync pass. Per-row provider and validation errors are
// counted and reported via OnItem but never abort the run; batch-fetch
// and store errors propagate to the caller.
func (ix *Indexer) Run(ctx context.Context, provider ai.EmbeddingProvider, opts Options) (*Summary, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = core.DefaultBatchSize
	}
	if batchSize > core.MaxBatchSize {
		batchSize = core.MaxBatchSize
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.RateLimit), 1)
	}

	mode := core.JobModeDryRun
	if opts.Execute {
		mode = core.JobModeExecute
	}
	summary := &Summary{
		Mode:      mode,
		OnlyStale: opts.OnlyStale,
		LastSKU:   opts.AfterSKU,
	}

	ix.logger.Info("sync run starting",
		"mode", mode, "onlyStale", opts.OnlyStale,
		"batchSize", batchSize, "limit", opts.Limit,
		"afterSKU", opts.AfterSKU,
		"provider", provider.Name(), "model", provider.Model())

	cursor := opts.AfterSKU

batches:
	for {
		if opts.Limit > 0 && summary.Processed >= int64(opts.Limit) {
			break
		}
		if ix.canceled(ctx, opts) {
			summary.Canceled = true
			break
		}

		pageLimit := batchSize
		if opts.Limit > 0 {
			if remaining := opts.Limit - int(summary.Processed); remaining < pageLimit {
				pageLimit = remaining
			}
		}

		cands, newCursor, err := ix.fetchBatch(ctx, provider, cursor, pageLimit, &opts)
		if err != nil {
			return summary, fmt.Errorf("failed to fetch batch after SKU %d: %w", cursor, err)
		}
		cursor = newCursor
		if len(cands) == 0 {
			// Catalog tail exhausted.
			break
		}
		summary.Batches++

		for _, cand := range cands {
			if ix.canceled(ctx, opts) {
				summary.Canceled = true
				break batches
			}

			item := ix.processItem(ctx, provider, limiter, cand, &opts, maxRetries, retryDelay, summary)

			cursor = cand.item.SKU
			summary.Processed++
			summary.LastSKU = cand.item.SKU

			if opts.OnItem != nil {
				opts.OnItem(item)
			}
			if opts.OnProgress != nil {
				opts.OnProgress(summary)
			}
		}
	}

	ix.logger.Info("sync run finished",
		"mode", mode, "processed", summary.Processed,
		"planned", summary.Planned, "inserted", summary.Inserted,
		"updated", summary.Updated, "unchanged", summary.Unchanged,
		"skipped", summary.Skipped, "errors", summary.Errors,
		"batches", summary.Batches, "lastSKU", summary.LastSKU,
		"canceled", summary.Canceled)

	return summary, nil
}

// canceled reports whether the run should stop at this safe point.
func (ix *Indexer) canceled(ctx context.Context, opts Options) bool {
	if ctx.Err() != nil {
		return true
	}
	return opts.ShouldCancel != nil && opts.ShouldCancel()
}

// fetchBatch returns the next batch of candidates with SKU > after, in
// ascending SKU order, joined against their current embedding rows. With
// OnlyStale set it keeps paging past fresh rows (advancing the returned
// cursor over them) until it finds at least one stale candidate or the
// catalog tail is exhausted, so the caller's cursor never stalls on a
// long run of up-to-date rows.
func (ix *Indexer) fetchBatch(ctx context.Context, provider ai.EmbeddingProvider, after core.SKUID, limit int, opts *Options) ([]candidate, core.SKUID, error) {
	cursor := after
	for {
		items, err := ix.catalog.ListBatch(ctx, cursor, limit, opts.Filter, opts.UpdatedSince)
		if err != nil {
			return nil, cursor, err
		}
		if len(items) == 0 {
			return nil, cursor, nil
		}

		skus := make([]core.SKUID, len(items))
		for i, item := range items {
			skus[i] = item.SKU
		}
		rows, err := ix.embeddings.GetMany(ctx, skus...)
		if err != nil {
			return nil, cursor, err
		}

		cands := make([]candidate, 0, len(items))
		for _, item := range items {
			row := rows[item.SKU]
			if opts.OnlyStale && !row.Stale(provider.Name(), provider.Model(), item.UpdatedAt) {
				// Fresh rows before the first candidate are safe to skip
				// permanently; past that point the caller's per-item
				// cursor takes over.
				if len(cands) == 0 {
					cursor = item.SKU
				}
				continue
			}
			cands = append(cands, candidate{item: item, row: row})
		}
		if len(cands) > 0 {
			return cands, cursor, nil
		}
		cursor = items[len(items)-1].SKU
	}
}

// processItem handles one candidate: compose, embed, classify, and (in
// execute mode) write. All failures are captured in the returned Item
// and the summary counters rather than returned.
func (ix *Indexer) processItem(ctx context.Context, provider ai.EmbeddingProvider, limiter *rate.Limiter, cand candidate, opts *Options, maxRetries int, retryDelay time.Duration, summary *Summary) *Item {
	item := &Item{SKU: cand.item.SKU}
	if cand.row != nil {
		item.HashBefore = cand.row.ContentHash
	}

	text, metadata := ix.composer.Compose(cand.item)
	if text == "" {
		summary.Skipped++
		item.Action = core.ItemActionSkip
		item.Reason = ReasonEmptyText
		return item
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return ix.itemError(item, summary, fmt.Errorf("rate limiter wait: %w", err))
		}
	}

	var vector []float32
	err := RetryWithBackoff(ctx, ix.logger.With("sku", cand.item.SKU), "embed", func() error {
		var embedErr error
		vector, embedErr = provider.Embed(ctx, text)
		return embedErr
	}, maxRetries, retryDelay)
	if err != nil {
		return ix.itemError(item, summary, fmt.Errorf("embedding failed for SKU %d: %w", cand.item.SKU, err))
	}
	if len(vector) != provider.Dimension() {
		return ix.itemError(item, summary, fmt.Errorf("SKU %d: %w: got %d, want %d",
			cand.item.SKU, ai.ErrDimensionMismatch, len(vector), provider.Dimension()))
	}

	rec := &core.EmbeddingRecord{
		SKU:             cand.item.SKU,
		SourceUpdatedAt: cand.item.UpdatedAt,
		Text:            text,
		Metadata:        metadata,
		ContentHash:     core.HashText(text),
		Provider:        provider.Name(),
		Model:           provider.Model(),
		Dim:             provider.Dimension(),
		Vector:          vector,
	}
	item.HashAfter = rec.ContentHash

	if !opts.Execute {
		ix.classifyDryRun(item, cand.row, rec, summary)
		return item
	}

	outcome, err := ix.embeddings.Upsert(ctx, rec)
	if err != nil {
		return ix.itemError(item, summary, fmt.Errorf("upsert failed for SKU %d: %w", cand.item.SKU, err))
	}
	switch outcome {
	case core.UpsertInserted:
		summary.Inserted++
		summary.Planned++
		item.Action = core.ItemActionInsert
	case core.UpsertUpdated:
		summary.Updated++
		summary.Planned++
		item.Action = core.ItemActionUpdate
	case core.UpsertUnchanged:
		summary.Unchanged++
		item.Action = core.ItemActionSkip
		item.Reason = ReasonUnchanged
	}
	return item
}

// classifyDryRun applies the same comparison the conditional upsert uses,
// against the pre-loaded row snapshot, without writing.
func (ix *Indexer) classifyDryRun(item *Item, row *core.EmbeddingRow, rec *core.EmbeddingRecord, summary *Summary) {
	switch {
	case row == nil:
		summary.Inserted++
		summary.Planned++
		item.Action = core.ItemActionInsert
	case row.Matches(rec):
		summary.Unchanged++
		item.Action = core.ItemActionSkip
		item.Reason = ReasonUnchanged
	default:
		summary.Updated++
		summary.Planned++
		item.Action = core.ItemActionUpdate
	}
}

func (ix *Indexer) itemError(item *Item, summary *Summary, err error) *Item {
	ix.logger.Warn("item processing failed", "sku", item.SKU, "error", err)
	summary.Errors++
	item.Action = core.ItemActionError
	item.Err = err
	return item
}
