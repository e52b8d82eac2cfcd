package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catadex/catadex/ai/mock"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/storage/badger"
)

const testDim = 8

func setupIndexer(t *testing.T) (*Indexer, *badger.MemoryRepositories) {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(repos.Close)
	return New(repos.Catalog, repos.Embeddings, nil), repos
}

func seedItems(t *testing.T, repos *badger.MemoryRepositories, n int) []*core.CatalogItem {
	t.Helper()
	items := make([]*core.CatalogItem, n)
	for i := range items {
		items[i] = &core.CatalogItem{
			Name:     "Product",
			Brand:    "Brand",
			Category: "Category",
		}
	}
	added, err := repos.Catalog.AddItems(context.Background(), items...)
	require.NoError(t, err)
	return added
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	ix, repos := setupIndexer(t)
	seedItems(t, repos, 4)

	provider := mock.NewProvider("test-model", testDim)
	summary, err := ix.Run(context.Background(), provider, Options{OnlyStale: true})
	require.NoError(t, err)

	assert.Equal(t, core.JobModeDryRun, summary.Mode)
	assert.Equal(t, int64(4), summary.Processed)
	assert.Equal(t, int64(4), summary.Planned)
	assert.Equal(t, int64(4), summary.Inserted)

	count, err := repos.Embeddings.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count, "dry-run must not write")
}

func TestRun_ExecuteIsIdempotent(t *testing.T) {
	ix, repos := setupIndexer(t)
	seedItems(t, repos, 5)

	provider := mock.NewProvider("test-model", testDim)

	first, err := ix.Run(context.Background(), provider, Options{Execute: true, OnlyStale: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.Inserted)
	assert.Equal(t, int64(0), first.Errors)

	count, err := repos.Embeddings.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// Nothing is stale anymore, so a second run does no work
	second, err := ix.Run(context.Background(), provider, Options{Execute: true, OnlyStale: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Processed)
	assert.Equal(t, int64(0), second.Inserted)

	// Without the staleness filter everything is re-examined but
	// untouched: same inputs classify as unchanged both times.
	third, err := ix.Run(context.Background(), provider, Options{Execute: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), third.Processed)
	assert.Equal(t, int64(5), third.Unchanged)
	assert.Equal(t, int64(0), third.Inserted)
	assert.Equal(t, int64(0), third.Updated)
}

func TestRun_DryRunPredictsExecute(t *testing.T) {
	// Catalog has SKUs 1..5; only the third lacks an up-to-date row.
	ix, repos := setupIndexer(t)
	added := seedItems(t, repos, 5)

	ctx := context.Background()
	provider := mock.NewProvider("test-model", testDim)

	// Embed everything, then invalidate the third item by touching it.
	_, err := ix.Run(ctx, provider, Options{Execute: true, OnlyStale: true})
	require.NoError(t, err)

	stale := added[2]
	stale.Description = "revised description"
	time.Sleep(2 * time.Millisecond)
	_, err = repos.Catalog.UpdateItems(ctx, stale)
	require.NoError(t, err)

	dry, err := ix.Run(ctx, provider, Options{OnlyStale: true, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), dry.Processed)
	assert.Equal(t, int64(1), dry.Planned)

	exec, err := ix.Run(ctx, provider, Options{Execute: true, OnlyStale: true, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, dry.Planned, exec.Inserted+exec.Updated, "execute must do exactly what dry-run planned")
	assert.Equal(t, int64(1), exec.Updated)
	assert.Equal(t, int64(0), exec.Inserted)

	count, err := repos.Embeddings.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestRun_MissingRowScenario(t *testing.T) {
	// Five items, four with up-to-date rows, one (the third) with none.
	ix, repos := setupIndexer(t)
	added := seedItems(t, repos, 5)

	ctx := context.Background()
	provider := mock.NewProvider("test-model", testDim)

	_, err := ix.Run(ctx, provider, Options{Execute: true, OnlyStale: true})
	require.NoError(t, err)
	require.NoError(t, repos.Embeddings.Delete(ctx, added[2].SKU))

	dry, err := ix.Run(ctx, provider, Options{OnlyStale: true, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), dry.Processed)
	assert.Equal(t, int64(1), dry.Planned)

	exec, err := ix.Run(ctx, provider, Options{Execute: true, OnlyStale: true, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), exec.Inserted)
	assert.Equal(t, int64(0), exec.Updated)

	count, err := repos.Embeddings.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestRun_ResumableFromCursor(t *testing.T) {
	ix, repos := setupIndexer(t)
	added := seedItems(t, repos, 6)

	ctx := context.Background()
	provider := mock.NewProvider("test-model", testDim)

	// First pass stops after three rows
	partial, err := ix.Run(ctx, provider, Options{Execute: true, OnlyStale: true, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(3), partial.Processed)
	assert.Equal(t, added[2].SKU, partial.LastSKU)

	// Resuming from the reported cursor finishes the rest exactly once
	rest, err := ix.Run(ctx, provider, Options{Execute: true, OnlyStale: true, AfterSKU: partial.LastSKU})
	require.NoError(t, err)
	assert.Equal(t, int64(3), rest.Processed)
	assert.Equal(t, int64(3), rest.Inserted)

	count, err := repos.Embeddings.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestRun_CooperativeCancel(t *testing.T) {
	ix, repos := setupIndexer(t)
	seedItems(t, repos, 10)

	processed := 0
	summary, err := ix.Run(context.Background(), mock.NewProvider("test-model", testDim), Options{
		Execute:   true,
		OnlyStale: true,
		BatchSize: 3,
		OnItem: func(item *Item) {
			processed++
		},
		ShouldCancel: func() bool {
			return processed >= 4
		},
	})
	require.NoError(t, err)

	assert.True(t, summary.Canceled)
	assert.Less(t, summary.Processed, int64(10))

	// Applied writes stay applied
	count, err := repos.Embeddings.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int(summary.Inserted), count)
}

func TestRun_ContextCancel(t *testing.T) {
	ix, repos := setupIndexer(t)
	seedItems(t, repos, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := ix.Run(ctx, mock.NewProvider("test-model", testDim), Options{Execute: true})
	require.NoError(t, err)
	assert.True(t, summary.Canceled)
	assert.Equal(t, int64(0), summary.Processed)

	count, err := repos.Embeddings.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRun_PerItemErrorsDoNotAbort(t *testing.T) {
	ix, repos := setupIndexer(t)
	added := seedItems(t, repos, 4)

	provider := mock.NewProvider("test-model", testDim)
	failSKU := added[1].SKU
	call := 0
	provider.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		call++
		if call == 2 {
			return nil, errors.New("provider exploded")
		}
		return mock.DeterministicVector(text, testDim), nil
	}

	var errored []core.SKUID
	summary, err := ix.Run(context.Background(), provider, Options{
		Execute:    true,
		OnlyStale:  true,
		MaxRetries: 1,
		OnItem: func(item *Item) {
			if item.Action == core.ItemActionError {
				errored = append(errored, item.SKU)
				assert.Error(t, item.Err)
			}
		},
	})
	require.NoError(t, err, "per-item failures must not abort the run")

	assert.Equal(t, int64(4), summary.Processed)
	assert.Equal(t, int64(1), summary.Errors)
	assert.Equal(t, int64(3), summary.Inserted)
	assert.Equal(t, []core.SKUID{failSKU}, errored)

	count, err := repos.Embeddings.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRun_BadVectorLength(t *testing.T) {
	ix, repos := setupIndexer(t)
	seedItems(t, repos, 2)

	provider := mock.NewProvider("test-model", testDim)
	provider.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		return make([]float32, testDim-1), nil
	}

	summary, err := ix.Run(context.Background(), provider, Options{Execute: true, MaxRetries: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Errors)
	assert.Equal(t, int64(0), summary.Inserted)
}

func TestRun_EmptyTextSkipped(t *testing.T) {
	ix, repos := setupIndexer(t)
	// An item whose only field never reaches the composer text
	_, err := repos.Catalog.AddItems(context.Background(), &core.CatalogItem{Name: " "})
	require.NoError(t, err)

	provider := mock.NewProvider("test-model", testDim)

	var reasons []string
	summary, err := ix.Run(context.Background(), provider, Options{
		Execute: true,
		OnItem: func(item *Item) {
			reasons = append(reasons, item.Reason)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Skipped)
	assert.Equal(t, []string{ReasonEmptyText}, reasons)
	assert.Equal(t, 0, provider.CallCount(), "empty text must not reach the provider")
}

func TestRun_FilterRestrictsScan(t *testing.T) {
	ix, repos := setupIndexer(t)
	ctx := context.Background()

	_, err := repos.Catalog.AddItems(ctx,
		&core.CatalogItem{Name: "Boots", Brand: "Northpeak"},
		&core.CatalogItem{Name: "Jacket", Brand: "Stratus"},
		&core.CatalogItem{Name: "Pack", Brand: "Northpeak"},
	)
	require.NoError(t, err)

	summary, err := ix.Run(ctx, mock.NewProvider("test-model", testDim), Options{
		Execute:   true,
		OnlyStale: true,
		Filter:    core.CatalogFilter{Equals: map[string]string{"brand": "Northpeak"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Processed)
	assert.Equal(t, int64(2), summary.Inserted)
}

func TestRun_NilProvider(t *testing.T) {
	ix, _ := setupIndexer(t)
	_, err := ix.Run(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrProviderRequired)
}
