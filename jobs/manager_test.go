package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/catadex/catadex/ai"
	"github.com/catadex/catadex/ai/mock"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/indexer"
	"github.com/catadex/catadex/storage"
	"github.com/catadex/catadex/storage/badger"
)

const testDim = 8

func mockFactory(params core.JobParams) (ai.EmbeddingProvider, error) {
	return mock.NewProvider(params.Model, params.Dim), nil
}

func setupManager(t *testing.T, factory ProviderFactory, opts ...Option) (*Manager, *badger.MemoryRepositories) {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(repos.Close)

	if factory == nil {
		factory = mockFactory
	}
	ix := indexer.New(repos.Catalog, repos.Embeddings, nil)
	manager, err := NewManager(repos.Jobs, repos.Locks, ix, factory, opts...)
	require.NoError(t, err)
	t.Cleanup(manager.Release)

	return manager, repos
}

func seedCatalog(t *testing.T, repos *badger.MemoryRepositories, n int) {
	t.Helper()
	items := make([]*core.CatalogItem, n)
	for i := range items {
		items[i] = &core.CatalogItem{Name: "Product", Brand: "Brand"}
	}
	_, err := repos.Catalog.AddItems(context.Background(), items...)
	require.NoError(t, err)
}

func testParams(mode core.JobMode) core.JobParams {
	return core.JobParams{
		Mode:      mode,
		OnlyStale: true,
		Provider:  "mock",
		Model:     "test-model",
		Dim:       testDim,
	}
}

func waitTerminal(t *testing.T, manager *Manager, jobID core.JobID) *core.SyncJob {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		detail, err := manager.GetJobDetail(context.Background(), jobID, 0)
		require.NoError(t, err)
		if detail.Job.Status.Terminal() {
			return detail.Job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %d never reached a terminal state", jobID)
	return nil
}

func TestManager_CreateConflict(t *testing.T) {
	manager, _ := setupManager(t, nil)
	ctx := context.Background()

	first, err := manager.CreateJob(ctx, testParams(core.JobModeDryRun), "tester", "")
	require.NoError(t, err)
	require.False(t, first.Conflict)
	require.NotNil(t, first.Job)

	// Second creation while the first is still queued reports the
	// blocking job instead of writing a row.
	second, err := manager.CreateJob(ctx, testParams(core.JobModeDryRun), "tester", "")
	require.NoError(t, err)
	assert.True(t, second.Conflict)
	assert.Equal(t, first.Job.ID, second.ActiveJobID)

	list, err := manager.ListJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestManager_ConcurrentCreateSingleWinner(t *testing.T) {
	manager, _ := setupManager(t, nil)

	var created, conflicted atomic.Int64
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			result, err := manager.CreateJob(context.Background(), testParams(core.JobModeDryRun), "tester", "")
			if err != nil {
				return err
			}
			if result.Conflict {
				conflicted.Add(1)
			} else {
				created.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), created.Load(), "exactly one creation may win")
	assert.Equal(t, int64(7), conflicted.Load())
}

func TestManager_RunToSuccess(t *testing.T) {
	manager, repos := setupManager(t, nil)
	seedCatalog(t, repos, 7)

	ctx := context.Background()
	result, err := manager.CreateJob(ctx, testParams(core.JobModeExecute), "tester", "10.0.0.1")
	require.NoError(t, err)
	require.False(t, result.Conflict)

	manager.Enqueue(result.Job.ID)
	job := waitTerminal(t, manager, result.Job.ID)

	assert.Equal(t, core.JobStatusSucceeded, job.Status)
	assert.Equal(t, int64(7), job.Processed)
	assert.Equal(t, int64(7), job.Inserted)
	assert.False(t, job.StartedAt.IsZero())
	assert.False(t, job.FinishedAt.IsZero())
	assert.Empty(t, job.ErrorSummary)

	count, err := repos.Embeddings.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	// Audit items recorded for every insert
	detail, err := manager.GetJobDetail(ctx, job.ID, 100)
	require.NoError(t, err)
	assert.Len(t, detail.Items, 7)
	for _, item := range detail.Items {
		assert.Equal(t, core.ItemActionInsert, item.Action)
		assert.NotEmpty(t, item.HashAfter)
	}

	// The slot is free again
	next, err := manager.CreateJob(ctx, testParams(core.JobModeDryRun), "tester", "")
	require.NoError(t, err)
	assert.False(t, next.Conflict)
}

func TestManager_DryRunJobPersistsNoEmbeddings(t *testing.T) {
	manager, repos := setupManager(t, nil)
	seedCatalog(t, repos, 3)

	result, err := manager.CreateJob(context.Background(), testParams(core.JobModeDryRun), "tester", "")
	require.NoError(t, err)
	manager.Enqueue(result.Job.ID)

	job := waitTerminal(t, manager, result.Job.ID)
	assert.Equal(t, core.JobStatusSucceeded, job.Status)
	assert.Equal(t, int64(3), job.Processed)

	count, err := repos.Embeddings.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestManager_EnqueueDeduplicates(t *testing.T) {
	calls := atomic.Int64{}
	factory := func(params core.JobParams) (ai.EmbeddingProvider, error) {
		calls.Add(1)
		return mock.NewProvider(params.Model, params.Dim), nil
	}
	manager, repos := setupManager(t, factory)
	seedCatalog(t, repos, 2)

	result, err := manager.CreateJob(context.Background(), testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		manager.Enqueue(result.Job.ID)
	}
	waitTerminal(t, manager, result.Job.ID)
	manager.Wait()

	// Duplicate enqueues collapse: at most one provider construction for
	// the actual run (re-runs of a terminal job return before the factory).
	assert.Equal(t, int64(1), calls.Load())
}

func TestManager_CancelBeforeRun(t *testing.T) {
	manager, _ := setupManager(t, nil)
	ctx := context.Background()

	result, err := manager.CreateJob(ctx, testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)

	require.NoError(t, manager.CancelJob(ctx, result.Job.ID))
	manager.Enqueue(result.Job.ID)

	job := waitTerminal(t, manager, result.Job.ID)
	assert.Equal(t, core.JobStatusCanceled, job.Status)
	assert.Equal(t, int64(0), job.Processed)
	assert.False(t, job.FinishedAt.IsZero())
}

func TestManager_CancelMidRun(t *testing.T) {
	// Throttle progress to every item so the cancel flag is re-read often.
	manager, repos := setupManager(t, nil, WithProgressEvery(1))
	seedCatalog(t, repos, 50)

	ctx := context.Background()
	result, err := manager.CreateJob(ctx, testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)
	jobID := result.Job.ID

	// Slow the provider down so the cancel lands mid-run
	release := make(chan struct{})
	var once atomic.Bool
	factoryCalled := make(chan struct{})
	manager.providers = func(params core.JobParams) (ai.EmbeddingProvider, error) {
		provider := mock.NewProvider(params.Model, params.Dim)
		provider.EmbedFunc = func(embedCtx context.Context, text string) ([]float32, error) {
			if once.CompareAndSwap(false, true) {
				close(factoryCalled)
				<-release
			}
			return mock.DeterministicVector(text, params.Dim), nil
		}
		return provider, nil
	}

	manager.Enqueue(jobID)

	<-factoryCalled
	require.NoError(t, manager.CancelJob(ctx, jobID))
	close(release)

	job := waitTerminal(t, manager, jobID)
	assert.Equal(t, core.JobStatusCanceled, job.Status)
	assert.Less(t, job.Processed, int64(50))

	// Writes applied before the cancel stay applied
	count, err := repos.Embeddings.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int(job.Inserted), count)
}

func TestManager_ProviderFailureFailsJob(t *testing.T) {
	factory := func(params core.JobParams) (ai.EmbeddingProvider, error) {
		return nil, errors.New("dial failed: Bearer secret-token-value rejected")
	}
	manager, repos := setupManager(t, factory)
	seedCatalog(t, repos, 2)

	result, err := manager.CreateJob(context.Background(), testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)
	manager.Enqueue(result.Job.ID)

	job := waitTerminal(t, manager, result.Job.ID)
	assert.Equal(t, core.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.ErrorSummary)
	assert.NotContains(t, job.ErrorSummary, "secret-token-value", "error summary must be redacted")
	assert.False(t, job.FinishedAt.IsZero())

	// A failed job frees the single-flight slot
	next, err := manager.CreateJob(context.Background(), testParams(core.JobModeDryRun), "tester", "")
	require.NoError(t, err)
	assert.False(t, next.Conflict)
}

func TestManager_ResumesInterruptedRun(t *testing.T) {
	manager, repos := setupManager(t, nil)
	ctx := context.Background()

	items := make([]*core.CatalogItem, 5)
	for i := range items {
		items[i] = &core.CatalogItem{Name: "Product", Brand: "Brand"}
	}
	added, err := repos.Catalog.AddItems(ctx, items...)
	require.NoError(t, err)

	result, err := manager.CreateJob(ctx, testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)
	jobID := result.Job.ID

	// Shape the row like a run that died after the third item: running
	// status with persisted counters and the cursor at the third SKU.
	job, err := repos.Jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	job.Status = core.JobStatusRunning
	job.StartedAt = time.Now().UTC()
	job.Processed = 3
	job.Inserted = 3
	job.LastSKU = added[2].SKU
	require.NoError(t, repos.Jobs.UpdateJob(ctx, job))

	manager.Enqueue(jobID)
	final := waitTerminal(t, manager, jobID)

	assert.Equal(t, core.JobStatusSucceeded, final.Status)
	assert.Equal(t, int64(5), final.Processed, "resumed run adds to the persisted counters")
	assert.Equal(t, int64(5), final.Inserted)
	assert.Equal(t, added[4].SKU, final.LastSKU)

	// Only the rows after the cursor were actually embedded.
	count, err := repos.Embeddings.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	_, err = repos.Embeddings.Get(ctx, added[0].SKU)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// failingItemRepo rejects every audit item write.
type failingItemRepo struct {
	storage.JobRepository
}

func (r *failingItemRepo) AddJobItems(ctx context.Context, items ...*core.SyncJobItem) error {
	return errors.New("item write rejected")
}

func TestManager_AuditFlushFailureFailsJob(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(repos.Close)
	seedCatalog(t, repos, 3)

	ix := indexer.New(repos.Catalog, repos.Embeddings, nil)
	manager, err := NewManager(&failingItemRepo{JobRepository: repos.Jobs}, repos.Locks, ix, mockFactory,
		WithItemFlushSize(1))
	require.NoError(t, err)
	t.Cleanup(manager.Release)

	result, err := manager.CreateJob(context.Background(), testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)
	manager.Enqueue(result.Job.ID)

	job := waitTerminal(t, manager, result.Job.ID)
	assert.Equal(t, core.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorSummary, "record job items")
	assert.Less(t, job.Processed, int64(3), "run stops once items can no longer be recorded")
}

func TestManager_CancelTerminalJobRejected(t *testing.T) {
	manager, repos := setupManager(t, nil)
	seedCatalog(t, repos, 1)

	result, err := manager.CreateJob(context.Background(), testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)
	manager.Enqueue(result.Job.ID)
	waitTerminal(t, manager, result.Job.ID)

	err = manager.CancelJob(context.Background(), result.Job.ID)
	assert.ErrorIs(t, err, ErrJobNotActive)
}

func TestManager_ItemFlushing(t *testing.T) {
	// A flush size smaller than the item count forces multiple flushes.
	manager, repos := setupManager(t, nil, WithItemFlushSize(2), WithProgressEvery(2))
	seedCatalog(t, repos, 5)

	result, err := manager.CreateJob(context.Background(), testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)
	manager.Enqueue(result.Job.ID)
	job := waitTerminal(t, manager, result.Job.ID)

	require.Equal(t, core.JobStatusSucceeded, job.Status)
	detail, err := manager.GetJobDetail(context.Background(), job.ID, 100)
	require.NoError(t, err)
	assert.Len(t, detail.Items, 5, "all items must land across flushes")
}
