package catadex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catadex/catadex/ai"
	"github.com/catadex/catadex/ai/mock"
	"github.com/catadex/catadex/compose"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/indexer"
)

const testDim = 16

func mockFactory(params core.JobParams) (ai.EmbeddingProvider, error) {
	return mock.NewProvider(params.Model, params.Dim), nil
}

func openTestPlatform(t *testing.T) *Platform {
	t.Helper()
	platform, err := Open("", WithProviderFactory(mockFactory))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, platform.Close())
	})
	return platform
}

func seedItems(t *testing.T, platform *Platform) []*core.CatalogItem {
	t.Helper()
	added, err := platform.Catalog().AddItems(context.Background(),
		&core.CatalogItem{Name: "Trail Tent", Brand: "Northpeak", Category: "Camping",
			Description: "Two-person backpacking tent"},
		&core.CatalogItem{Name: "Summit Pack", Brand: "Northpeak", Category: "Packs",
			Description: "40 liter alpine pack"},
		&core.CatalogItem{Name: "Steel Mug", Brand: "Camperia", Category: "Kitchen",
			Description: "Insulated camp mug"},
	)
	require.NoError(t, err)
	return added
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

func waitForJob(t *testing.T, platform *Platform, jobID core.JobID) *core.SyncJob {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		detail, err := platform.Jobs().GetJobDetail(context.Background(), jobID, 0)
		require.NoError(t, err)
		if detail.Job.Status.Terminal() {
			return detail.Job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %d never finished", jobID)
	return nil
}

func TestPlatformSyncJobEndToEnd(t *testing.T) {
	platform := openTestPlatform(t)
	items := seedItems(t, platform)
	ctx := context.Background()

	result, err := platform.Jobs().CreateJob(ctx, testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)
	require.False(t, result.Conflict)

	platform.Jobs().Enqueue(result.Job.ID)
	job := waitForJob(t, platform, result.Job.ID)

	assert.Equal(t, core.JobStatusSucceeded, job.Status)
	assert.Equal(t, int64(len(items)), job.Processed)
	assert.Equal(t, int64(len(items)), job.Inserted)

	count, err := platform.Embeddings().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(items), count)

	// A second run over an unchanged catalog does nothing
	again, err := platform.Jobs().CreateJob(ctx, testParams(core.JobModeExecute), "tester", "")
	require.NoError(t, err)
	require.False(t, again.Conflict)
	platform.Jobs().Enqueue(again.Job.ID)
	job = waitForJob(t, platform, again.Job.ID)

	assert.Equal(t, core.JobStatusSucceeded, job.Status)
	assert.Equal(t, int64(0), job.Processed)
}

func TestPlatformDirectIndexerRun(t *testing.T) {
	platform := openTestPlatform(t)
	items := seedItems(t, platform)
	ctx := context.Background()

	provider := mock.NewProvider("test-model", testDim)

	// Dry run plans every row without writing
	dry, err := platform.Indexer().Run(ctx, provider, indexer.Options{OnlyStale: true})
	require.NoError(t, err)
	assert.Equal(t, int64(len(items)), dry.Planned)

	count, err := platform.Embeddings().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Execute applies exactly what the dry run planned
	exec, err := platform.Indexer().Run(ctx, provider, indexer.Options{OnlyStale: true, Execute: true})
	require.NoError(t, err)
	assert.Equal(t, dry.Planned, exec.Inserted)

	count, err = platform.Embeddings().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(items), count)
}

func TestPlatformSearchRoundTrip(t *testing.T) {
	platform := openTestPlatform(t)
	items := seedItems(t, platform)
	ctx := context.Background()

	provider := mock.NewProvider("test-model", testDim)
	_, err := platform.Indexer().Run(ctx, provider, indexer.Options{OnlyStale: true, Execute: true})
	require.NoError(t, err)

	searcher, err := platform.NewSearcher(testParams(core.JobModeDryRun))
	require.NoError(t, err)

	// Querying with an item's exact composed text embeds to the stored
	// vector, so that item comes back as the top hit.
	text, _ := compose.NewTextComposer().Compose(items[0])
	results, err := searcher.Find(ctx, text, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, items[0].SKU, results[0].Item.SKU)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestPlatformPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	platform, err := Open(dir, WithProviderFactory(mockFactory))
	require.NoError(t, err)
	items := seedItems(t, platform)

	provider := mock.NewProvider("test-model", testDim)
	_, err = platform.Indexer().Run(context.Background(), provider, indexer.Options{OnlyStale: true, Execute: true})
	require.NoError(t, err)
	require.NoError(t, platform.Close())

	reopened, err := Open(dir, WithProviderFactory(mockFactory))
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Embeddings().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(items), count)

	item, err := reopened.Catalog().GetItem(context.Background(), items[0].SKU)
	require.NoError(t, err)
	assert.Equal(t, "Trail Tent", item.Name)
}
