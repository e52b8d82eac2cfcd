package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/storage"
)

func testRecord(sku core.SKUID, hash string, updatedAt time.Time) *core.EmbeddingRecord {
	return &core.EmbeddingRecord{
		SKU:             sku,
		SourceUpdatedAt: updatedAt,
		Text:            "some product text",
		Metadata:        map[string]string{"name": "some product"},
		ContentHash:     hash,
		Provider:        "mock",
		Model:           "test-model",
		Dim:             3,
		Vector:          []float32{0.1, 0.2, 0.3},
	}
}

func TestEmbeddingUpsertOutcomes(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	// First write inserts
	outcome, err := repos.Embeddings.Upsert(ctx, testRecord(7, "hash-a", now))
	require.NoError(t, err)
	assert.Equal(t, core.UpsertInserted, outcome)

	// Identical write leaves the row untouched
	outcome, err = repos.Embeddings.Upsert(ctx, testRecord(7, "hash-a", now))
	require.NoError(t, err)
	assert.Equal(t, core.UpsertUnchanged, outcome)

	// Changed hash overwrites
	outcome, err = repos.Embeddings.Upsert(ctx, testRecord(7, "hash-b", now))
	require.NoError(t, err)
	assert.Equal(t, core.UpsertUpdated, outcome)

	// Changed source timestamp overwrites even with the same hash
	outcome, err = repos.Embeddings.Upsert(ctx, testRecord(7, "hash-b", now.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, core.UpsertUpdated, outcome)

	row, err := repos.Embeddings.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "hash-b", row.ContentHash)
	assert.True(t, row.SourceUpdatedAt.Equal(now.Add(time.Minute)))

	count, err := repos.Embeddings.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "repeated upserts must not create extra rows")
}

func TestEmbeddingGetMany(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	for _, sku := range []core.SKUID{1, 2, 4} {
		_, err := repos.Embeddings.Upsert(ctx, testRecord(sku, "hash", now))
		require.NoError(t, err)
	}

	rows, err := repos.Embeddings.GetMany(ctx, 1, 2, 3, 4)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Contains(t, rows, core.SKUID(1))
	assert.NotContains(t, rows, core.SKUID(3), "missing rows are simply absent")
}

func TestEmbeddingDelete(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()

	_, err = repos.Embeddings.Upsert(ctx, testRecord(9, "hash", time.Now().UTC()))
	require.NoError(t, err)

	// Deleting a mix of present and missing SKUs succeeds
	require.NoError(t, repos.Embeddings.Delete(ctx, 9, 100))

	_, err = repos.Embeddings.Get(ctx, 9)
	assert.Equal(t, storage.ErrNotFound, err)
}

func TestEmbeddingFindSimilar(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	vectors := map[core.SKUID][]float32{
		1: {1, 0, 0},
		2: {0.9, 0.1, 0},
		3: {0, 1, 0},
	}
	for sku, vec := range vectors {
		rec := testRecord(sku, "hash", now)
		rec.Vector = vec
		_, err := repos.Embeddings.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	matches, err := repos.Embeddings.FindSimilar(ctx, []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, core.SKUID(1), matches[0].SKU, "best match first")
	assert.Greater(t, matches[0].Score, matches[1].Score)
}
