package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAcquireRelease(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()

	ok, err := repos.Locks.Acquire(ctx, "jobs:create", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Another owner is rejected while the lock is held
	ok, err = repos.Locks.Acquire(ctx, "jobs:create", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// The holder can re-acquire, which extends the deadline
	ok, err = repos.Locks.Acquire(ctx, "jobs:create", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repos.Locks.Release(ctx, "jobs:create", "worker-a"))

	ok, err = repos.Locks.Acquire(ctx, "jobs:create", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockExpiry(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()

	ok, err := repos.Locks.Acquire(ctx, "jobs:execute", "worker-a", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	// An expired lock is up for grabs
	ok, err = repos.Locks.Acquire(ctx, "jobs:execute", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockNamesIndependent(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()

	ok, err := repos.Locks.Acquire(ctx, "jobs:create", "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repos.Locks.Acquire(ctx, "jobs:execute", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "different lock names must not contend")
}

func TestLockReleaseByNonOwner(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()

	ok, err := repos.Locks.Acquire(ctx, "jobs:create", "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Non-owner release is a no-op
	require.NoError(t, repos.Locks.Release(ctx, "jobs:create", "worker-b"))

	ok, err = repos.Locks.Acquire(ctx, "jobs:create", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock must still be held by worker-a")
}
