package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	m, err := NewManager(fmt.Sprintf("redis://%s/0", mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestAcquireRunLockPreventsDoubleRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.AcquireRunLock(ctx, "source-1", "import", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := m.AcquireRunLock(ctx, "source-1", "import", time.Minute)
	require.NoError(t, err)
	assert.False(t, second, "a second instance must not acquire the same run lock")

	locked, err := m.IsRunLocked(ctx, "source-1", "import")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestReleaseRunLockAllowsReacquire(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AcquireRunLock(ctx, "source-2", "export", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.ReleaseRunLock(ctx, "source-2", "export"))

	locked, err := m.IsRunLocked(ctx, "source-2", "export")
	require.NoError(t, err)
	assert.False(t, locked)

	reacquired, err := m.AcquireRunLock(ctx, "source-2", "export", time.Minute)
	require.NoError(t, err)
	assert.True(t, reacquired)
}

func TestRunLockIsolatedPerDirection(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AcquireRunLock(ctx, "source-3", "import", time.Minute)
	require.NoError(t, err)

	exportLocked, err := m.AcquireRunLock(ctx, "source-3", "export", time.Minute)
	require.NoError(t, err)
	assert.True(t, exportLocked, "import and export locks for the same source must be independent")
}

func TestPublishSubscribeEntityInvalidate(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := m.SubscribeEntityInvalidate(ctx)
	// Give the subscription goroutine a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, m.PublishEntityInvalidate(context.Background(), "5213003700"))

	select {
	case nip := <-received:
		assert.Equal(t, "5213003700", nip)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for invalidation message")
	}
}
