//go:build unix

package lock

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLocker_TryLock(t *testing.T) {
	dir := t.TempDir()
	locker, err := NewFileLocker(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	ctx := context.Background()

	release, acquired, err := locker.TryLock(ctx, "feedgen:update-feed", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)
	assert.FileExists(t, filepath.Join(dir, "feedgen_update-feed.lock"))

	_, acquired, err = locker.TryLock(ctx, "feedgen:update-feed", time.Hour)
	require.NoError(t, err)
	assert.False(t, acquired)

	otherRelease, acquired, err := locker.TryLock(ctx, "feedgen:feed-zip", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, otherRelease(ctx))

	require.NoError(t, release(ctx))
	release, acquired, err = locker.TryLock(ctx, "feedgen:update-feed", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, release(ctx))
}

func newLeaseLocker(t *testing.T) (*FileLocker, *time.Time) {
	t.Helper()
	locker, err := NewFileLocker(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	return locker, &now
}

func TestFileLocker_RecordsLeaseDeadline(t *testing.T) {
	locker, now := newLeaseLocker(t)
	ctx := context.Background()

	release, acquired, err := locker.TryLock(ctx, "feedgen:feed-gzip", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)
	defer release(ctx)

	data, err := os.ReadFile(locker.path("feedgen:feed-gzip"))
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(now.Add(time.Hour).UnixNano(), 10), string(data))
}

func TestFileLocker_ExpiredLeaseIsTakenOver(t *testing.T) {
	locker, now := newLeaseLocker(t)
	ctx := context.Background()

	stuckRelease, acquired, err := locker.TryLock(ctx, "feedgen:update-feed", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	*now = now.Add(30 * time.Minute)
	_, acquired, err = locker.TryLock(ctx, "feedgen:update-feed", time.Hour)
	require.NoError(t, err)
	assert.False(t, acquired)

	*now = now.Add(time.Hour)
	release, acquired, err := locker.TryLock(ctx, "feedgen:update-feed", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	_, acquired, err = locker.TryLock(ctx, "feedgen:update-feed", time.Hour)
	require.NoError(t, err)
	assert.False(t, acquired)

	assert.ErrorIs(t, stuckRelease(ctx), ErrLockLost)
	require.NoError(t, release(ctx))
}

func TestFileLocker_ZeroTTLNeverExpires(t *testing.T) {
	locker, now := newLeaseLocker(t)
	ctx := context.Background()

	release, acquired, err := locker.TryLock(ctx, "feedgen:feed-zip", 0)
	require.NoError(t, err)
	require.True(t, acquired)
	defer release(ctx)

	*now = now.Add(1000 * time.Hour)
	_, acquired, err = locker.TryLock(ctx, "feedgen:feed-zip", time.Hour)
	require.NoError(t, err)
	assert.False(t, acquired)
}
