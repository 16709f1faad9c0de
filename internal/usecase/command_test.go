package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedgen/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRunner_Run(t *testing.T) {
	locker := newFakeLocker()
	runner := NewCommandRunner(locker, time.Hour, discardLogger())
	calls := 0

	err := runner.Run(context.Background(), "update-feed", func(context.Context) error {
		calls++
		assert.True(t, locker.held["feedgen:update-feed"])
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"feedgen:update-feed"}, locker.released)
}

func TestCommandRunner_Run_Contention(t *testing.T) {
	locker := newFakeLocker()
	locker.held["feedgen:feed-zip"] = true
	storage := newMemStorage()
	storage.put(domain.PublicKey(domain.FeedExample2, domain.CompressionNone), "feed")
	zip := NewZipUseCase(storage, []domain.FeedName{domain.FeedExample2}, t.TempDir(), 0, discardLogger())
	runner := NewCommandRunner(locker, time.Hour, discardLogger())

	err := runner.Run(context.Background(), "feed-zip", zip.Run)

	require.NoError(t, err)
	assert.Equal(t, []string{"feed_example2_.yml"}, storage.keys())
	assert.Empty(t, locker.released)
}

func TestCommandRunner_Run_JobErrorReleasesLock(t *testing.T) {
	locker := newFakeLocker()
	runner := NewCommandRunner(locker, time.Hour, discardLogger())
	jobErr := errors.New("build failed")

	err := runner.Run(context.Background(), "update-feed", func(context.Context) error { return jobErr })

	require.Error(t, err)
	assert.ErrorIs(t, err, jobErr)
	assert.False(t, locker.held["feedgen:update-feed"])
}

func TestCommandRunner_Run_LockError(t *testing.T) {
	locker := newFakeLocker()
	locker.err = errors.New("redis is down")
	runner := NewCommandRunner(locker, time.Hour, discardLogger())

	err := runner.Run(context.Background(), "feed-gzip", func(context.Context) error {
		t.Fatal("job must not run")
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis is down")
}
