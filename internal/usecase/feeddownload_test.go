package usecase

import (
	"context"
	"io"
	"testing"

	"feedgen/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedDownload_Open(t *testing.T) {
	storage := newMemStorage()
	storage.put(domain.PublicKey(domain.FeedExample, domain.CompressionNone), "public")
	storage.put(domain.TmpKey(domain.FeedExample, domain.CompressionNone), "in progress")
	uc := NewFeedDownloadUseCase(storage, nil, []domain.FeedName{domain.FeedExample})

	r, err := uc.Open(context.Background(), domain.FeedExample, domain.CompressionNone)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "public", string(data))

	info, err := uc.Stat(context.Background(), domain.FeedExample, domain.CompressionNone)
	require.NoError(t, err)
	assert.EqualValues(t, 6, info.Size)
}

func TestFeedDownload_Unsupported(t *testing.T) {
	storage := newMemStorage()
	storage.put(domain.PublicKey(domain.FeedExample, domain.CompressionZip), "stray archive")
	uc := NewFeedDownloadUseCase(storage, []domain.FeedName{domain.FeedExample2}, []domain.FeedName{domain.FeedExample})

	assert.True(t, uc.Supports(domain.FeedExample, domain.CompressionGzip))
	assert.False(t, uc.Supports(domain.FeedExample, domain.CompressionZip))

	_, err := uc.Open(context.Background(), domain.FeedExample, domain.CompressionZip)
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)
	_, err = uc.Stat(context.Background(), domain.FeedExample2, domain.CompressionNone)
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)
}
