package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"feedgen/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) (*FSGateway, string) {
	t.Helper()
	root := t.TempDir()
	gw, err := NewFSGateway(root, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return gw, root
}

func writeObject(t *testing.T, gw *FSGateway, key, data string) {
	t.Helper()
	w, err := gw.OpenWrite(context.Background(), key)
	require.NoError(t, err)
	_, err = io.WriteString(w, data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readObject(t *testing.T, gw *FSGateway, key string) string {
	t.Helper()
	r, err := gw.OpenRead(context.Background(), key)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestFSGateway_WriteVisibleOnlyAfterClose(t *testing.T) {
	gw, root := newTestFS(t)
	ctx := context.Background()

	w, err := gw.OpenWrite(ctx, "feed_example_.yml")
	require.NoError(t, err)
	_, err = io.WriteString(w, "<yml_catalog/>")
	require.NoError(t, err)

	_, err = gw.OpenRead(ctx, "feed_example_.yml")
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)

	require.NoError(t, w.Close())
	assert.Equal(t, "<yml_catalog/>", readObject(t, gw, "feed_example_.yml"))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFSGateway_AbortDiscardsPartialObject(t *testing.T) {
	gw, root := newTestFS(t)

	w, err := gw.OpenWrite(context.Background(), "new_feed_example_.yml")
	require.NoError(t, err)
	_, err = io.WriteString(w, "partial")
	require.NoError(t, err)
	aborter, ok := w.(interface{ CloseWithError(error) error })
	require.True(t, ok)
	require.NoError(t, aborter.CloseWithError(errors.New("render failed")))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFSGateway_DeleteCopyPublish(t *testing.T) {
	gw, _ := newTestFS(t)
	ctx := context.Background()
	writeObject(t, gw, "new_feed_example_.yml", "new")
	writeObject(t, gw, "feed_example_.yml", "old")

	assert.ErrorIs(t, gw.Delete(ctx, "missing"), domain.ErrObjectNotFound)

	require.NoError(t, gw.Copy(ctx, "feed_example_.yml", "feed_backup_.yml"))
	assert.Equal(t, "old", readObject(t, gw, "feed_backup_.yml"))
	assert.ErrorIs(t, gw.Copy(ctx, "missing", "other"), domain.ErrObjectNotFound)

	require.NoError(t, gw.Publish(ctx, "new_feed_example_.yml", "feed_example_.yml"))
	assert.Equal(t, "new", readObject(t, gw, "feed_example_.yml"))
	_, err := gw.Head(ctx, "new_feed_example_.yml")
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)

	require.NoError(t, gw.Delete(ctx, "feed_backup_.yml"))
	_, err = gw.OpenRead(ctx, "feed_backup_.yml")
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)
}

func TestFSGateway_Head(t *testing.T) {
	gw, _ := newTestFS(t)
	ctx := context.Background()
	writeObject(t, gw, "feed_example_.yml.gz", "gzip bytes")

	info, err := gw.Head(ctx, "feed_example_.yml.gz")
	require.NoError(t, err)
	assert.Equal(t, "feed_example_.yml.gz", info.Key)
	assert.EqualValues(t, 10, info.Size)
	assert.Equal(t, "application/gzip", info.ContentType)
	assert.Len(t, info.ETag, 32)

	again, err := gw.Head(ctx, "feed_example_.yml.gz")
	require.NoError(t, err)
	assert.Equal(t, info.ETag, again.ETag)

	writeObject(t, gw, "feed_example_.yml.gz", "other gzip bytes")
	changed, err := gw.Head(ctx, "feed_example_.yml.gz")
	require.NoError(t, err)
	assert.NotEqual(t, info.ETag, changed.ETag)
}

func TestFSGateway_InvalidKey(t *testing.T) {
	gw, _ := newTestFS(t)
	ctx := context.Background()

	for _, key := range []string{"", "..", "../escape", "dir/key", ".hidden"} {
		_, err := gw.OpenRead(ctx, key)
		assert.ErrorIs(t, err, domain.ErrStorageIO, key)
		_, err = gw.OpenWrite(ctx, key)
		assert.ErrorIs(t, err, domain.ErrStorageIO, key)
	}
}
