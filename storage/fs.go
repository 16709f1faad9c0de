package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"feedgen/internal/domain"

	"github.com/zeebo/blake3"
)

// FSGateway хранит фиды файлами в локальном каталоге. Запись идет во
// вспомогательный файл и переименовывается в ключ при Close, поэтому
// читатели никогда не видят частично записанный объект.
type FSGateway struct {
	root string
	log  *slog.Logger

	mu    sync.Mutex
	etags map[string]etagEntry
}

type etagEntry struct {
	size    int64
	modTime time.Time
	etag    string
}

// NewFSGateway создает хранилище в каталоге root, создавая его при необходимости.
func NewFSGateway(root string, log *slog.Logger) (*FSGateway, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage.fs.New: %w: %w", domain.ErrStorageIO, err)
	}
	log.Info("Initializing filesystem feed storage",
		slog.String("component", "storage"),
		slog.String("root", root),
	)
	return &FSGateway{
		root:  root,
		log:   log.With(slog.String("component", "storage")),
		etags: make(map[string]etagEntry),
	}, nil
}

func (g *FSGateway) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: invalid key %q", domain.ErrStorageIO, key)
	}
	return filepath.Join(g.root, key), nil
}

// OpenRead открывает файл объекта на чтение.
func (g *FSGateway) OpenRead(_ context.Context, key string) (io.ReadCloser, error) {
	const op = "storage.fs.OpenRead"
	path, err := g.path(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, key, mapFSError(err))
	}
	return f, nil
}

// OpenWrite создает вспомогательный файл в том же каталоге. Объект
// появляется под ключом только после успешного Close.
func (g *FSGateway) OpenWrite(_ context.Context, key string) (io.WriteCloser, error) {
	const op = "storage.fs.OpenWrite"
	path, err := g.path(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f, err := os.CreateTemp(g.root, "."+key+"-*.part")
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, key, mapFSError(err))
	}
	return &fsWriter{f: f, path: path, key: key}, nil
}

// Delete удаляет файл объекта.
func (g *FSGateway) Delete(_ context.Context, key string) error {
	const op = "storage.fs.Delete"
	path, err := g.path(key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%s: %s: %w", op, key, mapFSError(err))
	}
	return nil
}

// Copy копирует объект через вспомогательный файл, поэтому замена
// существующего dstKey тоже атомарна.
func (g *FSGateway) Copy(ctx context.Context, srcKey, dstKey string) error {
	const op = "storage.fs.Copy"
	src, err := g.OpenRead(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer src.Close()
	dst, err := g.OpenWrite(ctx, dstKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.(*fsWriter).CloseWithError(err)
		return fmt.Errorf("%s: %s -> %s: %w", op, srcKey, dstKey, mapFSError(err))
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Head возвращает метаданные объекта. ETag - BLAKE3 от содержимого,
// пересчитывается только при изменении размера или времени модификации.
func (g *FSGateway) Head(_ context.Context, key string) (domain.ObjectInfo, error) {
	const op = "storage.fs.Head"
	path, err := g.path(key)
	if err != nil {
		return domain.ObjectInfo{}, fmt.Errorf("%s: %w", op, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return domain.ObjectInfo{}, fmt.Errorf("%s: %s: %w", op, key, mapFSError(err))
	}
	etag, err := g.etag(path, st)
	if err != nil {
		return domain.ObjectInfo{}, fmt.Errorf("%s: %s: %w", op, key, mapFSError(err))
	}
	return domain.ObjectInfo{
		Key:          key,
		ETag:         etag,
		Size:         st.Size(),
		ContentType:  domain.ContentTypeForKey(key),
		LastModified: st.ModTime(),
	}, nil
}

// Publish атомарно переименовывает временный файл в публичный.
func (g *FSGateway) Publish(_ context.Context, tmpKey, publicKey string) error {
	const op = "storage.fs.Publish"
	tmpPath, err := g.path(tmpKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	publicPath, err := g.path(publicKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmpPath, publicPath); err != nil {
		return fmt.Errorf("%s: %s -> %s: %w", op, tmpKey, publicKey, mapFSError(err))
	}
	g.log.Debug("Object published", slog.String("key", publicKey))
	return nil
}

func (g *FSGateway) etag(path string, st fs.FileInfo) (string, error) {
	g.mu.Lock()
	cached, ok := g.etags[path]
	g.mu.Unlock()
	if ok && cached.size == st.Size() && cached.modTime.Equal(st.ModTime()) {
		return cached.etag, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	etag := hex.EncodeToString(hasher.Sum(nil)[:16])
	g.mu.Lock()
	g.etags[path] = etagEntry{size: st.Size(), modTime: st.ModTime(), etag: etag}
	g.mu.Unlock()
	return etag, nil
}

func mapFSError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", domain.ErrObjectNotFound, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrStorageIO, err)
}

// fsWriter пишет во вспомогательный файл и переименовывает его в ключ при Close.
type fsWriter struct {
	f      *os.File
	path   string
	key    string
	closed bool
}

func (w *fsWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, fmt.Errorf("storage.fs.Write: %s: %w", w.key, mapFSError(err))
	}
	return n, nil
}

func (w *fsWriter) Close() error {
	const op = "storage.fs.Close"
	if w.closed {
		return nil
	}
	w.closed = true
	tmpPath := w.f.Name()
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %s: %w", op, w.key, mapFSError(err))
	}
	if err := w.f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %s: %w", op, w.key, mapFSError(err))
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %s: %w", op, w.key, mapFSError(err))
	}
	return nil
}

// CloseWithError отменяет запись: вспомогательный файл удаляется.
func (w *fsWriter) CloseWithError(error) error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.f.Close()
	if err := os.Remove(w.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage.fs.Abort: %s: %w", w.key, mapFSError(err))
	}
	return nil
}
