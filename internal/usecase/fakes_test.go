package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"feedgen/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStorage - хранилище объектов в памяти. Запись фиксируется только при Close.
type memStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	openErr  map[string]error
	writeErr map[string]error
	copyErr  map[string]error
	copies   int
}

func newMemStorage() *memStorage {
	return &memStorage{
		objects:  make(map[string][]byte),
		openErr:  make(map[string]error),
		writeErr: make(map[string]error),
		copyErr:  make(map[string]error),
	}
}

func (m *memStorage) put(key, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = []byte(data)
}

func (m *memStorage) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return string(data), ok
}

func (m *memStorage) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *memStorage) OpenRead(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (m *memStorage) OpenWrite(_ context.Context, key string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.openErr[key]; err != nil {
		return nil, err
	}
	return &memWriter{storage: m, key: key, writeErr: m.writeErr[key]}, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("%s: %w", key, domain.ErrObjectNotFound)
	}
	delete(m.objects, key)
	return nil
}

func (m *memStorage) Copy(_ context.Context, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.copyErr[dstKey]; err != nil {
		return err
	}
	data, ok := m.objects[srcKey]
	if !ok {
		return fmt.Errorf("%s: %w", srcKey, domain.ErrObjectNotFound)
	}
	m.objects[dstKey] = bytes.Clone(data)
	m.copies++
	return nil
}

func (m *memStorage) Head(_ context.Context, key string) (domain.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return domain.ObjectInfo{}, fmt.Errorf("%s: %w", key, domain.ErrObjectNotFound)
	}
	return domain.ObjectInfo{Key: key, Size: int64(len(data)), ETag: fmt.Sprintf("%x", len(data))}, nil
}

type memWriter struct {
	storage  *memStorage
	key      string
	buf      bytes.Buffer
	writeErr error
	done     bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	w.storage.objects[w.key] = bytes.Clone(w.buf.Bytes())
	return nil
}

func (w *memWriter) CloseWithError(error) error {
	w.done = true
	return nil
}

// atomicMemStorage дополнительно умеет атомарную публикацию.
type atomicMemStorage struct {
	*memStorage
}

func (a atomicMemStorage) Publish(_ context.Context, tmpKey, publicKey string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[tmpKey]
	if !ok {
		return fmt.Errorf("%s: %w", tmpKey, domain.ErrObjectNotFound)
	}
	a.objects[publicKey] = data
	delete(a.objects, tmpKey)
	return nil
}

// fakeCatalog отдает категории и предложения из памяти постранично.
type fakeCatalog struct {
	mu         sync.Mutex
	categories []domain.Category
	offers     []domain.Offer
	total      int
	catErr     error
	totalErr   error
	pageErr    map[int]error
	pages      []int
	delay      time.Duration
}

func newFakeCatalog(categories, offers int) *fakeCatalog {
	c := &fakeCatalog{pageErr: make(map[int]error)}
	for i := 1; i <= categories; i++ {
		c.categories = append(c.categories, domain.Category{ID: fmt.Sprintf("c%d", i), Title: fmt.Sprintf("Category %d", i)})
	}
	for i := 1; i <= offers; i++ {
		c.offers = append(c.offers, domain.Offer{ID: fmt.Sprintf("o%d", i), Name: fmt.Sprintf("Offer %d", i)})
	}
	c.total = offers
	return c
}

func (c *fakeCatalog) GetCategories(context.Context) ([]domain.Category, error) {
	return c.categories, c.catErr
}

func (c *fakeCatalog) GetOffersTotal(context.Context) (int, error) {
	return c.total, c.totalErr
}

func (c *fakeCatalog) GetOffers(_ context.Context, limit, page int) ([]domain.Offer, error) {
	c.mu.Lock()
	c.pages = append(c.pages, page)
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if err := c.pageErr[page]; err != nil {
		return nil, err
	}
	from := (page - 1) * limit
	if from >= len(c.offers) {
		return nil, nil
	}
	to := min(from+limit, len(c.offers))
	return c.offers[from:to], nil
}

var errBadRecord = errors.New("bad record")

// fakeRenderer пишет короткие маркеры; запись с ID "bad" не отрисовывается.
type fakeRenderer struct {
	name      domain.FeedName
	headerErr error
}

func (r fakeRenderer) FeedName() domain.FeedName { return r.name }

func (r fakeRenderer) RenderHeader() (string, error) {
	if r.headerErr != nil {
		return "", r.headerErr
	}
	return "H" + strings.ToUpper(r.name.String()), nil
}

func (r fakeRenderer) RenderCategory(c domain.Category) (string, error) {
	if c.ID == "bad" {
		return "", errBadRecord
	}
	return "<" + c.ID + ">", nil
}

func (r fakeRenderer) RenderOffer(o domain.Offer) (string, error) {
	if o.ID == "bad" {
		return "", errBadRecord
	}
	return "<" + o.ID + ">", nil
}

func (r fakeRenderer) RenderFooter() (string, error) {
	return "F" + strings.ToUpper(r.name.String()), nil
}

func fakeRenderers(names ...domain.FeedName) map[domain.FeedName]FeedRenderer {
	renderers := make(map[domain.FeedName]FeedRenderer, len(names))
	for _, name := range names {
		renderers[name] = fakeRenderer{name: name}
	}
	return renderers
}

// fakeLocker выдает блокировки в памяти.
type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) TryLock(_ context.Context, name string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
		l.released = append(l.released, name)
		return nil
	}, true, nil
}
