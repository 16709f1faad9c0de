package app

import (
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"feedgen/internal/config"
	"feedgen/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /categories", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"1","level":1,"slug":"phones","url":"/phones","title":"Phones"}]`)
	})
	mux.HandleFunc("GET /offers/total", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total":3}`)
	})
	mux.HandleFunc("GET /offers", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `[{"id":"10","category_id":"1","available":true,"name":"Phone A","url":"/a","price":"100"},`+
				`{"id":"11","category_id":"1","available":true,"name":"Phone B","url":"/b","price":"200"}]`)
		case "2":
			fmt.Fprint(w, `{"items":[{"id":"12","category_id":"1","available":false,"name":"Phone C","url":"/c","price":"300"}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestConfig(t *testing.T, catalogURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New()
	cfg.Logger.Output = "file"
	cfg.Logger.File = filepath.Join(dir, "feedgen.log")
	cfg.Logger.ErrorFile = filepath.Join(dir, "feedgen_error.log")
	cfg.App.SiteURL = "https://shop.example.com"
	cfg.App.OfferLimit = 2
	cfg.App.StagingDir = filepath.Join(dir, "staging")
	cfg.Storage.Driver = "fs"
	cfg.Storage.Root = filepath.Join(dir, "feeds")
	cfg.Catalog.Driver = "http"
	cfg.Catalog.BaseURL = catalogURL
	cfg.Lock.Driver = "file"
	cfg.Lock.Dir = filepath.Join(dir, "locks")
	require.NoError(t, os.MkdirAll(cfg.App.StagingDir, 0o755))
	require.NoError(t, cfg.Validate())
	return cfg
}

func readFeed(t *testing.T, cfg *config.Config, name domain.FeedName, c domain.Compression) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Storage.Root, domain.PublicKey(name, c)))
	require.NoError(t, err)
	return data
}

func TestApp_UpdateFeed(t *testing.T) {
	cfg := newTestConfig(t, newCatalogServer(t).URL)
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.UpdateFeed(context.Background()))

	plain := readFeed(t, cfg, domain.FeedExample, domain.CompressionNone)
	assert.True(t, strings.HasPrefix(string(plain), `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, string(plain), `<categories><category id="1"`)
	for _, id := range []string{"10", "11", "12"} {
		assert.Contains(t, string(plain), `<offer id="`+id+`"`)
	}
	assert.True(t, strings.HasSuffix(string(plain), `</offers></shop></yml_catalog>`))

	gz, err := gzip.NewReader(strings.NewReader(string(readFeed(t, cfg, domain.FeedExample, domain.CompressionGzip))))
	require.NoError(t, err)
	unpacked, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, plain, unpacked)

	archive := readFeed(t, cfg, domain.FeedExample2, domain.CompressionZip)
	zr, err := zip.NewReader(strings.NewReader(string(archive)), int64(len(archive)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "feed.yml", zr.File[0].Name)

	for _, name := range domain.AllFeedNames() {
		_, err := os.Stat(filepath.Join(cfg.Storage.Root, domain.TmpKey(name, domain.CompressionNone)))
		assert.True(t, os.IsNotExist(err), "tmp object of %s must not survive publish", name)
	}
}

func TestApp_ServesPublishedFeed(t *testing.T) {
	cfg := newTestConfig(t, newCatalogServer(t).URL)
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.UpdateFeed(context.Background()))

	srv := httptest.NewServer(a.server.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/example2/feed.yml.zip")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("ETag"))

	missing, err := http.Get(srv.URL + "/example2/feed.yml.gz")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestApp_Jobs(t *testing.T) {
	cfg := newTestConfig(t, "http://127.0.0.1:1")
	cfg.App.UpdateInterval = "1h"
	cfg.App.ZipInterval = ""
	cfg.App.GzipInterval = "30m"
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	var names []string
	for _, job := range a.worker.Jobs() {
		names = append(names, job.Name)
	}
	assert.Equal(t, []string{CommandUpdateFeed, CommandFeedGzip}, names)
}

func TestApp_FeedZipWithoutPublishedFeed(t *testing.T) {
	cfg := newTestConfig(t, "http://127.0.0.1:1")
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	err = a.FeedZip(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)
}
