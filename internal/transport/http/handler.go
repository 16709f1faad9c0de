package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feedgen/internal/domain"
)

type feedDownloader interface {
	Supports(name domain.FeedName, c domain.Compression) bool
	Stat(ctx context.Context, name domain.FeedName, c domain.Compression) (domain.ObjectInfo, error)
	Open(ctx context.Context, name domain.FeedName, c domain.Compression) (io.ReadCloser, error)
}

type Handler struct {
	log        *slog.Logger
	downloader feedDownloader
}

func NewHandler(log *slog.Logger, downloader feedDownloader) *Handler {
	return &Handler{
		log:        log,
		downloader: downloader,
	}
}

// getFeed - хендлер для эндпоинтов GET /{feed}/feed.yml[.zip|.gz]
func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	const op = "transport.http/getFeed"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", getRequestID(r)),
	)
	name, err := domain.ParseFeedName(r.PathValue("feed"))
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Feed not found")
		return
	}
	compression, ok := parseFileName(r.PathValue("file"))
	if !ok || !h.downloader.Supports(name, compression) {
		respondWithError(w, http.StatusNotFound, "Feed not found")
		return
	}
	log = log.With(slog.String("feed", name.String()), slog.String("compression", compression.String()))

	info, err := h.downloader.Stat(r.Context(), name, compression)
	if errors.Is(err, domain.ErrObjectNotFound) {
		log.Warn("Feed is not published yet")
		respondWithError(w, http.StatusNotFound, "Feed not found")
		return
	}
	if err != nil {
		log.Error("Can't get feed headers", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	header := w.Header()
	header.Set("Content-Type", domain.ContentType(compression))
	header.Set("Content-Disposition", `attachment; filename="`+domain.FileName(compression)+`"`)
	if !info.LastModified.IsZero() {
		header.Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	etag := quoteETag(info.ETag)
	if etag != "" {
		header.Set("ETag", etag)
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if r.Method == http.MethodHead {
		if info.Size > 0 {
			header.Set("Content-Length", strconv.FormatInt(info.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := h.downloader.Open(r.Context(), name, compression)
	if err != nil {
		header.Del("Content-Disposition")
		header.Del("ETag")
	}
	if errors.Is(err, domain.ErrObjectNotFound) {
		log.Warn("Feed disappeared between stat and read")
		respondWithError(w, http.StatusNotFound, "Feed not found")
		return
	}
	if err != nil {
		log.Error("Download feed failed", slog.Any("error", err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	defer body.Close()
	w.WriteHeader(http.StatusOK)
	written, err := io.Copy(w, body)
	if err != nil {
		log.Error("Reading downloaded feed failed", slog.Int64("written", written), slog.Any("error", err))
		return
	}
	log.Debug("Feed sent", slog.Int64("bytes", written))
}

// healthCheck - хендлер для проверки состояния сервиса
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"health": "ok"})
}

// parseFileName сопоставляет имя файла в URL с видом сжатия.
func parseFileName(file string) (domain.Compression, bool) {
	for _, c := range []domain.Compression{domain.CompressionNone, domain.CompressionZip, domain.CompressionGzip} {
		if file == domain.FileName(c) {
			return c, true
		}
	}
	return "", false
}

func quoteETag(etag string) string {
	if etag == "" || strings.HasPrefix(etag, `"`) || strings.HasPrefix(etag, `W/"`) {
		return etag
	}
	return `"` + etag + `"`
}

// etagMatches проверяет If-None-Match со слабым сравнением.
func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if strings.TrimSpace(ifNoneMatch) == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == want {
			return true
		}
	}
	return false
}

// Вспомогательные функции для ответов
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func getRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return "req-" + time.Now().Format("20060102150405.000000")
}
