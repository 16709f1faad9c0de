package usecase

import (
	"context"
	"fmt"
	"io"

	"feedgen/internal/domain"
)

// FeedDownloadUseCase отдает опубликованные фиды для HTTP-выдачи.
// Читает только публичные ключи, временные объекты наружу не видны.
type FeedDownloadUseCase struct {
	storage ObjectStorage
	zip     map[domain.FeedName]bool
	gzip    map[domain.FeedName]bool
}

// NewFeedDownloadUseCase создает UseCase выдачи фидов. zipFeeds и gzipFeeds
// перечисляют фиды, для которых публикуются сжатые копии.
func NewFeedDownloadUseCase(storage ObjectStorage, zipFeeds, gzipFeeds []domain.FeedName) *FeedDownloadUseCase {
	return &FeedDownloadUseCase{
		storage: storage,
		zip:     toSet(zipFeeds),
		gzip:    toSet(gzipFeeds),
	}
}

// Supports сообщает, публикуется ли фид в указанном виде сжатия.
func (uc *FeedDownloadUseCase) Supports(name domain.FeedName, c domain.Compression) bool {
	switch c {
	case domain.CompressionNone:
		return true
	case domain.CompressionZip:
		return uc.zip[name]
	case domain.CompressionGzip:
		return uc.gzip[name]
	default:
		return false
	}
}

// Stat возвращает метаданные опубликованного фида.
func (uc *FeedDownloadUseCase) Stat(ctx context.Context, name domain.FeedName, c domain.Compression) (domain.ObjectInfo, error) {
	if !uc.Supports(name, c) {
		return domain.ObjectInfo{}, fmt.Errorf("%s %s: %w", name, c, domain.ErrObjectNotFound)
	}
	return uc.storage.Head(ctx, domain.PublicKey(name, c))
}

// Open открывает поток чтения опубликованного фида. Поток закрывает вызывающая сторона.
func (uc *FeedDownloadUseCase) Open(ctx context.Context, name domain.FeedName, c domain.Compression) (io.ReadCloser, error) {
	if !uc.Supports(name, c) {
		return nil, fmt.Errorf("%s %s: %w", name, c, domain.ErrObjectNotFound)
	}
	return uc.storage.OpenRead(ctx, domain.PublicKey(name, c))
}

func toSet(names []domain.FeedName) map[domain.FeedName]bool {
	set := make(map[domain.FeedName]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
