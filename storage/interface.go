package storage

import (
	"context"
	"io"

	"feedgen/internal/domain"
)

// Gateway определяет общий интерфейс объектного хранилища фидов.
// Отсутствующий объект обозначается ошибкой domain.ErrObjectNotFound,
// остальные ошибки оборачивают domain.ErrStorageIO.
type Gateway interface {
	OpenRead(ctx context.Context, key string) (io.ReadCloser, error)
	OpenWrite(ctx context.Context, key string) (io.WriteCloser, error)
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Head(ctx context.Context, key string) (domain.ObjectInfo, error)
	Publish(ctx context.Context, tmpKey, publicKey string) error
}

var (
	_ Gateway = (*S3Gateway)(nil)
	_ Gateway = (*FSGateway)(nil)
)
