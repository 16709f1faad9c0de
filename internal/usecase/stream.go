package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"feedgen/internal/domain"
)

// DefaultChunkSize - размер блока потокового копирования по умолчанию.
const DefaultChunkSize = 1024

// copyChunked копирует src в dst блоками не больше chunkSize байт,
// записывая каждый блок сразу после чтения. Объект целиком в памяти не держится.
func copyChunked(dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return written, fmt.Errorf("write chunk: %w", err)
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read chunk: %w", readErr)
		}
	}
}

// abortWrite закрывает поток записи после ошибки. Если поток умеет
// отменять запись (CloseWithError), незавершенный объект не фиксируется.
func abortWrite(w io.WriteCloser, cause error) error {
	if aborter, ok := w.(interface{ CloseWithError(error) error }); ok {
		return aborter.CloseWithError(cause)
	}
	return w.Close()
}

// deleteIfExists удаляет объект, считая отсутствие объекта успехом.
func deleteIfExists(ctx context.Context, storage ObjectStorage, key string) error {
	if err := storage.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrObjectNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// publish заменяет публичный объект временным: tmp-written -> published.
// Частичная запись публичного ключа невозможна, он меняется только копией
// полностью записанного временного объекта.
func publish(ctx context.Context, storage ObjectStorage, name domain.FeedName, c domain.Compression) error {
	tmpKey, publicKey := domain.TmpKey(name, c), domain.PublicKey(name, c)
	if publisher, ok := storage.(AtomicPublisher); ok {
		if err := publisher.Publish(ctx, tmpKey, publicKey); err != nil {
			return fmt.Errorf("publish %s: %w", publicKey, err)
		}
		return nil
	}
	if err := deleteIfExists(ctx, storage, publicKey); err != nil {
		return err
	}
	if err := storage.Copy(ctx, tmpKey, publicKey); err != nil {
		return fmt.Errorf("copy %s to %s: %w", tmpKey, publicKey, err)
	}
	return deleteIfExists(ctx, storage, tmpKey)
}
