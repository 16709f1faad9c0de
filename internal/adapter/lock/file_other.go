//go:build !unix

package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// FileLocker не поддерживается на этой платформе; используйте драйвер redis.
type FileLocker struct{}

func NewFileLocker(string, *slog.Logger) (*FileLocker, error) {
	return nil, errors.New("file lock is not supported on this platform")
}

func (l *FileLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, errors.New("file lock is not supported on this platform")
}
