//go:build unix

package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// FileLocker выдает блокировки через flock на файлах в каталоге dir.
// Блокировка действует в пределах одной машины. Владелец записывает в файл
// срок аренды (now+ttl); просроченную аренду другой претендент перехватывает,
// заменяя файл блокировки. Нулевой ttl означает аренду без срока.
type FileLocker struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

// NewFileLocker создает FileLocker, создавая каталог при необходимости.
func NewFileLocker(dir string, log *slog.Logger) (*FileLocker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock.File.New: %w", err)
	}
	return &FileLocker{
		dir: dir,
		log: log.With(slog.String("component", "lock"), slog.String("driver", "file")),
		now: time.Now,
	}, nil
}

// TryLock пытается взять блокировку name без ожидания.
func (l *FileLocker) TryLock(_ context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	const op = "lock.File.TryLock"
	path := l.path(name)
	f, acquired, err := flockFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !acquired {
		f, acquired, err = l.takeOver(name, path, ttl)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
		if !acquired {
			l.log.Debug("Lock is held", slog.String("name", name))
			return nil, false, nil
		}
	} else if err := l.writeDeadline(f, ttl); err != nil {
		unlockFile(f)
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	l.log.Debug("Lock acquired", slog.String("name", name), slog.String("path", path))

	release := func(context.Context) error {
		lost := !sameFile(f, path)
		if err := unlockFile(f); err != nil {
			return fmt.Errorf("lock.File.Release: %s: %w", path, err)
		}
		if lost {
			return fmt.Errorf("lock.File.Release: %s: %w", name, ErrLockLost)
		}
		return nil
	}
	return release, true, nil
}

// takeOver перехватывает блокировку, если срок аренды владельца истек.
// Перехват выполняется под отдельной блокировкой {path}.takeover, чтобы
// два претендента не заменили файл друг за другом.
func (l *FileLocker) takeOver(name, path string, ttl time.Duration) (*os.File, bool, error) {
	if !l.expired(path) {
		return nil, false, nil
	}
	guard, acquired, err := flockFile(path + ".takeover")
	if err != nil || !acquired {
		return nil, false, err
	}
	defer unlockFile(guard)

	if !l.expired(path) {
		return nil, false, nil
	}
	l.log.Warn("Lock lease expired, taking over", slog.String("name", name))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	f, acquired, err := flockFile(path)
	if err != nil || !acquired {
		return nil, false, err
	}
	if err := l.writeDeadline(f, ttl); err != nil {
		unlockFile(f)
		return nil, false, err
	}
	return f, true, nil
}

// expired сообщает, что в файле записан уже наступивший срок аренды.
// Пустой или нечитаемый файл считается действующей арендой.
func (l *FileLocker) expired(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	deadline, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || deadline == 0 {
		return false
	}
	return l.now().UnixNano() > deadline
}

func (l *FileLocker) writeDeadline(f *os.File, ttl time.Duration) error {
	var deadline int64
	if ttl > 0 {
		deadline = l.now().Add(ttl).UnixNano()
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(strconv.FormatInt(deadline, 10)), 0)
	return err
}

// flockFile открывает файл и берет на нем flock без ожидания.
// Если после захвата путь указывает уже на другой файл (его заменили при
// перехвате), блокировка считается не взятой.
func flockFile(path string) (*os.File, bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", path, err)
	}
	if !sameFile(f, path) {
		unlockFile(f)
		return nil, false, nil
	}
	return f, true, nil
}

func unlockFile(f *os.File) error {
	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return errors.Join(unlockErr, f.Close())
}

func sameFile(f *os.File, path string) bool {
	opened, err := f.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(opened, current)
}

func (l *FileLocker) path(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return filepath.Join(l.dir, safe+".lock")
}
