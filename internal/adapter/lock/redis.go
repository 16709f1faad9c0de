package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gomodule/redigo/redis"
)

// ErrLockLost - блокировка истекла или перехвачена до освобождения.
var ErrLockLost = errors.New("lock expired before release")

// releaseScript удаляет ключ, только если он все еще принадлежит владельцу.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker выдает блокировки с ограниченным временем жизни через SET NX PX.
// Блокировка видна всем экземплярам, работающим с одним Redis.
type RedisLocker struct {
	pool *redis.Pool
	log  *slog.Logger
}

// NewRedisLocker создает RedisLocker с пулом соединений к addr.
func NewRedisLocker(addr, password string, log *slog.Logger) *RedisLocker {
	pool := &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			opts := []redis.DialOption{redis.DialConnectTimeout(5 * time.Second)}
			if password != "" {
				opts = append(opts, redis.DialPassword(password))
			}
			return redis.DialContext(ctx, "tcp", addr, opts...)
		},
	}
	return &RedisLocker{
		pool: pool,
		log:  log.With(slog.String("component", "lock"), slog.String("driver", "redis")),
	}
}

// TryLock пытается взять блокировку name на ttl без ожидания.
func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	const op = "lock.Redis.TryLock"
	token, err := newToken()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	defer conn.Close()

	_, err = redis.String(conn.Do("SET", name, token, "NX", "PX", ttl.Milliseconds()))
	if errors.Is(err, redis.ErrNil) {
		l.log.Debug("Lock is held by another process", slog.String("name", name))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %s: %w", op, name, err)
	}
	l.log.Debug("Lock acquired", slog.String("name", name), slog.Duration("ttl", ttl))

	release := func(ctx context.Context) error {
		const op = "lock.Redis.Release"
		conn, err := l.pool.GetContext(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		defer conn.Close()
		deleted, err := redis.Int(releaseScript.Do(conn, name, token))
		if err != nil {
			return fmt.Errorf("%s: %s: %w", op, name, err)
		}
		if deleted == 0 {
			return fmt.Errorf("%s: %s: %w", op, name, ErrLockLost)
		}
		return nil
	}
	return release, true, nil
}

// Close закрывает пул соединений.
func (l *RedisLocker) Close() error {
	return l.pool.Close()
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
