package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LockPrefix - префикс имен блокировок команд.
const LockPrefix = "feedgen:"

// Имена команд. Они же задают имена блокировок.
const (
	CommandUpdateFeed = "update-feed"
	CommandFeedZip    = "feed-zip"
	CommandFeedGzip   = "feed-gzip"
)

// CommandRunner запускает задачу под именованной блокировкой.
// Одновременно выполняется не больше одного экземпляра каждой команды.
type CommandRunner struct {
	locker Locker
	ttl    time.Duration
	log    *slog.Logger
}

// NewCommandRunner создает исполнитель команд. ttl ограничивает время
// жизни блокировки на случай аварийного завершения процесса.
func NewCommandRunner(locker Locker, ttl time.Duration, log *slog.Logger) *CommandRunner {
	return &CommandRunner{locker: locker, ttl: ttl, log: log}
}

// Run берет блокировку команды без ожидания и выполняет job.
// Если блокировка занята, job не запускается и возвращается nil.
func (r *CommandRunner) Run(ctx context.Context, command string, job func(ctx context.Context) error) error {
	const op = "usecase.CommandRunner.Run"
	log := r.log.With(
		slog.String("component", "command"),
		slog.String("op", op),
		slog.String("command", command),
	)

	release, acquired, err := r.locker.TryLock(ctx, LockPrefix+command, r.ttl)
	if err != nil {
		log.Error("Acquiring command lock failed", slog.Any("error", err))
		return fmt.Errorf("%s: lock %s: %w", op, command, err)
	}
	if !acquired {
		log.Warn("Command is already running, skipping")
		return nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Releasing command lock failed", slog.Any("error", err))
		}
	}()

	start := time.Now()
	log.Info("Command started")
	if err := job(ctx); err != nil {
		return fmt.Errorf("%s: %s: %w", op, command, err)
	}
	log.Info("Command finished", slog.Duration("duration", time.Since(start)))
	return nil
}
