package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job - периодическая задача воркера. Нулевой Interval отключает задачу.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Worker запускает задачи по расписанию, каждую со своим интервалом.
// Запуски одной задачи не перекрываются: тик, пришедший во время
// выполнения, пропускается.
type Worker struct {
	jobs    []Job
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runs    atomic.Int64
	errors  atomic.Int64
	started bool
}

// New создает воркер. Задачи с нулевым интервалом или без функции пропускаются.
func New(jobs []Job, log *slog.Logger) *Worker {
	enabled := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Interval <= 0 || job.Run == nil {
			log.Info("Scheduled job disabled", slog.String("component", "worker"), slog.String("job", job.Name))
			continue
		}
		enabled = append(enabled, job)
	}
	return &Worker{jobs: enabled, log: log}
}

// Start запускает по горутине на каждую задачу.
// Каждая задача выполняется сразу после старта и далее по своему интервалу.
func (w *Worker) Start() {
	if w.started {
		return
	}
	w.started = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.log.Info("Scheduler worker started",
		slog.String("component", "worker"),
		slog.Int("job_count", len(w.jobs)),
	)
	for _, job := range w.jobs {
		w.wg.Add(1)
		go w.run(job)
	}
}

// Stop отменяет расписание и ждет завершения выполняющихся задач.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("Worker stopped",
		slog.String("component", "worker"),
		slog.Int64("runs", w.runs.Load()),
		slog.Int64("errors", w.errors.Load()),
	)
}

// run выполняет основной цикл одной задачи.
func (w *Worker) run(job Job) {
	defer w.wg.Done()
	log := w.log.With(
		slog.String("component", "worker"),
		slog.String("job", job.Name),
		slog.String("interval", job.Interval.String()),
	)
	log.Info("Job scheduled")
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	w.execute(log, job)
	for {
		select {
		case <-ticker.C:
			w.execute(log, job)
		case <-w.ctx.Done():
			log.Info("Job stopping")
			return
		}
	}
}

// execute выполняет задачу один раз. Запущенная задача доводится до конца
// даже после Stop.
func (w *Worker) execute(log *slog.Logger, job Job) {
	if w.ctx.Err() != nil {
		return
	}
	start := time.Now()
	w.runs.Add(1)
	if err := job.Run(context.WithoutCancel(w.ctx)); err != nil {
		w.errors.Add(1)
		log.Error("Job failed", slog.Any("error", err), slog.Duration("duration", time.Since(start)))
		return
	}
	log.Info("Job completed", slog.Duration("duration", time.Since(start)))
}

// Jobs возвращает включенные задачи.
func (w *Worker) Jobs() []Job { return w.jobs }
