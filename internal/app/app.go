package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"feedgen/internal/adapter/catalog"
	"feedgen/internal/adapter/fetcher"
	"feedgen/internal/adapter/lock"
	"feedgen/internal/adapter/render"
	"feedgen/internal/config"
	"feedgen/internal/domain"
	"feedgen/internal/logger"
	"feedgen/internal/migrations"
	server "feedgen/internal/transport/http"
	"feedgen/internal/usecase"
	"feedgen/internal/worker"
	"feedgen/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Имена команд. Они же задают имена блокировок.
const (
	CommandUpdateFeed = usecase.CommandUpdateFeed
	CommandFeedZip    = usecase.CommandFeedZip
	CommandFeedGzip   = usecase.CommandFeedGzip
)

const prepareTimeout = 30 * time.Second

// App представляет генератор фидов.
// Связывает хранилище, источник данных, рендереры, конвейеры сжатия,
// блокировки команд, HTTP-сервер и планировщик.
type App struct {
	config   *config.Config
	logger   *slog.Logger
	server   *http.Server
	worker   *worker.Worker
	runner   *usecase.CommandRunner
	makeFeed *usecase.MakeFeedUseCase
	zip      *usecase.CompressUseCase
	gzip     *usecase.CompressUseCase
	closers  []func() error
	stopChan chan os.Signal
	wg       sync.WaitGroup
}

// New создает и инициализирует приложение: логгер, хранилище,
// источник данных, блокировки, сценарии и HTTP-сервер.
// При ошибке уже открытые ресурсы закрываются.
func New(cfg *config.Config) (_ *App, err error) {
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	slog.SetDefault(appLogger)
	a := &App{
		config:   cfg,
		logger:   appLogger,
		stopChan: make(chan os.Signal, 1),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	objectStorage, err := a.newStorage()
	if err != nil {
		return nil, err
	}
	feedCatalog, err := a.newCatalog()
	if err != nil {
		return nil, err
	}
	locker, err := a.newLocker()
	if err != nil {
		return nil, err
	}
	renderers, err := render.NewRegistry(cfg.App.SiteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed templates: %w", err)
	}
	zipFeeds, err := config.ParseFeedNames(cfg.App.ZipFeeds)
	if err != nil {
		return nil, fmt.Errorf("bad zip feeds: %w", err)
	}
	gzipFeeds, err := config.ParseFeedNames(cfg.App.GzipFeeds)
	if err != nil {
		return nil, fmt.Errorf("bad gzip feeds: %w", err)
	}
	lockTTL, err := time.ParseDuration(cfg.App.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("bad lock ttl: %w", err)
	}

	a.zip = usecase.NewZipUseCase(objectStorage, zipFeeds, cfg.App.StagingDir, cfg.App.ChunkSize, appLogger)
	a.gzip = usecase.NewGzipUseCase(objectStorage, gzipFeeds, cfg.App.StagingDir, cfg.App.ChunkSize, appLogger)
	a.runner = usecase.NewCommandRunner(locker, lockTTL, appLogger)
	a.makeFeed = usecase.NewMakeFeedUseCase(
		objectStorage,
		feedCatalog,
		renderers,
		domain.AllFeedNames(),
		cfg.App.OfferLimit,
		a.runner,
		appLogger,
		a.zip, a.gzip,
	)

	downloader := usecase.NewFeedDownloadUseCase(objectStorage, zipFeeds, gzipFeeds)
	handler := server.NewHandler(appLogger, downloader)
	a.server = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.NewServer(appLogger, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	jobs, err := a.jobs()
	if err != nil {
		return nil, err
	}
	a.worker = worker.New(jobs, appLogger)
	return a, nil
}

// newStorage создает шлюз объектного хранилища по storage.driver.
func (a *App) newStorage() (usecase.ObjectStorage, error) {
	cfg := a.config.Storage
	switch cfg.Driver {
	case "s3":
		gw, err := storage.NewS3Gateway(cfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), prepareTimeout)
		defer cancel()
		if err := gw.Prepare(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare bucket: %w", err)
		}
		return gw, nil
	case "fs":
		gw, err := storage.NewFSGateway(cfg.Root, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage root: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newCatalog создает источник категорий и предложений по catalog.driver.
// Для postgres подключается к базе и применяет миграции.
func (a *App) newCatalog() (usecase.Catalog, error) {
	cfg := a.config.Catalog
	switch cfg.Driver {
	case "postgres":
		pool, err := a.connectDB()
		if err != nil {
			return nil, err
		}
		pgCatalog := storage.NewPostgresCatalog(pool, a.logger)
		a.closers = append(a.closers, func() error {
			pgCatalog.Close()
			return nil
		})
		if err := migrations.Apply(context.Background(), a.logger, pool); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		return pgCatalog, nil
	case "http":
		timeout, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("bad catalog timeout: %w", err)
		}
		return catalog.NewHTTPCatalog(fetcher.NewHTTPFetcher(timeout, a.logger), cfg.BaseURL, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", cfg.Driver)
	}
}

func (a *App) connectDB() (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), a.config.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	a.logger.Info("Database connection established", slog.String("component", "database"))
	return pool, nil
}

// newLocker создает хранилище блокировок команд по lock.driver.
func (a *App) newLocker() (usecase.Locker, error) {
	cfg := a.config.Lock
	switch cfg.Driver {
	case "redis":
		locker := lock.NewRedisLocker(cfg.Address, cfg.Password, a.logger)
		a.closers = append(a.closers, locker.Close)
		return locker, nil
	case "file":
		locker, err := lock.NewFileLocker(cfg.Dir, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create lock dir: %w", err)
		}
		return locker, nil
	default:
		return nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
	}
}

// jobs собирает расписание планировщика. Пустой интервал отключает задачу.
func (a *App) jobs() ([]worker.Job, error) {
	schedule := []struct {
		command  string
		interval string
		run      func(context.Context) error
	}{
		{CommandUpdateFeed, a.config.App.UpdateInterval, a.UpdateFeed},
		{CommandFeedZip, a.config.App.ZipInterval, a.FeedZip},
		{CommandFeedGzip, a.config.App.GzipInterval, a.FeedGzip},
	}
	jobs := make([]worker.Job, 0, len(schedule))
	for _, s := range schedule {
		interval, err := config.ParseInterval(s.interval)
		if err != nil {
			return nil, fmt.Errorf("bad %s interval: %w", s.command, err)
		}
		jobs = append(jobs, worker.Job{Name: s.command, Interval: interval, Run: s.run})
	}
	return jobs, nil
}

// UpdateFeed собирает и публикует все фиды под блокировкой update-feed.
func (a *App) UpdateFeed(ctx context.Context) error {
	return a.runner.Run(ctx, CommandUpdateFeed, a.makeFeed.Build)
}

// FeedZip выполняет zip-конвейер под блокировкой feed-zip.
func (a *App) FeedZip(ctx context.Context) error {
	return a.runner.Run(ctx, CommandFeedZip, a.zip.Run)
}

// FeedGzip выполняет gzip-конвейер под блокировкой feed-gzip.
func (a *App) FeedGzip(ctx context.Context) error {
	return a.runner.Run(ctx, CommandFeedGzip, a.gzip.Run)
}

// Migrate применяет миграции базы данных источника.
func Migrate(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return migrations.Apply(ctx, log, pool)
}

// Run запускает планировщик и HTTP-сервер и блокируется до сигнала
// завершения. Возвращает ошибку, если не удалось открыть порт или сервер упал.
func (a *App) Run() error {
	a.logger.Info("Starting feed generator",
		slog.String("component", "app"),
		slog.Int("feed_count", len(domain.AllFeedNames())),
		slog.Int("job_count", len(a.worker.Jobs())),
	)
	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.close()
		return fmt.Errorf("failed to create listener: %w", err)
	}
	a.logger.Info("HTTP server ready",
		slog.String("component", "server"),
		slog.String("address", listener.Addr().String()),
	)
	a.worker.Start()

	serveErr := make(chan error, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
			serveErr <- err
		}
	}()
	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.stopChan)

	var runErr error
	select {
	case sig := <-a.stopChan:
		a.logger.Info("Shutdown signal received",
			slog.String("component", "app"),
			slog.String("signal", sig.String()),
		)
	case runErr = <-serveErr:
	}
	return errors.Join(runErr, a.Shutdown())
}

// Shutdown останавливает планировщик (дожидаясь выполняющихся задач),
// HTTP-сервер с таймаутом 10 секунд и закрывает соединения.
func (a *App) Shutdown() error {
	a.logger.Info("Starting graceful shutdown")
	if a.worker != nil {
		a.worker.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var err error
	if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.Error("HTTP server shutdown failed", slog.Any("error", shutdownErr))
		err = shutdownErr
	}
	a.wg.Wait()
	a.close()
	logger.Success(a.logger, "Application stopped gracefully")
	return err
}

// Close освобождает ресурсы после разовой команды.
func (a *App) Close() {
	a.close()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Closing resource failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}
