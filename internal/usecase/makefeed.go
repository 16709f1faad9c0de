package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"feedgen/internal/domain"
	"feedgen/internal/logger"

	"github.com/dustin/go-humanize"
)

const (
	categoriesOpen  = "<categories>"
	categoriesClose = "</categories>"
	offersOpen      = "<offers>"
	offersClose     = "</offers>"
)

// MakeFeedUseCase реализует сборку фидов: потоковую запись всех вариантов
// во временные объекты и последующую публикацию с заменой старых версий.
// После публикации запускает конвейеры сжатия.
type MakeFeedUseCase struct {
	storage     ObjectStorage
	catalog     Catalog
	renderers   map[domain.FeedName]FeedRenderer
	feeds       []domain.FeedName
	offerLimit  int
	runner      *CommandRunner
	compressors []*CompressUseCase
	log         *slog.Logger
}

// NewMakeFeedUseCase создает UseCase сборки фидов.
// Принимает хранилище, источник данных, реестр рендереров, список фидов,
// размер страницы предложений, исполнитель команд, логгер и конвейеры сжатия.
// Если runner задан, каждый конвейер запускается под своей блокировкой
// и пропускается, когда тот же конвейер уже выполняется.
func NewMakeFeedUseCase(
	storage ObjectStorage,
	catalog Catalog,
	renderers map[domain.FeedName]FeedRenderer,
	feeds []domain.FeedName,
	offerLimit int,
	runner *CommandRunner,
	log *slog.Logger,
	compressors ...*CompressUseCase,
) *MakeFeedUseCase {
	return &MakeFeedUseCase{
		storage:     storage,
		catalog:     catalog,
		renderers:   renderers,
		feeds:       feeds,
		offerLimit:  offerLimit,
		runner:      runner,
		compressors: compressors,
		log:         log,
	}
}

// Build выполняет полный цикл сборки: очистка временных объектов, запись
// заголовков, категорий, предложений и подвалов во все фиды одновременно,
// публикация и сжатие. Ошибки отдельных записей и страниц логируются и
// не прерывают сборку; ошибки этапов прерывают ее, потоки при этом закрываются.
func (uc *MakeFeedUseCase) Build(ctx context.Context) error {
	const op = "usecase.MakeFeed.Build"
	start := time.Now()
	log := uc.log.With(
		slog.String("component", "feed-builder"),
		slog.String("op", op),
	)

	log.Info("Deleting temporary feeds if they exist")
	for _, name := range uc.feeds {
		if err := deleteIfExists(ctx, uc.storage, domain.TmpKey(name, domain.CompressionNone)); err != nil {
			log.Error("Temporary feed cleanup failed", slog.String("feed", name.String()), slog.Any("error", err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("Opening temporary feed streams", slog.Int("feed_count", len(uc.feeds)))
	session, err := uc.openSession(ctx)
	if err != nil {
		log.Error("Error creating feed", slog.String("stage", "open"), slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	err = uc.writeFeeds(ctx, session, log)
	if err != nil {
		session.abort(err, log)
		log.Error("Error creating feed", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("Closing feed streams")
	if err := session.close(); err != nil {
		log.Error("Error creating feed", slog.String("stage", "close"), slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("Replacing old feeds with new ones")
	for _, name := range uc.feeds {
		if err := publish(ctx, uc.storage, name, domain.CompressionNone); err != nil {
			log.Error("Error replacing feed", slog.String("feed", name.String()), slog.Any("error", err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	for _, compressor := range uc.compressors {
		log.Info("Compressing feeds", slog.String("compression", compressor.Compression().String()))
		if err := uc.compress(ctx, compressor); err != nil {
			log.Error("Error compressing feed",
				slog.String("compression", compressor.Compression().String()),
				slog.Any("error", err),
			)
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	logger.Success(log, "Feeds successfully built",
		slog.Duration("duration", time.Since(start)),
		slog.String("memory_sys", humanize.IBytes(mem.Sys)),
		slog.String("heap_alloc", humanize.IBytes(mem.HeapAlloc)),
	)
	return nil
}

func (uc *MakeFeedUseCase) compress(ctx context.Context, compressor *CompressUseCase) error {
	if uc.runner == nil {
		return compressor.Run(ctx)
	}
	return uc.runner.Run(ctx, compressor.Command(), compressor.Run)
}

// openSession открывает временный поток записи и привязывает рендерер для каждого фида.
func (uc *MakeFeedUseCase) openSession(ctx context.Context) (*buildSession, error) {
	session := &buildSession{}
	for _, name := range uc.feeds {
		renderer, ok := uc.renderers[name]
		if !ok || renderer == nil {
			err := fmt.Errorf("%w: %s", domain.ErrRendererNotFound, name)
			session.abort(err, uc.log)
			return nil, err
		}
		w, err := uc.storage.OpenWrite(ctx, domain.TmpKey(name, domain.CompressionNone))
		if err != nil {
			err = fmt.Errorf("open temporary feed %s: %w", name, err)
			session.abort(err, uc.log)
			return nil, err
		}
		session.streams = append(session.streams, &feedStream{name: name, w: w, renderer: renderer})
	}
	return session, nil
}

func (uc *MakeFeedUseCase) writeFeeds(ctx context.Context, s *buildSession, log *slog.Logger) error {
	log.Info("Inserting headers into the new feeds")
	if err := s.writeRendered(func(r FeedRenderer) (string, error) { return r.RenderHeader() }); err != nil {
		return fmt.Errorf("header: %w", err)
	}

	log.Info("Inserting categories into the new feeds")
	if err := uc.writeCategories(ctx, s, log); err != nil {
		return err
	}

	log.Info("Inserting offers into the new feeds, it may take a long time")
	if err := uc.writeOffers(ctx, s, log); err != nil {
		return err
	}

	log.Info("Inserting footer into the new feeds")
	if err := s.writeRendered(func(r FeedRenderer) (string, error) { return r.RenderFooter() }); err != nil {
		return fmt.Errorf("footer: %w", err)
	}
	return nil
}

func (uc *MakeFeedUseCase) writeCategories(ctx context.Context, s *buildSession, log *slog.Logger) error {
	if err := s.writeAll(categoriesOpen); err != nil {
		return err
	}
	categories, err := uc.catalog.GetCategories(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNoCategories, err)
	}
	if len(categories) == 0 {
		return domain.ErrNoCategories
	}
	for _, category := range categories {
		err := s.writeRecord(log, "category", category.ID, func(r FeedRenderer) (string, error) {
			return r.RenderCategory(category)
		})
		if err != nil {
			return err
		}
	}
	log.Info("Categories inserted", slog.Int("count", len(categories)))
	return s.writeAll(categoriesClose)
}

func (uc *MakeFeedUseCase) writeOffers(ctx context.Context, s *buildSession, log *slog.Logger) error {
	if err := s.writeAll(offersOpen); err != nil {
		return err
	}
	total, err := uc.catalog.GetOffersTotal(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNoOffers, err)
	}
	if total <= 0 {
		return domain.ErrNoOffers
	}
	pages := (total + uc.offerLimit - 1) / uc.offerLimit
	written := 0
	for page := 1; page <= pages; page++ {
		offers, err := uc.catalog.GetOffers(ctx, uc.offerLimit, page)
		if err != nil {
			log.Error("Error while exporting offers page, skipping",
				slog.Int("page", page),
				slog.Any("error", fmt.Errorf("%w: %w", domain.ErrPageFetch, err)),
			)
			continue
		}
		for _, offer := range offers {
			err := s.writeRecord(log, "offer", offer.ID, func(r FeedRenderer) (string, error) {
				return r.RenderOffer(offer)
			})
			if err != nil {
				return err
			}
		}
		written += len(offers)
		log.Debug("Offers page exported", slog.Int("page", page), slog.Int("pages", pages), slog.Int("count", len(offers)))
	}
	log.Info("Offers inserted", slog.Int("count", written), slog.Int("total", total), slog.Int("pages", pages))
	return s.writeAll(offersClose)
}

// feedStream связывает открытый временный поток фида с его рендерером.
type feedStream struct {
	name     domain.FeedName
	w        io.WriteCloser
	renderer FeedRenderer
	closed   bool
}

func (f *feedStream) write(text string) error {
	if text == "" {
		return nil
	}
	if _, err := io.WriteString(f.w, text); err != nil {
		return fmt.Errorf("write feed %s: %w", f.name, err)
	}
	return nil
}

// buildSession владеет потоками записи одного запуска сборки.
type buildSession struct {
	streams []*feedStream
}

// writeAll пишет одинаковый текст во все потоки.
func (s *buildSession) writeAll(text string) error {
	for _, f := range s.streams {
		if err := f.write(text); err != nil {
			return err
		}
	}
	return nil
}

// writeRendered пишет в каждый поток фрагмент его рендерера. Ошибка отрисовки фатальна.
func (s *buildSession) writeRendered(render func(FeedRenderer) (string, error)) error {
	for _, f := range s.streams {
		text, err := render(f.renderer)
		if err != nil {
			return fmt.Errorf("render feed %s: %w", f.name, err)
		}
		if err := f.write(text); err != nil {
			return err
		}
	}
	return nil
}

// writeRecord пишет одну запись во все потоки. Ошибка отрисовки заменяет
// запись пустой строкой; ошибка записи в поток возвращается.
func (s *buildSession) writeRecord(log *slog.Logger, kind, id string, render func(FeedRenderer) (string, error)) error {
	for _, f := range s.streams {
		text, err := render(f.renderer)
		if err != nil {
			log.Error("Rendering record failed, skipping",
				slog.String("feed", f.name.String()),
				slog.String("record", kind),
				slog.String("id", id),
				slog.Any("error", fmt.Errorf("%w: %w", domain.ErrRenderRecord, err)),
			)
			text = ""
		}
		if err := f.write(text); err != nil {
			return err
		}
	}
	return nil
}

// close закрывает все потоки, фиксируя временные объекты.
func (s *buildSession) close() error {
	var errs []error
	for _, f := range s.streams {
		if f.closed {
			continue
		}
		f.closed = true
		if err := f.w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close feed %s: %w", f.name, err))
		}
	}
	return errors.Join(errs...)
}

// abort закрывает все потоки после фатальной ошибки. Временные объекты не публикуются.
func (s *buildSession) abort(cause error, log *slog.Logger) {
	for _, f := range s.streams {
		if f.closed {
			continue
		}
		f.closed = true
		if err := abortWrite(f.w, cause); err != nil {
			log.Warn("Closing feed stream failed", slog.String("feed", f.name.String()), slog.Any("error", err))
		}
	}
}
