package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"feedgen/internal/domain"
	"feedgen/internal/logger"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ZipEntryName - имя единственного файла внутри zip-архива фида.
const ZipEntryName = "feed.yml"

// CompressUseCase создает сжатую копию опубликованного фида (zip или gzip)
// и публикует ее с той же дисциплиной атомарной замены, что и сам фид.
// Набор фидов для сжатия настраивается отдельно от полного набора.
type CompressUseCase struct {
	storage     ObjectStorage
	compression domain.Compression
	feeds       []domain.FeedName
	stagingDir  string
	chunkSize   int
	log         *slog.Logger
}

// NewZipUseCase создает конвейер zip-сжатия для перечисленных фидов.
func NewZipUseCase(storage ObjectStorage, feeds []domain.FeedName, stagingDir string, chunkSize int, log *slog.Logger) *CompressUseCase {
	return newCompressUseCase(storage, domain.CompressionZip, feeds, stagingDir, chunkSize, log)
}

// NewGzipUseCase создает конвейер gzip-сжатия для перечисленных фидов.
func NewGzipUseCase(storage ObjectStorage, feeds []domain.FeedName, stagingDir string, chunkSize int, log *slog.Logger) *CompressUseCase {
	return newCompressUseCase(storage, domain.CompressionGzip, feeds, stagingDir, chunkSize, log)
}

func newCompressUseCase(
	storage ObjectStorage,
	compression domain.Compression,
	feeds []domain.FeedName,
	stagingDir string,
	chunkSize int,
	log *slog.Logger,
) *CompressUseCase {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &CompressUseCase{
		storage:     storage,
		compression: compression,
		feeds:       feeds,
		stagingDir:  stagingDir,
		chunkSize:   chunkSize,
		log:         log,
	}
}

// Compression возвращает вид сжатия конвейера.
func (uc *CompressUseCase) Compression() domain.Compression { return uc.compression }

// Command возвращает имя команды конвейера, под чьей блокировкой он выполняется.
func (uc *CompressUseCase) Command() string {
	if uc.compression == domain.CompressionZip {
		return CommandFeedZip
	}
	return CommandFeedGzip
}

// Feeds возвращает фиды, которые сжимает конвейер.
func (uc *CompressUseCase) Feeds() []domain.FeedName { return uc.feeds }

// Run сжимает все настроенные фиды по очереди. Ошибка одного фида
// логируется и не мешает остальным; все ошибки возвращаются вместе.
func (uc *CompressUseCase) Run(ctx context.Context) error {
	const op = "usecase.Compress.Run"
	start := time.Now()
	log := uc.log.With(
		slog.String("component", "compressor"),
		slog.String("op", op),
		slog.String("compression", uc.compression.String()),
	)
	var errs []error
	for _, name := range uc.feeds {
		if err := uc.compressFeed(ctx, log.With(slog.String("feed", name.String())), name); err != nil {
			log.Error("Feed compression failed", slog.String("feed", name.String()), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	log.Info("Compression cycle completed",
		slog.Int("total", len(uc.feeds)),
		slog.Int("errors", len(errs)),
		slog.Duration("duration", time.Since(start)),
	)
	return errors.Join(errs...)
}

func (uc *CompressUseCase) compressFeed(ctx context.Context, log *slog.Logger, name domain.FeedName) error {
	log.Info("Deleting temporary compressed feed if it still exists")
	if err := deleteIfExists(ctx, uc.storage, domain.TmpKey(name, uc.compression)); err != nil {
		return err
	}
	if err := uc.removeStaging(name); err != nil {
		return err
	}

	log.Info("Downloading feed")
	localPath, err := uc.download(ctx, log, name)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	log.Info("Uploading compressed feed")
	uploadErr := uc.upload(ctx, name, localPath)
	if err := removeFile(localPath); err != nil {
		log.Warn("Removing local compressed feed failed", slog.Any("error", err))
	}
	if uploadErr != nil {
		return fmt.Errorf("upload: %w", uploadErr)
	}

	log.Info("Replacing old compressed feed with new one")
	if err := publish(ctx, uc.storage, name, uc.compression); err != nil {
		return err
	}
	logger.Success(log, "Feed successfully compressed")
	return nil
}

// stagingPath возвращает путь локального промежуточного файла: feed-{name}.yml[.{compression}].
func (uc *CompressUseCase) stagingPath(name domain.FeedName, c domain.Compression) string {
	file := "feed-" + name.String() + ".yml"
	if c != domain.CompressionNone {
		file += "." + string(c)
	}
	return filepath.Join(uc.stagingDir, file)
}

// removeStaging удаляет оставшиеся от прошлых запусков локальные файлы этого фида.
func (uc *CompressUseCase) removeStaging(name domain.FeedName) error {
	paths := []string{uc.stagingPath(name, uc.compression)}
	if uc.compression == domain.CompressionZip {
		paths = append(paths, uc.stagingPath(name, domain.CompressionNone))
	}
	for _, path := range paths {
		if err := removeFile(path); err != nil {
			return err
		}
	}
	return nil
}

func (uc *CompressUseCase) download(ctx context.Context, log *slog.Logger, name domain.FeedName) (string, error) {
	switch uc.compression {
	case domain.CompressionGzip:
		path := uc.stagingPath(name, domain.CompressionGzip)
		return path, uc.downloadGzip(ctx, name, path)
	case domain.CompressionZip:
		plainPath := uc.stagingPath(name, domain.CompressionNone)
		if err := uc.downloadPlain(ctx, name, plainPath); err != nil {
			return "", err
		}
		log.Info("Compressing feed")
		zipPath := uc.stagingPath(name, domain.CompressionZip)
		archiveErr := uc.archiveZip(plainPath, zipPath)
		log.Info("Removing local feed")
		if err := removeFile(plainPath); err != nil {
			log.Warn("Removing local feed failed", slog.Any("error", err))
		}
		if archiveErr != nil {
			return "", fmt.Errorf("zip: %w", archiveErr)
		}
		return zipPath, nil
	default:
		return "", fmt.Errorf("unsupported compression %q", uc.compression)
	}
}

// downloadGzip читает опубликованный фид и пишет его сразу в gzip-поток, за один проход.
func (uc *CompressUseCase) downloadGzip(ctx context.Context, name domain.FeedName, path string) (err error) {
	return uc.downloadTo(ctx, name, path, func(f *os.File) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(f, gzip.BestCompression)
	})
}

// downloadPlain копирует опубликованный фид в несжатый локальный файл.
func (uc *CompressUseCase) downloadPlain(ctx context.Context, name domain.FeedName, path string) error {
	return uc.downloadTo(ctx, name, path, func(f *os.File) (io.WriteCloser, error) {
		return nopWriteCloser{f}, nil
	})
}

func (uc *CompressUseCase) downloadTo(
	ctx context.Context,
	name domain.FeedName,
	path string,
	wrap func(*os.File) (io.WriteCloser, error),
) (err error) {
	src, err := uc.storage.OpenRead(ctx, domain.PublicKey(name, domain.CompressionNone))
	if err != nil {
		return fmt.Errorf("open public feed: %w", err)
	}
	defer src.Close()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = removeFile(path)
		}
	}()
	w, err := wrap(file)
	if err != nil {
		file.Close()
		return err
	}
	if _, err := copyChunked(w, src, uc.chunkSize); err != nil {
		w.Close()
		file.Close()
		return err
	}
	if err := w.Close(); err != nil {
		file.Close()
		return fmt.Errorf("finish local file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close local file: %w", err)
	}
	return nil
}

// archiveZip упаковывает несжатый файл в zip-архив с единственной записью ZipEntryName.
func (uc *CompressUseCase) archiveZip(plainPath, zipPath string) (err error) {
	src, err := os.Open(plainPath)
	if err != nil {
		return err
	}
	defer src.Close()

	file, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = removeFile(zipPath)
		}
	}()
	zw := zip.NewWriter(file)
	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     ZipEntryName,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		zw.Close()
		file.Close()
		return fmt.Errorf("add zip entry: %w", err)
	}
	if _, err := copyChunked(entry, src, uc.chunkSize); err != nil {
		zw.Close()
		file.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close zip archive: %w", err)
	}
	return file.Close()
}

// upload копирует локальный сжатый файл во временный объект хранилища.
func (uc *CompressUseCase) upload(ctx context.Context, name domain.FeedName, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := uc.storage.OpenWrite(ctx, domain.TmpKey(name, uc.compression))
	if err != nil {
		return fmt.Errorf("open temporary feed: %w", err)
	}
	if _, err := copyChunked(dst, src, uc.chunkSize); err != nil {
		_ = abortWrite(dst, err)
		return err
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close temporary feed: %w", err)
	}
	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
