package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"feedgen/internal/config"
	"feedgen/internal/domain"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// uploadPartSize - размер части multipart-загрузки потока неизвестной длины.
const uploadPartSize = 5 << 20

// S3Gateway хранит фиды в бакете S3-совместимого хранилища (MinIO, AWS S3).
type S3Gateway struct {
	client *minio.Client
	bucket string
	region string
	public bool
	log    *slog.Logger
}

// NewS3Gateway создает клиента хранилища по настройкам. Соединение не проверяется,
// для проверки и создания бакета используется Prepare.
func NewS3Gateway(cfg config.StorageConfig, log *slog.Logger) (*S3Gateway, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage.s3.New: %w", err)
	}
	log.Info("Initializing S3 feed storage",
		slog.String("component", "storage"),
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)
	return &S3Gateway{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		public: cfg.PublicPolicy,
		log:    log.With(slog.String("component", "storage"), slog.String("bucket", cfg.Bucket)),
	}, nil
}

// Prepare создает бакет, если его нет, и при необходимости открывает
// публичное чтение опубликованных фидов.
func (s *S3Gateway) Prepare(ctx context.Context) error {
	const op = "storage.s3.Prepare"
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%s: %w", op, s.wrap(err))
	}
	if !exists {
		s.log.Info("Creating bucket")
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("%s: make bucket: %w", op, s.wrap(err))
		}
	}
	if s.public {
		if err := s.client.SetBucketPolicy(ctx, s.bucket, publicReadPolicy(s.bucket)); err != nil {
			return fmt.Errorf("%s: set policy: %w", op, s.wrap(err))
		}
	}
	return nil
}

// OpenRead открывает поток чтения объекта.
func (s *S3Gateway) OpenRead(ctx context.Context, key string) (io.ReadCloser, error) {
	const op = "storage.s3.OpenRead"
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, key, s.wrap(err))
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("%s: %s: %w", op, key, s.wrap(err))
	}
	return obj, nil
}

// OpenWrite открывает поток записи объекта. Данные передаются в хранилище
// по мере записи; объект появляется только после успешного Close.
func (s *S3Gateway) OpenWrite(ctx context.Context, key string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &s3Writer{key: key, pw: pw, done: make(chan error, 1), wrap: s.wrap}
	go func() {
		_, err := s.client.PutObject(ctx, s.bucket, key, pr, -1, minio.PutObjectOptions{
			ContentType: domain.ContentTypeForKey(key),
			PartSize:    uploadPartSize,
		})
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// Delete удаляет объект. Отсутствие объекта возвращается как domain.ErrObjectNotFound.
func (s *S3Gateway) Delete(ctx context.Context, key string) error {
	const op = "storage.s3.Delete"
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return fmt.Errorf("%s: %s: %w", op, key, s.wrap(err))
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%s: %s: %w", op, key, s.wrap(err))
	}
	return nil
}

// maxSingleCopySize - предел одиночного CopyObject в S3.
const maxSingleCopySize = 5 << 30

// Copy копирует объект на стороне сервера. Объекты больше maxSingleCopySize
// копируются по частям через ComposeObject.
func (s *S3Gateway) Copy(ctx context.Context, srcKey, dstKey string) error {
	const op = "storage.s3.Copy"
	src, err := s.client.StatObject(ctx, s.bucket, srcKey, minio.StatObjectOptions{})
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, srcKey, s.wrap(err))
	}
	dst := minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey}
	srcOpts := minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey, MatchETag: src.ETag}
	if needsMultipartCopy(src.Size) {
		s.log.Info("Copying large object in parts",
			slog.String("key", srcKey),
			slog.String("size", humanize.IBytes(uint64(src.Size))),
		)
		_, err = s.client.ComposeObject(ctx, dst, srcOpts)
	} else {
		_, err = s.client.CopyObject(ctx, dst, srcOpts)
	}
	if err != nil {
		return fmt.Errorf("%s: %s -> %s: %w", op, srcKey, dstKey, s.wrap(err))
	}
	return nil
}

// Head возвращает метаданные объекта.
func (s *S3Gateway) Head(ctx context.Context, key string) (domain.ObjectInfo, error) {
	const op = "storage.s3.Head"
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return domain.ObjectInfo{}, fmt.Errorf("%s: %s: %w", op, key, s.wrap(err))
	}
	return domain.ObjectInfo{
		Key:          info.Key,
		ETag:         info.ETag,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// Publish заменяет публичный объект временным. Копирование поверх
// существующего ключа атомарно для читателей: они видят старую или новую версию.
func (s *S3Gateway) Publish(ctx context.Context, tmpKey, publicKey string) error {
	if err := s.Copy(ctx, tmpKey, publicKey); err != nil {
		return err
	}
	if err := s.Delete(ctx, tmpKey); err != nil && !errors.Is(err, domain.ErrObjectNotFound) {
		return err
	}
	s.log.Debug("Object published", slog.String("key", publicKey))
	return nil
}

func needsMultipartCopy(size int64) bool {
	return size > maxSingleCopySize
}

func (s *S3Gateway) wrap(err error) error {
	return mapS3Error(err)
}

func mapS3Error(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey", resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket":
		return fmt.Errorf("%w: %w", domain.ErrObjectNotFound, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrStorageIO, err)
	}
}

// publicReadPolicy разрешает анонимное чтение только опубликованных фидов.
// Временные объекты new_feed_* остаются закрытыми.
func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},`+
		`"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/feed_*"]}]}`, bucket)
}

// s3Writer передает записанные данные в PutObject через io.Pipe.
type s3Writer struct {
	key    string
	pw     *io.PipeWriter
	done   chan error
	wrap   func(error) error
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	n, err := w.pw.Write(p)
	if err != nil {
		return n, fmt.Errorf("storage.s3.Write: %s: %w", w.key, w.wrap(err))
	}
	return n, nil
}

// Close завершает загрузку и ждет ответа хранилища.
func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.pw.Close()
	if err := <-w.done; err != nil {
		return fmt.Errorf("storage.s3.Close: %s: %w", w.key, w.wrap(err))
	}
	return nil
}

// CloseWithError прерывает загрузку: незавершенный объект не создается.
func (w *s3Writer) CloseWithError(cause error) error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.pw.CloseWithError(cause)
	<-w.done
	return nil
}
