package usecase

import (
	"context"
	"io"
	"time"

	"feedgen/internal/domain"
)

// ObjectStorage определяет интерфейс объектного хранилища фидов.
// Delete возвращает domain.ErrObjectNotFound, если объекта нет.
// Потоки, возвращаемые OpenRead и OpenWrite, должны быть закрыты вызывающей стороной.
type ObjectStorage interface {
	OpenRead(ctx context.Context, key string) (io.ReadCloser, error)
	OpenWrite(ctx context.Context, key string) (io.WriteCloser, error)
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Head(ctx context.Context, key string) (domain.ObjectInfo, error)
}

// AtomicPublisher реализуется хранилищами, которые умеют атомарно заменить
// публичный объект временным. Если хранилище его не реализует,
// публикация выполняется тремя шагами: удаление, копирование, удаление.
type AtomicPublisher interface {
	Publish(ctx context.Context, tmpKey, publicKey string) error
}

// Catalog определяет постраничный источник категорий и предложений.
// Страницы нумеруются с единицы.
type Catalog interface {
	GetCategories(ctx context.Context) ([]domain.Category, error)
	GetOffersTotal(ctx context.Context) (int, error)
	GetOffers(ctx context.Context, limit, page int) ([]domain.Offer, error)
}

// FeedRenderer отрисовывает фрагменты одного варианта фида.
type FeedRenderer interface {
	FeedName() domain.FeedName
	RenderHeader() (string, error)
	RenderCategory(category domain.Category) (string, error)
	RenderOffer(offer domain.Offer) (string, error)
	RenderFooter() (string, error)
}

// Locker выдает именованные эксклюзивные блокировки с ограниченным временем жизни.
// TryLock не ждет: если блокировка занята, acquired равен false.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}
