package storage

import (
	"context"
	"fmt"
	"log/slog"

	"feedgen/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCatalog читает категории и предложения из таблиц categories и offers.
type PostgresCatalog struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresCatalog(pool *pgxpool.Pool, log *slog.Logger) *PostgresCatalog {
	log.Info("Initializing Postgres catalog", slog.String("component", "catalog"))
	return &PostgresCatalog{
		pool: pool,
		log:  log.With(slog.String("component", "catalog")),
	}
}

func (db *PostgresCatalog) Close() {
	db.log.Info("Closing database connection pool")
	db.pool.Close()
}

// GetCategories возвращает все категории в порядке дерева: сначала по уровню, затем по позиции.
func (db *PostgresCatalog) GetCategories(ctx context.Context) ([]domain.Category, error) {
	const op = "storage.postgres.GetCategories"
	log := db.log.With(slog.String("op", op))
	query := `
	SELECT id, level, COALESCE(parent_id, ''), slug, url, title
	FROM categories
	ORDER BY level, position, id;
	`
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		log.Error("Database query failed", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}
	categories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Category, error) {
		var c domain.Category
		err := row.Scan(&c.ID, &c.Level, &c.ParentID, &c.Slug, &c.URL, &c.Title)
		return c, err
	})
	if err != nil {
		log.Error("Failed to collect rows", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to scan row: %w", op, err)
	}
	log.Debug("Categories retrieved", slog.Int("count", len(categories)))
	return categories, nil
}

// GetOffersTotal возвращает количество предложений.
func (db *PostgresCatalog) GetOffersTotal(ctx context.Context) (int, error) {
	const op = "storage.postgres.GetOffersTotal"
	var total int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM offers;`).Scan(&total); err != nil {
		db.log.Error("Database query failed", slog.String("op", op), slog.Any("error", err))
		return 0, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}
	return total, nil
}

// GetOffers возвращает страницу предложений. Страницы нумеруются с единицы
// и упорядочены по id, поэтому последовательный обход видит каждое предложение один раз.
func (db *PostgresCatalog) GetOffers(ctx context.Context, limit, page int) ([]domain.Offer, error) {
	const op = "storage.postgres.GetOffers"
	log := db.log.With(slog.String("op", op), slog.Int("limit", limit), slog.Int("page", page))
	if limit <= 0 || page <= 0 {
		return nil, fmt.Errorf("%s: invalid page %d of size %d", op, page, limit)
	}
	query := `
	SELECT id, COALESCE(category_id, ''), available, name, url, price::text, currency_id, picture, description
	FROM offers
	ORDER BY id
	LIMIT $1 OFFSET $2;
	`
	rows, err := db.pool.Query(ctx, query, limit, (page-1)*limit)
	if err != nil {
		log.Error("Database query failed", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}
	offers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Offer, error) {
		var o domain.Offer
		err := row.Scan(
			&o.ID,
			&o.CategoryID,
			&o.Available,
			&o.Name,
			&o.URL,
			&o.Price,
			&o.CurrencyID,
			&o.Picture,
			&o.Description,
		)
		return o, err
	})
	if err != nil {
		log.Error("Failed to collect rows", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to scan row: %w", op, err)
	}
	return offers, nil
}
