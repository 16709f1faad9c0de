package migrations

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Migration struct {
	ID    string
	UpSQL string
}

// DB - подмножество pgxpool.Pool, нужное для миграций.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var allMigrations = []Migration{
	{
		ID: "20240301090000_create_categories_table",
		UpSQL: `
		CREATE TABLE categories(
		id TEXT PRIMARY KEY,
		level INTEGER NOT NULL DEFAULT 1,
		parent_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
		slug TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
		);`,
	},
	{
		ID: "20240301090100_create_offers_table",
		UpSQL: `
		CREATE TABLE offers(
		id TEXT PRIMARY KEY,
		category_id TEXT REFERENCES categories(id) ON DELETE SET NULL,
		available BOOLEAN NOT NULL DEFAULT TRUE,
		name TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		price NUMERIC(12, 2) NOT NULL DEFAULT 0,
		currency_id TEXT NOT NULL DEFAULT 'RUR',
		picture TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	},
	{
		ID:    "20240301090200_index_offers_category",
		UpSQL: `CREATE INDEX offers_category_id_idx ON offers(category_id);`,
	},
}

// All возвращает миграции, упорядоченные по ID.
func All() []Migration {
	sorted := slices.Clone(allMigrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return strings.Compare(a.ID, b.ID) })
	return sorted
}

// Apply применяет все необходимые миграции к базе данных в одной транзакции.
func Apply(ctx context.Context, log *slog.Logger, db DB) error {
	log = log.With(slog.String("component", "migrations"))
	log.Info("Starting database migrations check...")
	_, err := db.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
	id TEXT PRIMARY KEY
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	rows, err := db.Query(ctx, "SELECT id FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to scan migration id: %w", err)
	}
	pending := Pending(applied)
	if len(pending) == 0 {
		log.Info("Database is up to date, no new migrations found.")
		return nil
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	for _, m := range pending {
		log.Info("Applying migration", slog.String("id", m.ID))
		if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (id) VALUES ($1)", m.ID); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migrations transaction: %w", err)
	}
	log.Info("Database migrations applied successfully", slog.Int("count", len(pending)))
	return nil
}

// Pending возвращает еще не примененные миграции в порядке применения.
func Pending(applied []string) []Migration {
	done := make(map[string]bool, len(applied))
	for _, id := range applied {
		done[id] = true
	}
	var pending []Migration
	for _, m := range All() {
		if !done[m.ID] {
			pending = append(pending, m)
		}
	}
	return pending
}
