package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ContentRepo serves game content (prompt words) from Postgres. Game code
// treats it as an external service: queries that fail come back empty, never
// as a room-killing error.
type ContentRepo struct {
	pool *pgxpool.Pool
}

func NewContentRepo(ctx context.Context, connString string) (*ContentRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &ContentRepo{pool: pool}, nil
}

// Migrate brings the content schema up to date.
func Migrate(connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// RandomWords fetches count random prompt words. On any failure it returns
// an empty slice; callers fall back to their builtin pools.
func (cr *ContentRepo) RandomWords(ctx context.Context, count int) []string {
	rows, err := cr.pool.Query(ctx, `SELECT word FROM words ORDER BY RANDOM() LIMIT $1`, count)
	if err != nil {
		return []string{}
	}
	defer rows.Close()

	words := make([]string, 0, count)
	for rows.Next() {
		var word string
		if err := rows.Scan(&word); err != nil {
			continue
		}
		words = append(words, word)
	}
	return words
}

// AddWord inserts one prompt word, ignoring duplicates.
func (cr *ContentRepo) AddWord(ctx context.Context, word string) error {
	_, err := cr.pool.Exec(ctx,
		`INSERT INTO words(word) VALUES($1) ON CONFLICT (word) DO NOTHING`, word)
	if err != nil {
		return fmt.Errorf("insert word: %w", err)
	}
	return nil
}

// WordCount reports how many prompt words are loaded.
func (cr *ContentRepo) WordCount(ctx context.Context) (int, error) {
	var n int
	if err := cr.pool.QueryRow(ctx, `SELECT COUNT(*) FROM words`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count words: %w", err)
	}
	return n, nil
}

func (cr *ContentRepo) Close() {
	cr.pool.Close()
}
