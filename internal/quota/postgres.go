package quota

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var migrationFS embed.FS

const (
	incrementSQL = `
		INSERT INTO provider_quota (date, provider, endpoint, call_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (date, provider, endpoint)
		DO UPDATE SET call_count = provider_quota.call_count + 1, updated_at = now()
		RETURNING call_count`

	usageSQL = `
		SELECT COALESCE(SUM(call_count), 0)::BIGINT
		FROM provider_quota
		WHERE date = $1 AND provider = $2`
)

// Querier is the subset of pgxpool.Pool used by PostgresCounter.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCounter stores counters as rows of provider_quota. The upsert
// increments in a single statement, so concurrent instances never lose updates.
type PostgresCounter struct {
	db Querier
}

// NewPostgresCounter creates a PostgresCounter.
func NewPostgresCounter(db Querier) *PostgresCounter {
	return &PostgresCounter{db: db}
}

func (p *PostgresCounter) Increment(ctx context.Context, key Key) (int64, error) {
	date, err := time.Parse(dateLayout, key.Date)
	if err != nil {
		return 0, fmt.Errorf("parse quota date %q: %w", key.Date, err)
	}

	var n int64
	if err := p.db.QueryRow(ctx, incrementSQL, date, key.Provider, key.Endpoint).Scan(&n); err != nil {
		return 0, fmt.Errorf("increment provider_quota: %w", err)
	}
	return n, nil
}

func (p *PostgresCounter) Usage(ctx context.Context, date, provider string) (int64, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("parse quota date %q: %w", date, err)
	}

	var total int64
	if err := p.db.QueryRow(ctx, usageSQL, d, provider).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum provider_quota: %w", err)
	}
	return total, nil
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies the embedded schema files in name order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationFS.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFS.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}
