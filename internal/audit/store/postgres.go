package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/ratelimit-guard/internal/audit"
)

const schema = `
	CREATE TABLE IF NOT EXISTS rate_limit_violations (
		id          TEXT PRIMARY KEY,
		limiter     TEXT        NOT NULL,
		identifier  TEXT        NOT NULL,
		count       BIGINT      NOT NULL,
		max         BIGINT      NOT NULL,
		reset_time  TIMESTAMPTZ NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		client_ip   TEXT
	);
	CREATE INDEX IF NOT EXISTS rate_limit_violations_limiter_idx
		ON rate_limit_violations (limiter, occurred_at DESC);
`

// Postgres is a PostgreSQL implementation of audit.Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL-backed audit store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the violations table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}

	return nil
}

// SaveLimitExceeded inserts the event. Redelivered events are ignored.
func (p *Postgres) SaveLimitExceeded(ctx context.Context, event *audit.LimitExceededEvent) error {
	query := `
		INSERT INTO rate_limit_violations
			(id, limiter, identifier, count, max, reset_time, occurred_at, client_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query,
		event.ID,
		event.Limiter,
		event.Identifier,
		event.Count,
		event.Max,
		event.ResetTime,
		event.OccurredAt,
		nullableString(event.ClientIP),
	)

	return err
}

// CountByLimiter returns how many violations were stored for limiter.
func (p *Postgres) CountByLimiter(ctx context.Context, limiter string) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM rate_limit_violations WHERE limiter = $1`, limiter,
	).Scan(&n)

	return n, err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
