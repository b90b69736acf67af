package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a Limiter backed by the rate_buckets table.
type Postgres struct {
	db  TxBeginner
	now func() time.Time
}

// NewPostgres returns a limiter using db.
func NewPostgres(db TxBeginner) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

func (p *Postgres) Allow(ctx context.Context, rules ...Rule) (allowed bool, err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer func() {
		if !allowed || err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := p.now()
	for _, r := range rules {
		// Serializes concurrent first hits on a key that has no row yet.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.Key); err != nil {
			return false, fmt.Errorf("lock bucket: %w", err)
		}

		var count int
		err := tx.QueryRow(ctx,
			`SELECT count FROM rate_buckets WHERE key = $1 AND window_start = $2`,
			r.Key, windowStart(now, r.Window),
		).Scan(&count)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("read bucket: %w", err)
		}
		if count >= r.Limit {
			return false, nil
		}
	}

	for _, r := range rules {
		_, err := tx.Exec(ctx, `
			INSERT INTO rate_buckets (key, window_start, count)
			VALUES ($1, $2, 1)
			ON CONFLICT (key, window_start) DO UPDATE SET count = rate_buckets.count + 1`,
			r.Key, windowStart(now, r.Window),
		)
		if err != nil {
			return false, fmt.Errorf("increment bucket: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit rate limit tx: %w", err)
	}
	return true, nil
}

// Purge deletes buckets whose window started before cutoff.
func (p *Postgres) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM rate_buckets WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge rate buckets: %w", err)
	}
	return tag.RowsAffected(), nil
}
