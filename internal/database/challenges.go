package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/otp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ChallengeStore implements otp.Store.
type ChallengeStore struct {
	db TxBeginner
}

// NewChallengeStore creates a ChallengeStore.
func NewChallengeStore(db TxBeginner) *ChallengeStore {
	return &ChallengeStore{db: db}
}

const lastSentQuery = `
	SELECT created_at FROM otp_challenges
	WHERE purpose = $1 AND email = $2 AND binding = $3 AND NOT delivery_failed
	ORDER BY created_at DESC
	LIMIT 1`

// LastSentAt returns when the newest delivered challenge for key was created.
func (c *ChallengeStore) LastSentAt(ctx context.Context, key otp.Key) (time.Time, bool, error) {
	return lastSentAt(ctx, c.db, key)
}

func lastSentAt(ctx context.Context, q DBTX, key otp.Key) (time.Time, bool, error) {
	var at time.Time
	err := q.QueryRow(ctx, lastSentQuery, string(key.Purpose), key.Email, key.Binding).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// challengeLockKey is the advisory lock name serializing issuance for key.
func challengeLockKey(key otp.Key) string {
	return "otp:" + string(key.Purpose) + ":" + key.Email + ":" + key.Binding
}

// Replace consumes the open challenges for ch.Key and inserts ch. The
// cooldown is re-read under a per-key advisory lock so concurrent issues
// cannot both pass it.
func (c *ChallengeStore) Replace(ctx context.Context, ch otp.Challenge, cooldown time.Duration) error {
	return pgx.BeginFunc(ctx, c.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, challengeLockKey(ch.Key)); err != nil {
			return fmt.Errorf("lock challenge key: %w", err)
		}
		last, found, err := lastSentAt(ctx, tx, ch.Key)
		if err != nil {
			return fmt.Errorf("read last send: %w", err)
		}
		if found && ch.CreatedAt.Sub(last) < cooldown {
			return otp.ErrCooldown
		}

		_, err = tx.Exec(ctx, `
			UPDATE otp_challenges SET consumed_at = $4
			WHERE purpose = $1 AND email = $2 AND binding = $3 AND consumed_at IS NULL`,
			string(ch.Key.Purpose), ch.Key.Email, ch.Key.Binding, ch.CreatedAt)
		if err != nil {
			return fmt.Errorf("invalidate challenges: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO otp_challenges (id, purpose, email, binding, code_hash, expires_at,
			                            attempts, max_attempts, ip_address, user_agent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			core.ToPgUUID(ch.ID), string(ch.Key.Purpose), ch.Key.Email, ch.Key.Binding, ch.CodeHash, ch.ExpiresAt,
			ch.Attempts, ch.MaxAttempts, nullText(ch.IPAddress), nullText(ch.UserAgent), ch.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert challenge: %w", err)
		}
		return nil
	})
}

// MarkDeliveryFailed consumes a challenge whose email could not be sent.
func (c *ChallengeStore) MarkDeliveryFailed(ctx context.Context, id string, at time.Time) error {
	_, err := c.db.Exec(ctx, `
		UPDATE otp_challenges SET consumed_at = $2, delivery_failed = true
		WHERE id = $1`, core.ToPgUUID(id), at)
	return err
}

// WithActive locks the newest open challenge for key with FOR UPDATE and
// writes back the attempt counter and consumption time fn leaves on it.
func (c *ChallengeStore) WithActive(ctx context.Context, key otp.Key, fn func(*otp.Challenge) error) error {
	return pgx.BeginFunc(ctx, c.db, func(tx pgx.Tx) error {
		ch, id, err := lockActive(ctx, tx, key)
		if err != nil {
			return err
		}
		if ch == nil {
			return fn(nil)
		}

		attempts, consumed := ch.Attempts, ch.ConsumedAt
		if err := fn(ch); err != nil {
			return err
		}
		if ch.Attempts == attempts && ch.ConsumedAt == consumed {
			return nil
		}

		var consumedAt pgtype.Timestamptz
		if ch.ConsumedAt != nil {
			consumedAt = pgtype.Timestamptz{Time: *ch.ConsumedAt, Valid: true}
		}
		_, err = tx.Exec(ctx, `
			UPDATE otp_challenges SET attempts = $2, consumed_at = $3
			WHERE id = $1`, id, ch.Attempts, consumedAt)
		return err
	})
}

func lockActive(ctx context.Context, tx pgx.Tx, key otp.Key) (*otp.Challenge, pgtype.UUID, error) {
	var (
		ch        otp.Challenge
		id        pgtype.UUID
		ip, agent pgtype.Text
	)
	err := tx.QueryRow(ctx, `
		SELECT id, code_hash, expires_at, attempts, max_attempts, delivery_failed,
		       ip_address, user_agent, created_at
		FROM otp_challenges
		WHERE purpose = $1 AND email = $2 AND binding = $3 AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`, string(key.Purpose), key.Email, key.Binding,
	).Scan(&id, &ch.CodeHash, &ch.ExpiresAt, &ch.Attempts, &ch.MaxAttempts, &ch.DeliveryFailed,
		&ip, &agent, &ch.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, id, nil
	}
	if err != nil {
		return nil, id, fmt.Errorf("lock challenge: %w", err)
	}
	ch.ID = core.PgUUIDToString(id)
	ch.Key = key
	ch.IPAddress = ip.String
	ch.UserAgent = agent.String
	return &ch, id, nil
}

// Purge deletes challenges consumed or expired before cutoff.
func (c *ChallengeStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := c.db.Exec(ctx, `
		DELETE FROM otp_challenges
		WHERE (consumed_at IS NOT NULL AND consumed_at < $1) OR expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
