package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateDraft inserts a new draft.
func (s *Store) CreateDraft(ctx context.Context, d core.Draft) error {
	data, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO survey_drafts (token, current_step, data, consent_given, verified_email, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.Token, d.CurrentStep, data, d.ConsentGiven, core.ToPgText(d.VerifiedEmail),
		d.CreatedAt, d.UpdatedAt, d.ExpiresAt,
	)
	return err
}

// GetDraft loads a draft, or nil when the token is unknown.
func (s *Store) GetDraft(ctx context.Context, token string) (*core.Draft, error) {
	var (
		d           core.Draft
		data        []byte
		verified    pgtype.Text
		completedAt pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx, `
		SELECT token, current_step, data, consent_given, verified_email,
		       created_at, updated_at, expires_at, completed_at
		FROM survey_drafts WHERE token = $1`, token,
	).Scan(&d.Token, &d.CurrentStep, &data, &d.ConsentGiven, &verified,
		&d.CreatedAt, &d.UpdatedAt, &d.ExpiresAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.VerifiedEmail = core.FromPgText(verified)
	if completedAt.Valid {
		t := completedAt.Time
		d.CompletedAt = &t
	}
	d.Data = make(map[string]survey.Record)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d.Data); err != nil {
			return nil, fmt.Errorf("decode draft: %w", err)
		}
	}
	return &d, nil
}

// SaveDraft overwrites the mutable fields of a draft.
func (s *Store) SaveDraft(ctx context.Context, d core.Draft) error {
	data, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE survey_drafts
		SET current_step = $2, data = $3, consent_given = $4, verified_email = $5,
		    updated_at = $6, expires_at = $7
		WHERE token = $1 AND completed_at IS NULL`,
		d.Token, d.CurrentStep, data, d.ConsentGiven, core.ToPgText(d.VerifiedEmail),
		d.UpdatedAt, d.ExpiresAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrDraftNotFound
	}
	return nil
}

// ExpireDrafts clears the payload of abandoned drafts. The rows stay so the
// overview report can still count sessions.
func (s *Store) ExpireDrafts(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE survey_drafts SET data = NULL, verified_email = NULL
		WHERE completed_at IS NULL AND expires_at <= $1 AND data IS NOT NULL`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
