package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/auth"
	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// FindAdminByEmail implements auth.AdminStore.
func (s *Store) FindAdminByEmail(ctx context.Context, email string) (*auth.Admin, error) {
	var (
		a         auth.Admin
		id        pgtype.UUID
		lastLogin pgtype.Timestamptz
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, active, created_at, last_login_at
		FROM admin_users WHERE email = $1`, email,
	).Scan(&id, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Active, &a.CreatedAt, &lastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.ID = core.PgUUIDToString(id)
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	return &a, nil
}

// CreateAdmin implements auth.AdminStore.
func (s *Store) CreateAdmin(ctx context.Context, a auth.Admin) (string, error) {
	var id pgtype.UUID
	err := s.db.QueryRow(ctx, `
		INSERT INTO admin_users (email, display_name, password_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, a.Email, a.DisplayName, a.PasswordHash, a.Active, a.CreatedAt,
	).Scan(&id)
	if IsUniqueViolation(err) {
		return "", auth.ErrAdminExists
	}
	if err != nil {
		return "", fmt.Errorf("insert admin: %w", err)
	}
	return core.PgUUIDToString(id), nil
}

// TouchLastLogin implements auth.AdminStore.
func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE admin_users SET last_login_at = $2 WHERE id = $1`, core.ToPgUUID(id), at)
	return err
}
