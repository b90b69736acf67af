package database

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// RecordImportRun stores one import history row.
func (s *Store) RecordImportRun(ctx context.Context, run core.ImportRun) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO import_runs (id, file_name, atomic, strict_headers, total, inserted, failed,
		                         rolled_back, error_count, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		core.ToPgUUID(run.ID), run.FileName, run.Atomic, run.StrictHeaders,
		run.Total, run.Inserted, run.Failed, run.RolledBack, run.ErrorCount,
		run.Actor, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// ListImportRuns returns the newest runs first.
func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, file_name, atomic, strict_headers, total, inserted, failed,
		       rolled_back, error_count, actor, created_at
		FROM import_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ImportRun, error) {
		var (
			run core.ImportRun
			id  pgtype.UUID
		)
		err := row.Scan(&id, &run.FileName, &run.Atomic, &run.StrictHeaders,
			&run.Total, &run.Inserted, &run.Failed, &run.RolledBack, &run.ErrorCount,
			&run.Actor, &run.CreatedAt)
		run.ID = core.PgUUIDToString(id)
		return run, err
	})
}
