package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements every core store interface on one pool.
type Store struct {
	db TxBeginner
}

// New creates a Store.
func New(db TxBeginner) *Store {
	return &Store{db: db}
}

// NewFromPool is New for the common case.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return New(pool)
}

// Stores returns the store set for core.NewService.
func (s *Store) Stores() core.Stores {
	return core.Stores{Responses: s, Drafts: s, Runs: s, Reports: s}
}

// ----------------------------------------------------------------------------
// Column layout
// ----------------------------------------------------------------------------

// scalarColumns are the survey_responses columns fed from the record, in
// catalog order.
var scalarColumns = survey.ScalarFields()

var insertResponseSQL = buildInsertResponseSQL()

func buildInsertResponseSQL() string {
	cols := make([]string, 0, len(scalarColumns)+5)
	for _, f := range scalarColumns {
		cols = append(cols, quoteIdent(f.Key))
	}
	cols = append(cols, "email_normalized", "full_name_key", "source", "session_token", "completed_at")

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO survey_responses (%s) VALUES (%s) RETURNING id",
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)
}

func responseArgs(r core.NewResponse) []any {
	args := make([]any, 0, len(scalarColumns)+5)
	for _, f := range scalarColumns {
		v := r.Record.Get(f.Key)
		switch {
		case f.Key == survey.FieldConsentGiven:
			args = append(args, r.ConsentGiven)
		case f.Kind == survey.KindBool:
			args = append(args, core.ToPgBool(v))
		default:
			args = append(args, core.ToPgText(v))
		}
	}
	return append(args,
		r.EmailNormalized,
		r.FullNameKey,
		r.Source,
		core.ToPgText(r.SessionToken),
		core.ToPgTimestamptz(r.CompletedAt),
	)
}

var selectResponsesSQL = buildSelectResponsesSQL()

func buildSelectResponsesSQL() string {
	cols := []string{"r.id", "r.source", "r.completed_at"}
	for _, f := range scalarColumns {
		cols = append(cols, "r."+quoteIdent(f.Key))
	}
	cols = append(cols, `(
		SELECT coalesce(jsonb_object_agg(x.field, x.vals), '{}'::jsonb)
		FROM (
			SELECT v.field, jsonb_agg(v.value ORDER BY v.value) AS vals
			FROM response_values v
			WHERE v.response_id = r.id
			GROUP BY v.field
		) x
	) AS lists`)
	return fmt.Sprintf(
		"SELECT %s FROM survey_responses r WHERE r.completed_at IS NOT NULL ORDER BY r.completed_at, r.id",
		strings.Join(cols, ", "),
	)
}

// ----------------------------------------------------------------------------
// core.ResponseStore
// ----------------------------------------------------------------------------

// BeginResponses opens a response-writing transaction.
func (s *Store) BeginResponses(ctx context.Context) (core.ResponseTx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &responseTx{tx: tx}, nil
}

// ResponseExists reports whether a completed response has this identity.
func (s *Store) ResponseExists(ctx context.Context, emailNormalized, fullNameKey string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM survey_responses
			WHERE email_normalized = $1 AND full_name_key = $2 AND completed_at IS NOT NULL
		)`, emailNormalized, fullNameKey,
	).Scan(&exists)
	return exists, err
}

// EachResponse streams completed responses in completion order.
func (s *Store) EachResponse(ctx context.Context, fn func(core.StoredResponse) error) error {
	rows, err := s.db.Query(ctx, selectResponsesSQL)
	if err != nil {
		return fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return err
		}
		if err := fn(*resp); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanResponse(rows pgx.Rows) (*core.StoredResponse, error) {
	var (
		id          pgtype.UUID
		source      string
		completedAt pgtype.Timestamptz
		lists       []byte
	)
	texts := make([]pgtype.Text, len(scalarColumns))
	bools := make([]pgtype.Bool, len(scalarColumns))

	dest := []any{&id, &source, &completedAt}
	for i, f := range scalarColumns {
		if f.Kind == survey.KindBool {
			dest = append(dest, &bools[i])
		} else {
			dest = append(dest, &texts[i])
		}
	}
	dest = append(dest, &lists)

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan response: %w", err)
	}

	rec := survey.NewRecord()
	for i, f := range scalarColumns {
		if f.Kind == survey.KindBool {
			rec.Set(f.Key, core.FromPgBool(bools[i]))
		} else {
			rec.Set(f.Key, core.FromPgText(texts[i]))
		}
	}
	var multi map[string][]string
	if err := json.Unmarshal(lists, &multi); err != nil {
		return nil, fmt.Errorf("decode response values: %w", err)
	}
	for key, values := range multi {
		rec.SetList(key, values)
	}

	return &core.StoredResponse{
		ID:          core.PgUUIDToString(id),
		Record:      rec,
		Source:      source,
		CompletedAt: completedAt.Time,
	}, nil
}

// ----------------------------------------------------------------------------
// core.ResponseTx
// ----------------------------------------------------------------------------

type responseTx struct {
	tx pgx.Tx
}

func (t *responseTx) InsertResponse(ctx context.Context, r core.NewResponse) (string, error) {
	var id pgtype.UUID
	if err := t.tx.QueryRow(ctx, insertResponseSQL, responseArgs(r)...).Scan(&id); err != nil {
		if IsUniqueViolation(err) {
			return "", fmt.Errorf("insert response: %w", core.ErrDuplicate)
		}
		return "", fmt.Errorf("insert response: %w", err)
	}

	batch := &pgx.Batch{}
	for _, f := range survey.MultiFields() {
		for _, v := range r.Record.List(f.Key) {
			batch.Queue(`INSERT INTO response_values (response_id, field, value) VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING`, id, f.Key, v)
		}
	}
	if batch.Len() > 0 {
		if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
			return "", fmt.Errorf("insert response values: %w", err)
		}
	}
	return core.PgUUIDToString(id), nil
}

func (t *responseTx) CompleteDraft(ctx context.Context, token string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE survey_drafts SET completed_at = $2, updated_at = $2
		WHERE token = $1 AND completed_at IS NULL`, token, at)
	return err
}

func (t *responseTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *responseTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
