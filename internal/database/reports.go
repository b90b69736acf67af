package database

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
	"github.com/jackc/pgx/v5"
)

const completedFilter = `completed_at IS NOT NULL AND ($1 = '' OR office_type = $1)`

// CountCompleted counts completed responses matching f.
func (s *Store) CountCompleted(ctx context.Context, f core.ReportFilter) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM survey_responses WHERE `+completedFilter, f.OfficeType,
	).Scan(&n)
	return n, err
}

// CountByField groups completed responses by a scalar field.
func (s *Store) CountByField(ctx context.Context, field string, f core.ReportFilter) ([]core.ValueCount, error) {
	expr, err := groupExpr(field)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s AS value, count(*)
		FROM survey_responses
		WHERE %s
		GROUP BY 1
		ORDER BY 1`, expr, completedFilter), f.OfficeType)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", field, err)
	}
	return collectCounts(rows)
}

// CountByListValue counts respondents per value of a multi-value field.
func (s *Store) CountByListValue(ctx context.Context, field string, f core.ReportFilter) ([]core.ValueCount, error) {
	if fd, ok := survey.Lookup(field); !ok || fd.Kind != survey.KindMulti {
		return nil, fmt.Errorf("%q is not a multi-value field", field)
	}
	rows, err := s.db.Query(ctx, `
		SELECT v.value, count(DISTINCT v.response_id)
		FROM response_values v
		JOIN survey_responses r ON r.id = v.response_id
		WHERE v.field = $2 AND r.completed_at IS NOT NULL AND ($1 = '' OR r.office_type = $1)
		GROUP BY v.value
		ORDER BY v.value`, f.OfficeType, field)
	if err != nil {
		return nil, fmt.Errorf("count values of %s: %w", field, err)
	}
	return collectCounts(rows)
}

// SessionStats counts wizard sessions for the overview report.
func (s *Store) SessionStats(ctx context.Context) (core.SessionStats, error) {
	var st core.SessionStats
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM survey_drafts),
			(SELECT count(*) FROM survey_drafts WHERE consent_given),
			(SELECT count(*) FROM survey_responses WHERE session_token IS NOT NULL AND completed_at IS NOT NULL)`,
	).Scan(&st.Sessions, &st.ConsentedSessions, &st.CompletedWithSession)
	return st, err
}

// groupExpr returns the SELECT expression producing option codes for field.
// Only catalog scalar fields are accepted.
func groupExpr(field string) (string, error) {
	fd, ok := survey.Lookup(field)
	if !ok || fd.Kind == survey.KindMulti {
		return "", fmt.Errorf("%q is not a scalar survey field", field)
	}
	col := quoteIdent(fd.Key)
	if fd.Kind == survey.KindBool {
		return fmt.Sprintf(`CASE WHEN %[1]s THEN 'yes' WHEN NOT %[1]s THEN 'no' ELSE '' END`, col), nil
	}
	return fmt.Sprintf(`coalesce(%s, '')`, col), nil
}

func collectCounts(rows pgx.Rows) ([]core.ValueCount, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ValueCount, error) {
		var vc core.ValueCount
		err := row.Scan(&vc.Value, &vc.Count)
		return vc, err
	})
}
