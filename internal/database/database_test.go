package database

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/eteeap-survey/internal/auth"
	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/otp"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

var (
	_ core.ResponseStore  = (*Store)(nil)
	_ core.DraftStore     = (*Store)(nil)
	_ core.ImportRunStore = (*Store)(nil)
	_ core.ReportStore    = (*Store)(nil)
	_ auth.AdminStore     = (*Store)(nil)
	_ otp.Store           = (*ChallengeStore)(nil)
)

// ----------------------------------------------------------------------------
// Helper Tests
// ----------------------------------------------------------------------------

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"fk violation", &pgconn.PgError{Code: "23503"}, false},
		{"plain error", fmt.Errorf("duplicate key"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChallengeLockKey(t *testing.T) {
	a := otp.Key{Purpose: otp.PurposeSurveyVerify, Email: "a@b.ph", Binding: "draft-1"}
	b := a
	b.Binding = "draft-2"
	c := a
	c.Purpose = otp.PurposeAdminLogin

	if challengeLockKey(a) == challengeLockKey(b) {
		t.Error("lock key should differ by binding")
	}
	if challengeLockKey(a) == challengeLockKey(c) {
		t.Error("lock key should differ by purpose")
	}
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgres://user:pw@localhost:5432/eteeap?sslmode=disable", "eteeap"},
		{"postgres://localhost", ""},
	}
	for _, tt := range tests {
		if got := DatabaseName(tt.url); got != tt.want {
			t.Errorf("DatabaseName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestSchema_DefinesTables(t *testing.T) {
	for _, table := range []string{
		"survey_responses", "response_values", "survey_drafts",
		"otp_challenges", "admin_users", "rate_buckets", "import_runs",
	} {
		if !strings.Contains(Schema(), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing table %s", table)
		}
	}
}

func TestSchema_HasColumnPerScalarField(t *testing.T) {
	for _, f := range survey.ScalarFields() {
		if !strings.Contains(Schema(), "    "+f.Key+" ") {
			t.Errorf("schema missing column %s", f.Key)
		}
	}
}

// ----------------------------------------------------------------------------
// SQL Builder Tests
// ----------------------------------------------------------------------------

func TestInsertResponseSQL(t *testing.T) {
	for _, f := range scalarColumns {
		if !strings.Contains(insertResponseSQL, `"`+f.Key+`"`) {
			t.Errorf("insert missing column %s", f.Key)
		}
	}
	want := fmt.Sprintf("$%d)", len(scalarColumns)+5)
	if !strings.Contains(insertResponseSQL, want) {
		t.Errorf("insert placeholders do not end at %s: %s", want, insertResponseSQL)
	}
}

func TestResponseArgs(t *testing.T) {
	rec := survey.ExampleRecord()
	args := responseArgs(core.NewResponse{
		Record:          rec,
		ConsentGiven:    true,
		EmailNormalized: "juan.delacruz@example.gov.ph",
		Source:          core.SourceImport,
		CompletedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if got, want := len(args), len(scalarColumns)+5; got != want {
		t.Fatalf("len(args) = %d, want %d", got, want)
	}
	for i, f := range scalarColumns {
		if f.Key == survey.FieldConsentGiven {
			if args[i] != true {
				t.Errorf("consent arg = %v, want true", args[i])
			}
		}
	}
}

func TestGroupExpr(t *testing.T) {
	expr, err := groupExpr(survey.FieldSex)
	if err != nil || expr != `coalesce("sex", '')` {
		t.Errorf("groupExpr(sex) = %q, %v", expr, err)
	}

	expr, err = groupExpr(survey.FieldETEEAPAware)
	if err != nil || !strings.Contains(expr, "CASE WHEN") {
		t.Errorf("groupExpr(eteeap_aware) = %q, %v", expr, err)
	}

	if _, err := groupExpr(survey.FieldMotivations); err == nil {
		t.Error("groupExpr(multi) should fail")
	}
	if _, err := groupExpr("sex; DROP TABLE survey_responses"); err == nil {
		t.Error("groupExpr(injection) should fail")
	}
}
