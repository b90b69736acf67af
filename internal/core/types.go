package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

// Response sources.
const (
	SourceImport = "import"
	SourceWeb    = "web"
	SourceAPI    = "api"
)

// NewResponse is a validated, sanitized response ready to persist.
type NewResponse struct {
	Record          survey.Record
	ConsentGiven    bool
	EmailNormalized string
	FullNameKey     string
	Source          string
	SessionToken    string // draft token, empty for imports and direct API posts
	CompletedAt     time.Time
}

// StoredResponse is a completed response read back for export.
type StoredResponse struct {
	ID          string
	Record      survey.Record
	Source      string
	CompletedAt time.Time
}

// ResponseTx is one response-writing transaction.
type ResponseTx interface {
	// InsertResponse stores the response and its multi-value rows. A unique
	// violation is reported as ErrDuplicate.
	InsertResponse(ctx context.Context, r NewResponse) (string, error)

	// CompleteDraft marks a draft submitted inside the same transaction.
	CompleteDraft(ctx context.Context, token string, at time.Time) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ResponseStore persists completed responses.
type ResponseStore interface {
	BeginResponses(ctx context.Context) (ResponseTx, error)
	ResponseExists(ctx context.Context, emailNormalized, fullNameKey string) (bool, error)
	EachResponse(ctx context.Context, fn func(StoredResponse) error) error
}

// Draft is an in-progress wizard submission.
type Draft struct {
	Token         string                   `json:"token"`
	CurrentStep   int                      `json:"current_step"`
	Data          map[string]survey.Record `json:"data"`
	ConsentGiven  bool                     `json:"consent_given"`
	VerifiedEmail string                   `json:"verified_email,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
	ExpiresAt     time.Time                `json:"expires_at"`
	CompletedAt   *time.Time               `json:"completed_at,omitempty"`
}

// Email returns the address entered on the basic information step.
func (d *Draft) Email() string {
	return d.Data[string(survey.SectionBasicInfo)].Get(survey.FieldEmail)
}

// DraftStore persists wizard drafts.
type DraftStore interface {
	CreateDraft(ctx context.Context, d Draft) error
	// GetDraft returns nil, nil when the token is unknown.
	GetDraft(ctx context.Context, token string) (*Draft, error)
	SaveDraft(ctx context.Context, d Draft) error
	// ExpireDrafts clears the payload of uncompleted drafts past expiry and
	// returns how many were cleared.
	ExpireDrafts(ctx context.Context, now time.Time) (int64, error)
}

// ImportRun is one row of import history.
type ImportRun struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	Atomic        bool      `json:"atomic"`
	StrictHeaders bool      `json:"strict_headers"`
	Total         int       `json:"total"`
	Inserted      int       `json:"inserted"`
	Failed        int       `json:"failed"`
	RolledBack    bool      `json:"rolled_back"`
	ErrorCount    int       `json:"error_count"`
	Actor         string    `json:"actor"`
	CreatedAt     time.Time `json:"created_at"`
}

// ImportRunStore persists import history.
type ImportRunStore interface {
	RecordImportRun(ctx context.Context, run ImportRun) error
	ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error)
}

// ValueCount is one GROUP BY bucket.
type ValueCount struct {
	Value string
	Count int
}

// SessionStats feeds the overview report.
type SessionStats struct {
	Sessions             int
	ConsentedSessions    int
	CompletedWithSession int
}

// ReportStore runs the aggregate queries behind reports.
type ReportStore interface {
	CountCompleted(ctx context.Context, f ReportFilter) (int, error)
	CountByField(ctx context.Context, field string, f ReportFilter) ([]ValueCount, error)
	CountByListValue(ctx context.Context, field string, f ReportFilter) ([]ValueCount, error)
	SessionStats(ctx context.Context) (SessionStats, error)
}

// Stores groups the persistence dependencies of Service.
type Stores struct {
	Responses ResponseStore
	Drafts    DraftStore
	Runs      ImportRunStore
	Reports   ReportStore
}
