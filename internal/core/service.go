package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/otp"
)

// DefaultImportTimeout bounds one import when Config.ImportTimeout is zero.
var DefaultImportTimeout = 10 * time.Minute

// DefaultDraftTTL is how long an untouched draft stays resumable.
var DefaultDraftTTL = 24 * time.Hour

// Config holds the tunables of Service. Zero values fall back to defaults.
type Config struct {
	MaxFileSize          int64
	MaxRows              int
	MaxLineBytes         int
	MaxErrors            int
	MaxConcurrentImports int
	ImportWait           time.Duration
	ImportTimeout        time.Duration

	DraftTTL                 time.Duration
	RequireEmailVerification bool
}

func (c Config) maxRows() int {
	if c.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return c.MaxRows
}

func (c Config) maxLineBytes() int {
	if c.MaxLineBytes <= 0 {
		return DefaultMaxLineBytes
	}
	return c.MaxLineBytes
}

func (c Config) maxErrors() int {
	if c.MaxErrors <= 0 {
		return DefaultMaxErrors
	}
	return c.MaxErrors
}

func (c Config) draftTTL() time.Duration {
	if c.DraftTTL <= 0 {
		return DefaultDraftTTL
	}
	return c.DraftTTL
}

// Verifier issues and checks emailed one-time codes.
type Verifier interface {
	Issue(ctx context.Context, req otp.IssueRequest) error
	Verify(ctx context.Context, key otp.Key, code string) (bool, error)
}

// Service provides survey intake, import, export and reporting.
type Service struct {
	stores   Stores
	verifier Verifier
	limiter  *ImportLimiter
	cfg      Config

	now   func() time.Time
	idGen func() string
}

// NewService creates a Service. verifier may be nil when email verification
// is not offered.
func NewService(stores Stores, verifier Verifier, cfg Config) *Service {
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = DefaultImportTimeout
	}
	return &Service{
		stores:   stores,
		verifier: verifier,
		limiter:  NewImportLimiter(cfg.MaxConcurrentImports, cfg.ImportWait),
		cfg:      cfg,
		now:      time.Now,
		idGen:    newID,
	}
}

// ImportLimiter exposes the import concurrency guard for status endpoints
// and graceful shutdown.
func (s *Service) ImportLimiter() *ImportLimiter {
	return s.limiter
}

// RequiresEmailVerification reports whether drafts must verify their email
// before submission.
func (s *Service) RequiresEmailVerification() bool {
	return s.cfg.RequireEmailVerification
}
