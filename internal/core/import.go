package core

// import.go implements the CSV import pipeline.
//
// The pipeline runs in four phases:
//
//  1. Admission: transport, extension, size and content-type checks.
//  2. Header resolution: map the first row onto survey field keys.
//  3. Row processing: each data row becomes a RowResult holding either a
//     sanitized NewResponse or the messages explaining why it failed.
//  4. Persistence: one transaction for the whole file (atomic) or one per row.
//
// Row numbers follow spreadsheet numbering: the header is row 1 and the first
// data row is row 2. Rows are counted by CSV record, so a quoted cell spanning
// several lines is still one row. File-level failures are reported at row 0.

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/logging"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
	"github.com/google/uuid"
)

// Import defaults.
const (
	DefaultMaxRows      = 5000
	DefaultMaxLineBytes = 200 * 1024
	DefaultMaxErrors    = 200
)

const duplicateEntryMessage = "Duplicate entry (likely duplicate email)"

// ImportOptions controls one import.
type ImportOptions struct {
	StrictHeaders bool
	Atomic        bool
	DryRun        bool
	// MaxRows caps the data rows read for this import. Zero or a value
	// above the service limit uses the service limit.
	MaxRows int
	// Actor identifies who ran the import in history and logs.
	Actor string
}

func (o ImportOptions) rowLimit(serviceMax int) int {
	if o.MaxRows > 0 && o.MaxRows < serviceMax {
		return o.MaxRows
	}
	return serviceMax
}

// RowError is one reported failure.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult is the outcome of an import.
type ImportResult struct {
	Success    bool       `json:"success"`
	Inserted   int        `json:"inserted"`
	Valid      int        `json:"valid"`
	Failed     int        `json:"failed"`
	Total      int        `json:"total"`
	Atomic     bool       `json:"atomic"`
	DryRun     bool       `json:"dry_run,omitempty"`
	RolledBack bool       `json:"rolled_back,omitempty"`
	Errors     []RowError `json:"errors"`
	Warnings   []string   `json:"warnings"`
	RunID      string     `json:"run_id,omitempty"`

	errorCount int
	admitted   bool
}

func (r *ImportResult) addError(row int, msg string, limit int) {
	r.errorCount++
	if len(r.Errors) < limit {
		r.Errors = append(r.Errors, RowError{Row: row, Message: msg})
	}
}

func (r *ImportResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// RowResult is the outcome of processing one data row.
type RowResult struct {
	Row      int
	Response *NewResponse
	Messages []string
}

// OK reports whether the row produced a response.
func (r RowResult) OK() bool {
	return r.Response != nil && len(r.Messages) == 0
}

// Message joins the row messages for display.
func (r RowResult) Message() string {
	return strings.Join(r.Messages, "; ")
}

// Import runs the pipeline over up. A nil error means a result was produced,
// which may itself report failure. Errors are returned only when the import
// could not run at all (limiter saturated, database unavailable).
func (s *Service) Import(ctx context.Context, up Upload, opts ImportOptions) (*ImportResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.cfg.ImportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ImportTimeout)
		defer cancel()
	}

	result := &ImportResult{
		Atomic:   opts.Atomic,
		DryRun:   opts.DryRun,
		Errors:   []RowError{},
		Warnings: []string{},
	}
	log := logging.WithFields(ctx, "file", up.FileName, "atomic", opts.Atomic, "dry_run", opts.DryRun)
	start := s.now()

	if err := s.runImport(ctx, up, opts, result); err != nil {
		return nil, err
	}

	result.Success = result.admitted && !result.RolledBack &&
		(result.Failed == 0 || result.Inserted > 0 || (opts.DryRun && result.Valid > 0))

	if result.errorCount > len(result.Errors) {
		result.addWarning("Showing the first %d of %d errors", len(result.Errors), result.errorCount)
	}

	if result.admitted && !opts.DryRun {
		result.RunID = s.idGen()
		s.recordRun(ctx, up, opts, result, start)
	}

	log.Info("import finished",
		"run_id", result.RunID,
		"success", result.Success,
		"total", result.Total,
		"inserted", result.Inserted,
		"failed", result.Failed,
		"rolled_back", result.RolledBack,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	return result, nil
}

func (s *Service) runImport(ctx context.Context, up Upload, opts ImportOptions, result *ImportResult) error {
	maxErrors := s.cfg.maxErrors()

	body, err := admit(up, s.cfg.MaxFileSize)
	if err != nil {
		result.addError(0, err.Error(), maxErrors)
		return nil
	}

	src := WrapForImport(body, s.cfg.maxLineBytes())
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			result.addError(0, "The file is empty", maxErrors)
		} else {
			result.addError(1, fmt.Sprintf("Could not read header row: %s", firstLine(err.Error())), maxErrors)
		}
		return nil
	}

	hm := ResolveHeaders(header)
	if len(hm.Repeats) > 0 {
		result.addWarning("Repeated columns ignored: %s", strings.Join(hm.Repeats, ", "))
	}
	if len(hm.Unknown) > 0 {
		if opts.StrictHeaders {
			result.addError(1, "Unknown columns: "+hm.UnknownSummary(), maxErrors)
			return nil
		}
		result.addWarning("Unknown columns ignored: %s", hm.UnknownSummary())
	}
	if missing := hm.MissingRequired(); len(missing) > 0 {
		result.addError(1, "Missing required columns: "+strings.Join(missing, ", "), maxErrors)
		return nil
	}
	result.admitted = true

	var tx ResponseTx
	if opts.Atomic && !opts.DryRun {
		tx, err = s.stores.Responses.BeginResponses(ctx)
		if err != nil {
			return fmt.Errorf("begin import transaction: %w", err)
		}
	}
	failedAny := false
	inserted := 0

	row := 1
	seen := make(map[string]int)
	maxRows := opts.rowLimit(s.cfg.maxRows())
	now := s.now()

	for {
		if ctx.Err() != nil {
			result.addError(0, "Import cancelled: "+MapError(ctx.Err()).Message, maxErrors)
			failedAny = true
			break
		}

		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.addError(row+1, readErrorMessage(err, src), maxErrors)
			result.Total++
			result.Failed++
			failedAny = true
			break
		}
		row++
		if isBlankRow(rec) {
			continue
		}
		if result.Total >= maxRows {
			result.addWarning("Row limit of %d reached; remaining rows were not processed", maxRows)
			break
		}
		result.Total++

		rr := buildRow(row, rec, hm, seen, now)
		if !rr.OK() {
			result.Failed++
			failedAny = true
			result.addError(rr.Row, rr.Message(), maxErrors)
			continue
		}
		result.Valid++

		switch {
		case opts.DryRun:
		case opts.Atomic:
			if failedAny {
				continue
			}
			if _, err := tx.InsertResponse(ctx, *rr.Response); err != nil {
				result.Failed++
				failedAny = true
				result.addError(rr.Row, classifyInsertError(err), maxErrors)
				continue
			}
			inserted++
		default:
			if err := s.insertOne(ctx, *rr.Response); err != nil {
				result.Failed++
				result.addError(rr.Row, classifyInsertError(err), maxErrors)
				continue
			}
			inserted++
		}
	}

	if tx != nil {
		if failedAny {
			if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
				logging.FromContext(ctx).Error("import rollback failed", "error", err)
			}
			result.RolledBack = true
			inserted = 0
		} else if err := tx.Commit(ctx); err != nil {
			result.addError(0, "Could not save import: "+classifyInsertError(err), maxErrors)
			result.RolledBack = true
			inserted = 0
		}
	}
	result.Inserted = inserted

	if result.Total == 0 && result.Failed == 0 {
		result.addWarning("No data rows found")
	}
	return nil
}

// readErrorMessage describes a read failure. Parse errors already name the
// physical line; the line cap names it here.
func readErrorMessage(err error, src *LineLimitReader) string {
	msg := "Could not read row: " + firstLine(err.Error())
	if errors.Is(err, ErrLineTooLong) {
		msg += fmt.Sprintf(" (line %d)", src.Line())
	}
	return msg
}

// insertOne writes a single response in its own transaction.
func (s *Service) insertOne(ctx context.Context, r NewResponse) error {
	tx, err := s.stores.Responses.BeginResponses(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.InsertResponse(ctx, r); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// buildRow maps, normalizes and validates one data row. seen records the
// first row of every normalized email and is updated in place.
func buildRow(row int, cells []string, hm HeaderMap, seen map[string]int, now time.Time) RowResult {
	rr := RowResult{Row: row}

	raw := survey.NewRecord()
	for i, key := range hm.Columns {
		if key == "" || i >= len(cells) {
			continue
		}
		cell := CleanCell(cells[i])
		f, _ := survey.Lookup(key)
		if f.Kind == survey.KindMulti {
			raw.SetList(key, survey.SplitMulti(cell))
		} else {
			raw.Set(key, cell)
		}
	}

	consent := survey.IsTruthy(raw.Get(survey.FieldConsentGiven))
	if !consent {
		rr.Messages = append(rr.Messages, "Consent Given: consent must be yes, true or 1")
	}

	email := survey.NormalizeEmail(raw.Get(survey.FieldEmail))
	if email != "" {
		if first, dup := seen[email]; dup {
			rr.Messages = append(rr.Messages, fmt.Sprintf("Duplicate email in file (first seen on row %d)", first))
		} else {
			seen[email] = row
		}
	}

	clean, errs := survey.ValidateAll(raw)
	rr.Messages = append(rr.Messages, errs.Messages()...)
	if len(rr.Messages) > 0 {
		return rr
	}

	clean.Set(survey.FieldConsentGiven, "yes")
	rr.Response = &NewResponse{
		Record:          clean,
		ConsentGiven:    true,
		EmailNormalized: clean.Get(survey.FieldEmail),
		FullNameKey:     survey.FullNameKey(clean),
		Source:          SourceImport,
		CompletedAt:     now,
	}
	return rr
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// classifyInsertError turns a persistence error into a row message.
func classifyInsertError(err error) string {
	if errors.Is(err, ErrDuplicate) || isDuplicateText(err.Error()) {
		return duplicateEntryMessage
	}
	return truncate(firstLine(err.Error()), 200)
}

func isDuplicateText(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "violates unique")
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func newID() string { return uuid.NewString() }
