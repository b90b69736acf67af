package core

// headers.go resolves CSV header cells to survey field keys.
//
// Matching is done on a normalized form (trimmed, inner whitespace collapsed,
// lowercased). Every field is reachable by its canonical export label and by
// its internal key; a few import-only aliases cover older templates. Columns
// written by the data export but not imported resolve to known-and-ignored so
// an export can be re-imported in strict mode.

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

// Export metadata columns.
const (
	ColumnResponseID  = "Response ID"
	ColumnCompletedAt = "Completed At"
)

// maxUnknownListed caps the unknown headers named in an error message.
const maxUnknownListed = 15

var importAliases = map[string]string{
	"Program Assignments": survey.FieldProgramAssignments,
	"Additional Comments": survey.FieldComments,
}

var ignoredHeaders = []string{ColumnResponseID, ColumnCompletedAt}

var headerLookup = buildHeaderLookup()

func buildHeaderLookup() map[string]string {
	m := make(map[string]string)
	for _, f := range survey.Fields() {
		m[NormalizeHeader(f.Label)] = f.Key
		m[NormalizeHeader(f.Key)] = f.Key
	}
	for alias, key := range importAliases {
		m[NormalizeHeader(alias)] = key
	}
	return m
}

var ignoredLookup = func() map[string]bool {
	m := make(map[string]bool, len(ignoredHeaders))
	for _, h := range ignoredHeaders {
		m[NormalizeHeader(h)] = true
	}
	return m
}()

// NormalizeHeader trims, collapses inner whitespace and lowercases a header.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// HeaderMap is the resolved header row.
type HeaderMap struct {
	// Columns holds the field key for each column index; "" for ignored,
	// unknown or repeated columns.
	Columns []string
	Unknown []string
	Repeats []string
	present map[string]bool
}

// Has reports whether a column resolved to key.
func (h HeaderMap) Has(key string) bool {
	return h.present[key]
}

// ResolveHeaders maps a header row to field keys. A UTF-8 BOM on the first
// cell is dropped.
func ResolveHeaders(headers []string) HeaderMap {
	hm := HeaderMap{
		Columns: make([]string, len(headers)),
		present: make(map[string]bool),
	}

	for i, raw := range headers {
		if i == 0 {
			raw = strings.TrimPrefix(raw, "\ufeff")
		}
		norm := NormalizeHeader(raw)
		if norm == "" || ignoredLookup[norm] {
			continue
		}
		key, ok := headerLookup[norm]
		if !ok {
			hm.Unknown = append(hm.Unknown, strings.TrimSpace(raw))
			continue
		}
		if hm.present[key] {
			hm.Repeats = append(hm.Repeats, strings.TrimSpace(raw))
			continue
		}
		hm.present[key] = true
		hm.Columns[i] = key
	}
	return hm
}

// RequiredImportFields are the columns an import file must carry, besides at
// least one of survey.WorkExperienceFields.
var RequiredImportFields = []string{
	survey.FieldLastName,
	survey.FieldFirstName,
	survey.FieldEmail,
	survey.FieldSex,
	survey.FieldAgeRange,
	survey.FieldOfficeType,
	survey.FieldOfficeAssignment,
	survey.FieldPosition,
	survey.FieldEmploymentStatus,
	survey.FieldHighestEducation,
	survey.FieldETEEAPAware,
	survey.FieldETEEAPInterest,
}

// MissingRequired lists the labels of required columns that did not resolve.
func (h HeaderMap) MissingRequired() []string {
	var missing []string
	for _, key := range RequiredImportFields {
		if !h.Has(key) {
			f, _ := survey.Lookup(key)
			missing = append(missing, f.Label)
		}
	}

	anyYears := false
	for _, key := range survey.WorkExperienceFields {
		if h.Has(key) {
			anyYears = true
			break
		}
	}
	if !anyYears {
		labels := make([]string, 0, len(survey.WorkExperienceFields))
		for _, key := range survey.WorkExperienceFields {
			f, _ := survey.Lookup(key)
			labels = append(labels, f.Label)
		}
		missing = append(missing, "one of "+strings.Join(labels, " / "))
	}
	return missing
}

// UnknownSummary formats the unknown headers for an error message, listing at
// most maxUnknownListed of them.
func (h HeaderMap) UnknownSummary() string {
	if len(h.Unknown) <= maxUnknownListed {
		return strings.Join(h.Unknown, ", ")
	}
	return fmt.Sprintf("%s (and %d more)",
		strings.Join(h.Unknown[:maxUnknownListed], ", "),
		len(h.Unknown)-maxUnknownListed,
	)
}
