package core

// reports.go holds the typed report catalog.
//
// Every report is registered at init time under a ReportType. Unknown types
// are rejected with ErrUnknownReport before any query runs. Distribution
// reports count completed responses per option of one field; list reports
// count respondents per selected value of a multi-value field, so their
// percentages can add up to more than 100.

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

// ReportType names a canned report.
type ReportType string

const (
	ReportOverview         ReportType = "overview"
	ReportSex              ReportType = "sex"
	ReportAgeRange         ReportType = "age_range"
	ReportOfficeType       ReportType = "office_type"
	ReportEmploymentStatus ReportType = "employment_status"
	ReportHighestEducation ReportType = "highest_education"
	ReportYearsInDSWD      ReportType = "years_in_dswd"
	ReportETEEAPInterest   ReportType = "eteeap_interest"
	ReportMotivations      ReportType = "motivations"
	ReportBarriers         ReportType = "barriers"
	ReportCoursesTaken     ReportType = "courses_taken"
	ReportExpertiseAreas   ReportType = "expertise_areas"
)

// ReportFilter narrows the responses a report covers.
type ReportFilter struct {
	OfficeType string `json:"office_type,omitempty"`
}

// ReportRow is one line of a report table.
type ReportRow struct {
	Value   string  `json:"value"`
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Overview summarizes participation.
type Overview struct {
	Completed         int     `json:"completed"`
	Sessions          int     `json:"sessions"`
	ConsentedSessions int     `json:"consented_sessions"`
	CompletionRate    float64 `json:"completion_rate"`
}

// Report is a rendered report.
type Report struct {
	Type     ReportType   `json:"type"`
	Title    string       `json:"title"`
	Filter   ReportFilter `json:"filter"`
	Total    int          `json:"total"`
	Rows     []ReportRow  `json:"rows"`
	Overview *Overview    `json:"overview,omitempty"`
}

type reportFunc func(ctx context.Context, store ReportStore, def ReportDefinition, f ReportFilter) (*Report, error)

// ReportDefinition describes one registered report.
type ReportDefinition struct {
	Type  ReportType `json:"type"`
	Title string     `json:"title"`
	Field string     `json:"field,omitempty"`
	run   reportFunc
}

var (
	reportRegistry   = make(map[ReportType]ReportDefinition)
	reportRegistryMu sync.RWMutex
)

// RegisterReport adds a report definition.
// Panics if the type is already registered.
func RegisterReport(def ReportDefinition) {
	reportRegistryMu.Lock()
	defer reportRegistryMu.Unlock()

	if _, exists := reportRegistry[def.Type]; exists {
		panic(fmt.Sprintf("report already registered: %s", def.Type))
	}
	reportRegistry[def.Type] = def
}

// LookupReport returns the definition for t.
func LookupReport(t ReportType) (ReportDefinition, bool) {
	reportRegistryMu.RLock()
	defer reportRegistryMu.RUnlock()

	def, ok := reportRegistry[t]
	return def, ok
}

// Reports returns all registered reports, overview first and the rest by type.
func Reports() []ReportDefinition {
	reportRegistryMu.RLock()
	defer reportRegistryMu.RUnlock()

	result := make([]ReportDefinition, 0, len(reportRegistry))
	for _, def := range reportRegistry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		if (result[i].Type == ReportOverview) != (result[j].Type == ReportOverview) {
			return result[i].Type == ReportOverview
		}
		return result[i].Type < result[j].Type
	})
	return result
}

func init() {
	RegisterReport(ReportDefinition{Type: ReportOverview, Title: "Participation Overview", run: runOverview})

	for _, t := range []ReportType{
		ReportSex, ReportAgeRange, ReportOfficeType, ReportEmploymentStatus,
		ReportHighestEducation, ReportYearsInDSWD, ReportETEEAPInterest,
	} {
		registerFieldReport(t, runDistribution)
	}
	for _, t := range []ReportType{
		ReportMotivations, ReportBarriers, ReportCoursesTaken, ReportExpertiseAreas,
	} {
		registerFieldReport(t, runListCounts)
	}
}

func registerFieldReport(t ReportType, run reportFunc) {
	f, ok := survey.Lookup(string(t))
	if !ok {
		panic(fmt.Sprintf("report %s has no survey field", t))
	}
	RegisterReport(ReportDefinition{Type: t, Title: f.Label, Field: f.Key, run: run})
}

// RunReport executes a registered report.
func (s *Service) RunReport(ctx context.Context, t ReportType, f ReportFilter) (*Report, error) {
	def, ok := LookupReport(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReport, t)
	}
	if f.OfficeType != "" {
		office, _ := survey.Lookup(survey.FieldOfficeType)
		code, ok := survey.NormalizeOption(office, f.OfficeType)
		if !ok {
			return nil, &ValidationError{Fields: map[string][]string{
				"office_type": {"Please select a valid office type."},
			}}
		}
		f.OfficeType = code
	}
	report, err := def.run(ctx, s.stores.Reports, def, f)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", t, err)
	}
	return report, nil
}

func runOverview(ctx context.Context, store ReportStore, def ReportDefinition, f ReportFilter) (*Report, error) {
	completed, err := store.CountCompleted(ctx, f)
	if err != nil {
		return nil, err
	}
	stats, err := store.SessionStats(ctx)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		Completed:         completed,
		Sessions:          stats.Sessions,
		ConsentedSessions: stats.ConsentedSessions,
		CompletionRate:    percent(stats.CompletedWithSession, stats.ConsentedSessions),
	}
	return &Report{
		Type:   def.Type,
		Title:  def.Title,
		Filter: f,
		Total:  completed,
		Rows: []ReportRow{
			{Value: "completed", Label: "Completed responses", Count: ov.Completed},
			{Value: "sessions", Label: "Survey sessions", Count: ov.Sessions},
			{Value: "consented_sessions", Label: "Consented sessions", Count: ov.ConsentedSessions},
			{Value: "completed_sessions", Label: "Completed sessions", Count: stats.CompletedWithSession, Percent: ov.CompletionRate},
		},
		Overview: ov,
	}, nil
}

// runDistribution lists every option of the field, including zero counts,
// followed by any stored values that are not current options.
func runDistribution(ctx context.Context, store ReportStore, def ReportDefinition, f ReportFilter) (*Report, error) {
	total, err := store.CountCompleted(ctx, f)
	if err != nil {
		return nil, err
	}
	counts, err := store.CountByField(ctx, def.Field, f)
	if err != nil {
		return nil, err
	}

	field, _ := survey.Lookup(def.Field)
	byValue := make(map[string]int, len(counts))
	for _, c := range counts {
		byValue[c.Value] = c.Count
	}

	rows := make([]ReportRow, 0, len(field.Options)+1)
	for _, o := range field.Options {
		n := byValue[o.Code]
		delete(byValue, o.Code)
		rows = append(rows, ReportRow{Value: o.Code, Label: o.Label, Count: n, Percent: percent(n, total)})
	}
	for _, c := range counts {
		if _, left := byValue[c.Value]; !left {
			continue
		}
		label := c.Value
		if label == "" {
			label = "Not specified"
		}
		rows = append(rows, ReportRow{Value: c.Value, Label: label, Count: c.Count, Percent: percent(c.Count, total)})
	}

	return &Report{Type: def.Type, Title: def.Title, Filter: f, Total: total, Rows: rows}, nil
}

// runListCounts ranks the values of a multi-value field by frequency.
func runListCounts(ctx context.Context, store ReportStore, def ReportDefinition, f ReportFilter) (*Report, error) {
	total, err := store.CountCompleted(ctx, f)
	if err != nil {
		return nil, err
	}
	counts, err := store.CountByListValue(ctx, def.Field, f)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Value < counts[j].Value
	})

	rows := make([]ReportRow, len(counts))
	for i, c := range counts {
		rows[i] = ReportRow{Value: c.Value, Label: c.Value, Count: c.Count, Percent: percent(c.Count, total)}
	}
	return &Report{Type: def.Type, Title: def.Title, Filter: f, Total: total, Rows: rows}, nil
}

// percent returns n/total as a percentage rounded to one decimal place.
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)*1000/float64(total)) / 10
}
