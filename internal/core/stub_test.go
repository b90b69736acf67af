package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/otp"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

var testNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

// ----------------------------------------------------------------------------
// In-memory store
// ----------------------------------------------------------------------------

type storedRow struct {
	id   string
	resp NewResponse
}

type memStore struct {
	mu        sync.Mutex
	responses []storedRow
	drafts    map[string]Draft
	runs      []ImportRun
	nextID    int

	beginErr  error
	insertErr func(NewResponse) error
	queries   int
}

func newMemStore() *memStore {
	return &memStore{drafts: make(map[string]Draft)}
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}

func (m *memStore) byEmail(email string) (NewResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.responses {
		if r.resp.EmailNormalized == email {
			return r.resp, true
		}
	}
	return NewResponse{}, false
}

func (m *memStore) BeginResponses(_ context.Context) (ResponseTx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &memTx{store: m, completed: make(map[string]time.Time)}, nil
}

func (m *memStore) ResponseExists(_ context.Context, email, nameKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.responses {
		if r.resp.EmailNormalized == email && r.resp.FullNameKey == nameKey {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) EachResponse(_ context.Context, fn func(StoredResponse) error) error {
	m.mu.Lock()
	rows := append([]storedRow(nil), m.responses...)
	m.mu.Unlock()
	for _, r := range rows {
		if err := fn(StoredResponse{ID: r.id, Record: r.resp.Record, Source: r.resp.Source, CompletedAt: r.resp.CompletedAt}); err != nil {
			return err
		}
	}
	return nil
}

type memTx struct {
	store     *memStore
	pending   []storedRow
	completed map[string]time.Time
	done      bool
}

func (tx *memTx) InsertResponse(_ context.Context, r NewResponse) (string, error) {
	if tx.done {
		return "", fmt.Errorf("tx is closed")
	}
	if tx.store.insertErr != nil {
		if err := tx.store.insertErr(r); err != nil {
			return "", err
		}
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, existing := range append(append([]storedRow(nil), tx.store.responses...), tx.pending...) {
		if existing.resp.EmailNormalized == r.EmailNormalized && existing.resp.FullNameKey == r.FullNameKey {
			return "", fmt.Errorf("insert response: %w", ErrDuplicate)
		}
	}
	tx.store.nextID++
	id := fmt.Sprintf("resp-%d", tx.store.nextID)
	tx.pending = append(tx.pending, storedRow{id: id, resp: r})
	return id, nil
}

func (tx *memTx) CompleteDraft(_ context.Context, token string, at time.Time) error {
	tx.completed[token] = at
	return nil
}

func (tx *memTx) Commit(_ context.Context) error {
	if tx.done {
		return fmt.Errorf("tx is closed")
	}
	tx.done = true
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.responses = append(tx.store.responses, tx.pending...)
	for token, at := range tx.completed {
		d := tx.store.drafts[token]
		at := at
		d.CompletedAt = &at
		tx.store.drafts[token] = d
	}
	return nil
}

func (tx *memTx) Rollback(_ context.Context) error {
	tx.done = true
	tx.pending = nil
	return nil
}

func (m *memStore) CreateDraft(_ context.Context, d Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.Token] = d
	return nil
}

func (m *memStore) GetDraft(_ context.Context, token string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[token]
	if !ok {
		return nil, nil
	}
	data := make(map[string]survey.Record, len(d.Data))
	for k, v := range d.Data {
		data[k] = v
	}
	d.Data = data
	return &d, nil
}

func (m *memStore) SaveDraft(_ context.Context, d Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.Token] = d
	return nil
}

func (m *memStore) ExpireDrafts(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, d := range m.drafts {
		if d.CompletedAt == nil && !now.Before(d.ExpiresAt) && d.Data != nil {
			d.Data = nil
			m.drafts[token] = d
			n++
		}
	}
	return n, nil
}

func (m *memStore) RecordImportRun(_ context.Context, run ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memStore) ListImportRuns(_ context.Context, limit int) ([]ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.runs) {
		limit = len(m.runs)
	}
	return append([]ImportRun(nil), m.runs[:limit]...), nil
}

func (m *memStore) matching(f ReportFilter) []NewResponse {
	var out []NewResponse
	for _, r := range m.responses {
		if f.OfficeType != "" && r.resp.Record.Get(survey.FieldOfficeType) != f.OfficeType {
			continue
		}
		out = append(out, r.resp)
	}
	return out
}

func (m *memStore) CountCompleted(_ context.Context, f ReportFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	return len(m.matching(f)), nil
}

func (m *memStore) CountByField(_ context.Context, field string, f ReportFilter) ([]ValueCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	counts := make(map[string]int)
	for _, r := range m.matching(f) {
		counts[r.Record.Get(field)]++
	}
	return sortedCounts(counts), nil
}

func (m *memStore) CountByListValue(_ context.Context, field string, f ReportFilter) ([]ValueCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	counts := make(map[string]int)
	for _, r := range m.matching(f) {
		for _, v := range r.Record.List(field) {
			counts[v]++
		}
	}
	return sortedCounts(counts), nil
}

func (m *memStore) SessionStats(_ context.Context) (SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	var st SessionStats
	for _, d := range m.drafts {
		st.Sessions++
		if d.ConsentGiven {
			st.ConsentedSessions++
		}
	}
	for _, r := range m.responses {
		if r.resp.SessionToken != "" {
			st.CompletedWithSession++
		}
	}
	return st, nil
}

func sortedCounts(counts map[string]int) []ValueCount {
	out := make([]ValueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// ----------------------------------------------------------------------------
// Verifier stub
// ----------------------------------------------------------------------------

type stubVerifier struct {
	issued   []otp.IssueRequest
	code     string
	issueErr error
}

func (v *stubVerifier) Issue(_ context.Context, req otp.IssueRequest) error {
	if v.issueErr != nil {
		return v.issueErr
	}
	v.issued = append(v.issued, req)
	return nil
}

func (v *stubVerifier) Verify(_ context.Context, key otp.Key, code string) (bool, error) {
	if len(v.issued) == 0 {
		return false, nil
	}
	last := v.issued[len(v.issued)-1].Key
	return last == key && code == v.code, nil
}

// ----------------------------------------------------------------------------
// Fixtures
// ----------------------------------------------------------------------------

type fixture struct {
	svc      *Service
	store    *memStore
	verifier *stubVerifier
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := newMemStore()
	verifier := &stubVerifier{code: "123456"}
	svc := NewService(Stores{Responses: store, Drafts: store, Runs: store, Reports: store}, verifier, cfg)
	svc.now = func() time.Time { return testNow }
	n := 0
	svc.idGen = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return &fixture{svc: svc, store: store, verifier: verifier}
}

var sampleNames = []string{"Ana", "Ben", "Carla", "Dante", "Elena", "Felix"}

// sampleRecord returns a valid record with a distinct name and email.
func sampleRecord(i int) survey.Record {
	r := survey.ExampleRecord()
	name := sampleNames[i%len(sampleNames)]
	r.Set(survey.FieldFirstName, name)
	r.Set(survey.FieldEmail, fmt.Sprintf("%s.%d@example.gov.ph", strings.ToLower(name), i))
	return r
}

// buildCSV renders records with the export header row.
func buildCSV(records ...survey.Record) string {
	var b strings.Builder
	b.WriteString(csvLine(ExportHeaders()))
	for _, r := range records {
		b.WriteString(csvLine(FormatRecord(r)))
	}
	return b.String()
}

func csvLine(cells []string) string {
	quoted := make([]string, len(cells))
	for i, c := range cells {
		if strings.ContainsAny(c, ",\"\n") {
			c = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
		}
		quoted[i] = c
	}
	return strings.Join(quoted, ",") + "\n"
}

func csvUpload(name, body string) Upload {
	return Upload{FileName: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}
