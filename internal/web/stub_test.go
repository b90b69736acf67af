package web

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/sessions"

	"github.com/JonMunkholm/eteeap-survey/internal/auth"
	"github.com/JonMunkholm/eteeap-survey/internal/config"
	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/otp"
	"github.com/JonMunkholm/eteeap-survey/internal/refdata"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

const (
	testCode     = "123456"
	testPassword = "correct horse battery"
	testAdmin    = "admin@dswd.gov.ph"
)

// ----------------------------------------------------------------------------
// In-memory stores
// ----------------------------------------------------------------------------

type memStore struct {
	mu        sync.Mutex
	responses []core.NewResponse
	ids       []string
	drafts    map[string]core.Draft
	runs      []core.ImportRun
}

func newMemStore() *memStore {
	return &memStore{drafts: make(map[string]core.Draft)}
}

func (m *memStore) BeginResponses(_ context.Context) (core.ResponseTx, error) {
	return &memTx{store: m}, nil
}

func (m *memStore) ResponseExists(_ context.Context, email, nameKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.responses {
		if r.EmailNormalized == email && r.FullNameKey == nameKey {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) EachResponse(_ context.Context, fn func(core.StoredResponse) error) error {
	m.mu.Lock()
	rows := append([]core.NewResponse(nil), m.responses...)
	ids := append([]string(nil), m.ids...)
	m.mu.Unlock()
	for i, r := range rows {
		if err := fn(core.StoredResponse{ID: ids[i], Record: r.Record, Source: r.Source, CompletedAt: r.CompletedAt}); err != nil {
			return err
		}
	}
	return nil
}

type memTx struct {
	store   *memStore
	pending []core.NewResponse
	tokens  []string
}

func (tx *memTx) InsertResponse(_ context.Context, r core.NewResponse) (string, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, existing := range append(append([]core.NewResponse(nil), tx.store.responses...), tx.pending...) {
		if existing.EmailNormalized == r.EmailNormalized {
			return "", fmt.Errorf("insert response: %w", core.ErrDuplicate)
		}
	}
	tx.pending = append(tx.pending, r)
	return fmt.Sprintf("resp-%d", len(tx.store.responses)+len(tx.pending)), nil
}

func (tx *memTx) CompleteDraft(_ context.Context, token string, _ time.Time) error {
	tx.tokens = append(tx.tokens, token)
	return nil
}

func (tx *memTx) Commit(_ context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, r := range tx.pending {
		tx.store.responses = append(tx.store.responses, r)
		tx.store.ids = append(tx.store.ids, fmt.Sprintf("resp-%d", len(tx.store.responses)))
	}
	for _, token := range tx.tokens {
		d := tx.store.drafts[token]
		now := time.Now()
		d.CompletedAt = &now
		tx.store.drafts[token] = d
	}
	return nil
}

func (tx *memTx) Rollback(_ context.Context) error {
	tx.pending = nil
	return nil
}

func (m *memStore) CreateDraft(_ context.Context, d core.Draft) error {
	return m.SaveDraft(context.Background(), d)
}

func (m *memStore) GetDraft(_ context.Context, token string) (*core.Draft, error) {
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

func (m *memStore) SaveDraft(_ context.Context, d core.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.Token] = d
	return nil
}

func (m *memStore) ExpireDrafts(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) RecordImportRun(_ context.Context, run core.ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append([]core.ImportRun{run}, m.runs...)
	return nil
}

func (m *memStore) ListImportRuns(_ context.Context, limit int) ([]core.ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.runs) {
		limit = len(m.runs)
	}
	return append([]core.ImportRun(nil), m.runs[:limit]...), nil
}

func (m *memStore) CountCompleted(_ context.Context, _ core.ReportFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses), nil
}

func (m *memStore) CountByField(_ context.Context, field string, _ core.ReportFilter) ([]core.ValueCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range m.responses {
		counts[r.Record.Get(field)]++
	}
	return sortedCounts(counts), nil
}

func (m *memStore) CountByListValue(_ context.Context, field string, _ core.ReportFilter) ([]core.ValueCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range m.responses {
		for _, v := range r.Record.List(field) {
			counts[v]++
		}
	}
	return sortedCounts(counts), nil
}

func (m *memStore) SessionStats(_ context.Context) (core.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st core.SessionStats
	for _, d := range m.drafts {
		st.Sessions++
		if d.ConsentGiven {
			st.ConsentedSessions++
		}
	}
	for _, r := range m.responses {
		if r.SessionToken != "" {
			st.CompletedWithSession++
		}
	}
	return st, nil
}

func sortedCounts(counts map[string]int) []core.ValueCount {
	out := make([]core.ValueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, core.ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// ----------------------------------------------------------------------------
// Code issuer and admin store stubs
// ----------------------------------------------------------------------------

// stubCodes accepts testCode for the most recently issued key.
type stubCodes struct {
	mu     sync.Mutex
	issued []otp.IssueRequest
}

func (c *stubCodes) Issue(_ context.Context, req otp.IssueRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued = append(c.issued, req)
	return nil
}

func (c *stubCodes) Verify(_ context.Context, key otp.Key, code string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.issued) == 0 {
		return false, nil
	}
	return c.issued[len(c.issued)-1].Key == key && code == testCode, nil
}

type stubAdmins struct {
	admins map[string]*auth.Admin
}

func (s *stubAdmins) FindAdminByEmail(_ context.Context, email string) (*auth.Admin, error) {
	return s.admins[strings.ToLower(email)], nil
}

func (s *stubAdmins) CreateAdmin(_ context.Context, a auth.Admin) (string, error) {
	a.ID = "admin-" + a.Email
	s.admins[a.Email] = &a
	return a.ID, nil
}

func (s *stubAdmins) TouchLastLogin(_ context.Context, _ string, _ time.Time) error {
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

// ----------------------------------------------------------------------------
// Fixtures
// ----------------------------------------------------------------------------

type fixture struct {
	server *Server
	store  *memStore
	codes  *stubCodes
	signer *auth.Signer
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Import.MaxFileSize = 1 << 20
	cfg.Survey.DraftTTL = time.Hour
	cfg.Survey.RequireEmailVerification = true
	cfg.Security.EnableCSP = true
	return cfg
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	cfg := testConfig()

	store := newMemStore()
	codes := &stubCodes{}
	svc := core.NewService(core.Stores{Responses: store, Drafts: store, Runs: store, Reports: store}, codes, core.Config{
		MaxFileSize:              cfg.Import.MaxFileSize,
		DraftTTL:                 cfg.Survey.DraftTTL,
		RequireEmailVerification: cfg.Survey.RequireEmailVerification,
	})

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	admins := &stubAdmins{admins: map[string]*auth.Admin{
		testAdmin: {ID: "admin-1", Email: testAdmin, PasswordHash: hash, Active: true},
	}}
	signer := auth.NewSigner([]byte("0123456789abcdef0123456789abcdef"), time.Hour)

	o := Options{
		Service:  svc,
		Auth:     auth.NewService(admins, codes, signer),
		RefData:  refdata.NewCache(t.TempDir()),
		Sessions: sessions.NewCookieStore([]byte("fedcba9876543210fedcba9876543210")),
		Config:   cfg,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &fixture{server: NewServer(o), store: store, codes: codes, signer: signer}
}

// adminToken signs a token the way a completed sign-in does.
func (f *fixture) adminToken(t *testing.T) string {
	t.Helper()
	tok, _, err := f.signer.Sign("admin-1", testAdmin)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return tok
}

// sectionBody renders one section of rec as the flat JSON object a wizard
// step or survey section carries.
func sectionBody(rec survey.Record, s survey.Section) map[string]any {
	part := rec.Section(s)
	out := make(map[string]any, len(part.Values)+len(part.Lists))
	for k, v := range part.Values {
		out[k] = v
	}
	for k, l := range part.Lists {
		out[k] = l
	}
	return out
}

// surveyBody renders rec in the nested POST /api/survey shape.
func surveyBody(rec survey.Record, consent any) map[string]any {
	body := map[string]any{"consent_given": consent}
	for _, s := range survey.FormSections {
		body[string(s)] = sectionBody(rec, s)
	}
	return body
}
