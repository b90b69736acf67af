package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/eteeap-survey/internal/auth"
	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/otp"
	"github.com/JonMunkholm/eteeap-survey/internal/refdata"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
	"github.com/JonMunkholm/eteeap-survey/internal/web/middleware"
)

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func (f *fixture) do(t *testing.T, method, path string, body any, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:41000"
	for _, fn := range setup {
		fn(req)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func withCookies(cookies []*http.Cookie) func(*http.Request) {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func withBearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("csv_file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ctype := multipartBody(t, filename, content, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/import", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+f.adminToken(t))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

// ----------------------------------------------------------------------------
// Survey API Tests
// ----------------------------------------------------------------------------

func TestSubmitSurvey_Created(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/survey", surveyBody(survey.ExampleRecord(), true))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	got := decode[map[string]string](t, rec)
	if got["response_id"] == "" {
		t.Error("response_id is empty")
	}
	if len(f.store.responses) != 1 {
		t.Fatalf("stored = %d, want 1", len(f.store.responses))
	}
	if src := f.store.responses[0].Source; src != core.SourceAPI {
		t.Errorf("source = %q, want %q", src, core.SourceAPI)
	}
}

func TestSubmitSurvey_Rejections(t *testing.T) {
	missingName := survey.ExampleRecord()
	missingName.Set(survey.FieldLastName, "")

	tests := []struct {
		name      string
		body      any
		status    int
		code      string
		wantField string
	}{
		{"consent false", surveyBody(survey.ExampleRecord(), false), http.StatusBadRequest, "VAL002", ""},
		{"consent as string", surveyBody(survey.ExampleRecord(), "true"), http.StatusBadRequest, "VAL002", ""},
		{"missing last name", surveyBody(missingName, true), http.StatusBadRequest, "", survey.FieldLastName},
		{"not an object", []string{"x"}, http.StatusBadRequest, "REQ001", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/survey", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			resp := decode[ErrorResponse](t, rec)
			if tt.code != "" && resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
			if tt.wantField != "" {
				if _, ok := resp.Errors[tt.wantField]; !ok {
					t.Errorf("errors = %v, want entry for %q", resp.Errors, tt.wantField)
				}
			}
			if len(f.store.responses) != 0 {
				t.Errorf("stored = %d, want 0", len(f.store.responses))
			}
		})
	}
}

func TestSubmitSurvey_Duplicate(t *testing.T) {
	f := newFixture(t)
	body := surveyBody(survey.ExampleRecord(), true)

	if rec := f.do(t, http.MethodPost, "/api/survey", body); rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/survey", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Code != "DB001" {
		t.Errorf("code = %q, want DB001", resp.Code)
	}
}

func TestSubmitSurvey_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/survey", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

// ----------------------------------------------------------------------------
// Draft Wizard Tests
// ----------------------------------------------------------------------------

func TestDraftWizard_FullFlow(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/survey/drafts", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}
	session := withCookies(cookies)

	// Skipping ahead of the watermark is refused.
	example := survey.ExampleRecord()
	rec = f.do(t, http.MethodPut, "/api/survey/drafts/steps/basic_info", sectionBody(example, survey.SectionBasicInfo), session)
	if rec.Code != http.StatusConflict {
		t.Fatalf("out of order status = %d, want 409", rec.Code)
	}

	rec = f.do(t, http.MethodPut, "/api/survey/drafts/steps/consent", map[string]any{"consent_given": true}, session)
	if rec.Code != http.StatusOK {
		t.Fatalf("consent status = %d: %s", rec.Code, rec.Body.String())
	}
	for _, s := range survey.FormSections {
		rec = f.do(t, http.MethodPut, "/api/survey/drafts/steps/"+string(s), sectionBody(example, s), session)
		if rec.Code != http.StatusOK {
			t.Fatalf("step %s status = %d: %s", s, rec.Code, rec.Body.String())
		}
	}
	d := decode[core.Draft](t, rec)
	if d.CurrentStep != len(survey.WizardSteps) {
		t.Errorf("current_step = %d, want %d", d.CurrentStep, len(survey.WizardSteps))
	}

	// Verification is required before submitting.
	rec = f.do(t, http.MethodPost, "/api/survey/drafts/submit", nil, session)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unverified submit status = %d, want 403", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/survey/drafts/otp", nil, session)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("otp status = %d: %s", rec.Code, rec.Body.String())
	}
	issued := f.codes.issued[len(f.codes.issued)-1]
	if issued.Key.Purpose != otp.PurposeSurveyVerify || issued.Key.Binding != d.Token {
		t.Errorf("issued key = %+v, want survey code bound to draft", issued.Key)
	}
	if issued.IPAddress != "203.0.113.7" {
		t.Errorf("issued ip = %q", issued.IPAddress)
	}

	rec = f.do(t, http.MethodPost, "/api/survey/drafts/otp/verify", codeRequest{Code: "000000"}, session)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong code status = %d, want 400", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/survey/drafts/otp/verify", codeRequest{Code: testCode}, session)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/survey/drafts/submit", nil, session)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.store.responses) != 1 {
		t.Fatalf("stored = %d, want 1", len(f.store.responses))
	}
	if f.store.responses[0].SessionToken != d.Token {
		t.Errorf("session token = %q, want %q", f.store.responses[0].SessionToken, d.Token)
	}

	// The draft is gone once submitted.
	rec = f.do(t, http.MethodGet, "/api/survey/drafts", nil, session)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after submit status = %d, want 404", rec.Code)
	}
}

func TestDraftWizard_TokenHeader(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/survey/drafts", nil)
	d := decode[core.Draft](t, rec)

	rec = f.do(t, http.MethodGet, "/api/survey/drafts", nil, func(r *http.Request) {
		r.Header.Set(DraftTokenHeader, d.Token)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[core.Draft](t, rec); got.Token != d.Token {
		t.Errorf("token = %q, want %q", got.Token, d.Token)
	}
}

func TestDraftWizard_NoSession(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/survey/drafts/steps/consent", map[string]any{"consent_given": true})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// ----------------------------------------------------------------------------
// Admin Auth Tests
// ----------------------------------------------------------------------------

func TestAdminLogin_Flow(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/login", loginRequest{Email: testAdmin, Password: testPassword})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/admin/login/verify", codeRequest{Email: testAdmin, Code: testCode})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}
	sess := decode[auth.Session](t, rec)
	if sess.Token == "" || sess.AdminID != "admin-1" {
		t.Errorf("session = %+v", sess)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.AdminCookieName {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("admin cookie = %+v, want HttpOnly cookie", cookie)
	}

	rec = f.do(t, http.MethodGet, "/api/admin/imports", nil, withCookies([]*http.Cookie{cookie}))
	if rec.Code != http.StatusOK {
		t.Errorf("history with cookie status = %d, want 200", rec.Code)
	}
}

func TestAdminLogin_Failures(t *testing.T) {
	tests := []struct {
		name string
		body loginRequest
	}{
		{"wrong password", loginRequest{Email: testAdmin, Password: "nope nope nope"}},
		{"unknown email", loginRequest{Email: "who@dswd.gov.ph", Password: testPassword}},
		{"empty email", loginRequest{Password: testPassword}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/admin/login", tt.body)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if resp := decode[ErrorResponse](t, rec); resp.Code != "AUTH001" {
				t.Errorf("code = %q, want AUTH001", resp.Code)
			}
			if len(f.codes.issued) != 0 {
				t.Errorf("issued = %d codes, want 0", len(f.codes.issued))
			}
		})
	}
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	f := newFixture(t)
	paths := []string{
		"/api/admin/imports",
		"/api/admin/import/template",
		"/api/admin/export/responses",
		"/api/admin/reports/overview",
		"/admin/import",
	}
	for _, p := range paths {
		rec := f.do(t, http.MethodGet, p, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", p, rec.Code)
		}
	}
}

func TestAdminLogout_ClearsCookie(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/admin/logout", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("cookies = %+v, want one expired cookie", cookies)
	}
}

// ----------------------------------------------------------------------------
// Import and Export Tests
// ----------------------------------------------------------------------------

func TestImport_TemplateRoundTrip(t *testing.T) {
	f := newFixture(t)
	tok := f.adminToken(t)

	rec := f.do(t, http.MethodGet, "/api/admin/import/template", nil, withBearer(tok))
	if rec.Code != http.StatusOK {
		t.Fatalf("template status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "\ufeff") {
		t.Error("template is missing the UTF-8 BOM")
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, core.TemplateFileName) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = f.upload(t, core.TemplateFileName, rec.Body.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[core.ImportResult](t, rec)
	if !result.Success || result.Inserted != 1 || len(result.Errors) != 0 {
		t.Errorf("result = %+v, want 1 inserted without errors", result)
	}

	history := decode[map[string][]core.ImportRun](t, f.do(t, http.MethodGet, "/api/admin/imports", nil, withBearer(tok)))
	runs := history["imports"]
	if len(runs) != 1 || runs[0].Actor != testAdmin {
		t.Errorf("imports = %+v, want one run by %s", runs, testAdmin)
	}

	rec = f.do(t, http.MethodGet, "/api/admin/export/responses", nil, withBearer(tok))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("export lines = %d, want header + 1 row", len(lines))
	}
	if !strings.Contains(lines[0], core.ColumnResponseID) {
		t.Errorf("export header = %q, want %q column", lines[0], core.ColumnResponseID)
	}
}

func TestImport_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		wantMsg  string
	}{
		{"no file", "", "", nil, "No file provided"},
		{"wrong extension", "responses.xlsx", "Last Name\nx\n", nil, "Invalid file type"},
		{"unknown header strict", "r.csv", "Last Name,Favorite Color\nReyes,blue\n", nil, "Favorite Color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.upload(t, tt.filename, tt.content, tt.fields)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
			}
			result := decode[core.ImportResult](t, rec)
			if result.Success || result.Inserted != 0 {
				t.Errorf("result = %+v, want failure", result)
			}
			if len(result.Errors) == 0 || !strings.Contains(result.Errors[0].Message, tt.wantMsg) {
				t.Errorf("errors = %+v, want message containing %q", result.Errors, tt.wantMsg)
			}
		})
	}
}

func TestImport_DryRunStoresNothing(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	if err := core.WriteTemplate(&buf); err != nil {
		t.Fatalf("WriteTemplate() error = %v", err)
	}

	rec := f.upload(t, "dry.csv", buf.String(), map[string]string{"dry_run": "true"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[core.ImportResult](t, rec)
	if !result.DryRun || result.Valid != 1 || result.Inserted != 0 {
		t.Errorf("result = %+v, want dry run with 1 valid row", result)
	}
	if len(f.store.responses) != 0 || len(f.store.runs) != 0 {
		t.Errorf("dry run stored %d responses and %d runs", len(f.store.responses), len(f.store.runs))
	}
}

func TestImport_MaxRowsField(t *testing.T) {
	var buf bytes.Buffer
	if err := core.WriteTemplate(&buf); err != nil {
		t.Fatalf("WriteTemplate() error = %v", err)
	}
	template := buf.String()
	// The repeated row would fail as a duplicate if it were read.
	body := template + template[strings.Index(template, "\n")+1:]

	f := newFixture(t)
	rec := f.upload(t, "limit.csv", body, map[string]string{"max_rows": "1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	result := decode[core.ImportResult](t, rec)
	if result.Total != 1 || result.Inserted != 1 {
		t.Errorf("result = %+v, want 1 row read and inserted", result)
	}
	if len(result.Warnings) == 0 || !strings.Contains(result.Warnings[len(result.Warnings)-1], "Row limit of 1") {
		t.Errorf("warnings = %v, want row limit warning", result.Warnings)
	}

	for _, bad := range []string{"0", "-3", "ten"} {
		f := newFixture(t)
		rec := f.upload(t, "limit.csv", body, map[string]string{"max_rows": bad})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("max_rows=%q status = %d, want 400", bad, rec.Code)
			continue
		}
		if got := decode[ErrorResponse](t, rec).Code; got != "REQ003" {
			t.Errorf("max_rows=%q code = %q, want REQ003", bad, got)
		}
		if len(f.store.runs) != 0 {
			t.Errorf("max_rows=%q recorded %d runs", bad, len(f.store.runs))
		}
	}
}

func TestFormBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"on", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q default %v", tt.value, tt.def), func(t *testing.T) {
			fields := map[string]string{}
			if tt.value != "" {
				fields["atomic"] = tt.value
			}
			body, ctype := multipartBody(t, "", "", fields)
			req := httptest.NewRequest(http.MethodPost, "/", body)
			req.Header.Set("Content-Type", ctype)
			if err := req.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("ParseMultipartForm: %v", err)
			}
			if got := formBool(req, "atomic", tt.def); got != tt.want {
				t.Errorf("formBool = %v, want %v", got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Reports, Reference Data and Health Tests
// ----------------------------------------------------------------------------

func TestReports(t *testing.T) {
	f := newFixture(t)
	tok := f.adminToken(t)
	if rec := f.do(t, http.MethodPost, "/api/survey", surveyBody(survey.ExampleRecord(), true)); rec.Code != http.StatusCreated {
		t.Fatalf("seed status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/admin/reports/sex", nil, withBearer(tok))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	report := decode[core.Report](t, rec)
	if report.Type != core.ReportSex || report.Total != 1 {
		t.Errorf("report = %+v", report)
	}

	rec = f.do(t, http.MethodGet, "/api/admin/reports/favorite_color", nil, withBearer(tok))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown report status = %d, want 404", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/admin/reports", nil, withBearer(tok))
	catalog := decode[map[string][]core.ReportDefinition](t, rec)
	if len(catalog["reports"]) != len(core.Reports()) {
		t.Errorf("catalog = %d reports, want %d", len(catalog["reports"]), len(core.Reports()))
	}
}

func TestReference(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "positions.csv"), []byte("Position\nSocial Welfare Officer I\nAdministrative Aide\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, func(o *Options) { o.RefData = refdata.NewCache(dir) })

	rec := f.do(t, http.MethodGet, "/api/reference/positions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[struct {
		Items []string `json:"items"`
	}](t, rec)
	if len(got.Items) != 2 || got.Items[0] != "Social Welfare Officer I" {
		t.Errorf("items = %v", got.Items)
	}

	rec = f.do(t, http.MethodGet, "/api/reference/courses", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("missing file: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/reference/offices", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown kind status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		ping   error
		status int
	}{
		{"healthy", nil, http.StatusOK},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(o *Options) { o.Health = stubPinger{err: tt.ping} })
			rec := f.do(t, http.MethodGet, "/healthz", nil)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestImportPage(t *testing.T) {
	f := newFixture(t)
	f.store.runs = []core.ImportRun{{FileName: "<script>.csv", Total: 3, Inserted: 3}}

	rec := f.do(t, http.MethodGet, "/admin/import", nil, withBearer(f.adminToken(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="csv_file"`) {
		t.Error("page is missing the file input")
	}
	if strings.Contains(body, "<script>.csv") {
		t.Error("file name was not escaped")
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("CSP header missing")
	}
}

// ----------------------------------------------------------------------------
// Error Mapping Tests
// ----------------------------------------------------------------------------

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.ValidationError{}, http.StatusBadRequest},
		{core.ErrConsentRequired, http.StatusBadRequest},
		{fmt.Errorf("%w: max_rows", errInvalidOption), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", core.ErrDuplicate), http.StatusConflict},
		{core.ErrStepOutOfOrder, http.StatusConflict},
		{core.ErrDraftNotFound, http.StatusNotFound},
		{core.ErrEmailNotVerified, http.StatusForbidden},
		{core.ErrTooManyImports, http.StatusServiceUnavailable},
		{otp.ErrRateLimited, http.StatusTooManyRequests},
		{otp.ErrCooldown, http.StatusTooManyRequests},
		{otp.ErrDelivery, http.StatusBadGateway},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
