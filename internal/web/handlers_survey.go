package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/logging"
	"github.com/JonMunkholm/eteeap-survey/internal/survey"
)

const (
	// surveySessionName is the gorilla session cookie holding the draft token.
	surveySessionName = "eteeap_survey"
	draftTokenKey     = "draft_token"

	// DraftTokenHeader lets API clients without cookies address a draft.
	DraftTokenHeader = "X-Draft-Token"
)

// handleSubmitSurvey accepts a complete survey in one request. Sections are
// nested objects keyed by section name next to a top-level consent_given.
func (s *Server) handleSubmitSurvey(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	sections := make(map[string]map[string]any)
	for k, v := range body {
		if m, ok := v.(map[string]any); ok {
			sections[k] = m
		}
	}

	// Only a JSON true counts as consent.
	consent, _ := body["consent_given"].(bool)

	ctx := WithRequestMetadata(r.Context(), r)
	id, err := s.service.SubmitSurvey(ctx, core.Submission{
		Record:       survey.RecordFromSections(sections),
		ConsentGiven: consent,
		Source:       core.SourceAPI,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"response_id": id})
}

// handleStartDraft opens a wizard draft and remembers its token in the
// survey session cookie.
func (s *Server) handleStartDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.StartDraft(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.saveDraftToken(w, r, d.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.GetDraft(r.Context(), s.draftToken(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleSaveStep validates and stores one wizard section. The body holds
// the section's answers as a flat object.
func (s *Server) handleSaveStep(w http.ResponseWriter, r *http.Request) {
	section := survey.Section(chi.URLParam(r, "section"))

	var answers map[string]any
	if err := decodeJSON(w, r, &answers); err != nil {
		s.fail(w, r, err)
		return
	}
	rec := survey.RecordFromSections(map[string]map[string]any{string(section): answers})

	d, err := s.service.SaveStep(r.Context(), s.draftToken(r), section, rec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleRequestDraftCode emails a verification code to the draft's address.
func (s *Server) handleRequestDraftCode(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	err := s.service.RequestEmailCode(ctx, s.draftToken(r), clientIP(r), r.UserAgent())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (s *Server) handleVerifyDraftCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	ok, err := s.service.VerifyEmailCode(r.Context(), s.draftToken(r), req.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"verified": false,
			"errors":   map[string][]string{"code": {"The code is invalid or has expired."}},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

// handleSubmitDraft finalizes the wizard and ends the survey session.
func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	id, err := s.service.SubmitDraft(ctx, s.draftToken(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearDraftToken(w, r)
	writeJSON(w, http.StatusCreated, map[string]string{"response_id": id})
}

// draftToken reads the token from the session cookie, then the header.
func (s *Server) draftToken(r *http.Request) string {
	if s.sessions != nil {
		if sess, err := s.sessions.Get(r, surveySessionName); err == nil {
			if tok, ok := sess.Values[draftTokenKey].(string); ok && tok != "" {
				return tok
			}
		}
	}
	return r.Header.Get(DraftTokenHeader)
}

func (s *Server) saveDraftToken(w http.ResponseWriter, r *http.Request, token string) error {
	if s.sessions == nil {
		return nil
	}
	// A cookie signed with a rotated key fails to decode; start a fresh session.
	sess, _ := s.sessions.Get(r, surveySessionName)
	if sess == nil {
		return errors.New("survey session unavailable")
	}
	sess.Values[draftTokenKey] = token
	sess.Options = s.sessionOptions(int(s.cfg.Survey.DraftTTL.Seconds()))
	return sess.Save(r, w)
}

func (s *Server) clearDraftToken(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		return
	}
	sess, _ := s.sessions.Get(r, surveySessionName)
	if sess == nil {
		return
	}
	delete(sess.Values, draftTokenKey)
	sess.Options = s.sessionOptions(-1)
	if err := sess.Save(r, w); err != nil {
		logging.FromContext(r.Context()).Warn("clear survey session", "error", err)
	}
}

func (s *Server) sessionOptions(maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.Security.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
