package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/refdata"
)

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"reports": core.Reports()})
}

// handleReport runs one canned report, optionally filtered by office_type.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	t := core.ReportType(chi.URLParam(r, "type"))
	filter := core.ReportFilter{OfficeType: r.URL.Query().Get("office_type")}

	report, err := s.service.RunReport(r.Context(), t, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleReference serves a reference list used by the survey form.
func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	kind := refdata.Kind(chi.URLParam(r, "kind"))
	items, err := s.refdata.List(kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []string{}
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": items})
}

// handleHealth reports database reachability and import slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]any{
		"status":  "ok",
		"imports": s.service.ImportLimiter().Status(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			resp["status"] = "degraded"
			resp["database"] = "unreachable"
		} else {
			resp["database"] = "ok"
		}
	}
	writeJSON(w, status, resp)
}
