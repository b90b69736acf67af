// Package web provides the HTTP server for the survey API, the draft wizard
// and the admin import dashboard.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/JonMunkholm/eteeap-survey/internal/auth"
	"github.com/JonMunkholm/eteeap-survey/internal/config"
	"github.com/JonMunkholm/eteeap-survey/internal/core"
	"github.com/JonMunkholm/eteeap-survey/internal/ratelimit"
	"github.com/JonMunkholm/eteeap-survey/internal/refdata"
	"github.com/JonMunkholm/eteeap-survey/internal/web/middleware"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators.
type Options struct {
	Service  *core.Service
	Auth     *auth.Service
	RefData  *refdata.Cache
	Limiter  ratelimit.Limiter
	Sessions sessions.Store
	Health   HealthChecker
	Config   *config.Config
}

// Server is the HTTP server for the survey portal.
type Server struct {
	service  *core.Service
	auth     *auth.Service
	refdata  *refdata.Cache
	limiter  ratelimit.Limiter
	sessions sessions.Store
	health   HealthChecker
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(opts Options) *Server {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	s := &Server{
		service:  opts.Service,
		auth:     opts.Auth,
		refdata:  opts.RefData,
		limiter:  limiter,
		sessions: opts.Sessions,
		health:   opts.Health,
		cfg:      opts.Config,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(middleware.RateLimit(s.limiter, "all", s.cfg.Rate.RequestsPerMinute, time.Minute))
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, errNotFound, http.StatusNotFound)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, errMethodNotAllowed, http.StatusMethodNotAllowed)
	})
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	requireAdmin := middleware.RequireAdmin(s.auth.Signer())
	timeout := chimw.Timeout(s.cfg.Server.RequestTimeout)

	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.With(requireAdmin).Get("/admin/import", s.handleImportPage)

	s.router.Route("/api", func(r chi.Router) {
		r.With(timeout).Get("/reference/{kind}", s.handleReference)

		// Survey intake
		r.Group(func(r chi.Router) {
			r.Use(timeout)
			if s.cfg.Rate.Enabled {
				r.Use(middleware.RateLimit(s.limiter, "submit", s.cfg.Rate.SubmitLimit, time.Minute))
			}
			r.Post("/survey", s.handleSubmitSurvey)
			r.Post("/survey/drafts/submit", s.handleSubmitDraft)
			r.Post("/survey/drafts/otp", s.handleRequestDraftCode)
			r.Post("/survey/drafts/otp/verify", s.handleVerifyDraftCode)
		})
		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Post("/survey/drafts", s.handleStartDraft)
			r.Get("/survey/drafts", s.handleGetDraft)
			r.Put("/survey/drafts/steps/{section}", s.handleSaveStep)
		})

		// Admin sign-in
		r.Group(func(r chi.Router) {
			r.Use(timeout)
			if s.cfg.Rate.Enabled {
				r.Use(middleware.RateLimit(s.limiter, "login", s.cfg.Rate.LoginLimit, time.Minute))
			}
			r.Post("/admin/login", s.handleAdminLogin)
			r.Post("/admin/login/verify", s.handleAdminVerify)
		})
		r.Post("/admin/logout", s.handleAdminLogout)

		// Admin dashboard; import and export run past the request timeout
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/admin/import", s.handleImport)
			r.Get("/admin/export/responses", s.handleExportResponses)

			r.Group(func(r chi.Router) {
				r.Use(timeout)
				r.Get("/admin/import/template", s.handleDownloadTemplate)
				r.Get("/admin/imports", s.handleImportHistory)
				r.Get("/admin/reports", s.handleListReports)
				r.Get("/admin/reports/{type}", s.handleReport)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; form-action 'self'; frame-ancestors 'none'")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
