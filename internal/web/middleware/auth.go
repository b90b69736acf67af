package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/eteeap-survey/internal/auth"
)

// AdminCookieName is the cookie carrying the admin session token.
const AdminCookieName = "eteeap_admin"

type adminCtxKey struct{}

// RequireAdmin rejects requests without a valid admin token. The token is
// read from "Authorization: Bearer ..." first, then from AdminCookieName.
func RequireAdmin(signer *auth.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r)
			if tok == "" {
				if c, err := r.Cookie(AdminCookieName); err == nil {
					tok = c.Value
				}
			}
			if tok == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := signer.Parse(tok)
			if err != nil {
				slog.Warn("auth: invalid admin token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), adminCtxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminFromContext returns the claims set by RequireAdmin.
func AdminFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(adminCtxKey{}).(*auth.Claims)
	return c, ok
}

// ContextWithAdmin stores claims the way RequireAdmin does.
func ContextWithAdmin(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, adminCtxKey{}, c)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `","message":"` + msg + `","code":"AUTH002"}`))
}
