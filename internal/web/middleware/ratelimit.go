package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/eteeap-survey/internal/logging"
	"github.com/JonMunkholm/eteeap-survey/internal/ratelimit"
)

// RateLimit allows at most limit requests per window per client IP for the
// routes it wraps. Buckets are namespaced by name so route groups count
// separately. Limiter failures let the request through.
func RateLimit(l ratelimit.Limiter, name string, limit int, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule := ratelimit.Rule{
				Key:    "http:" + name + ":" + clientIP(r),
				Limit:  limit,
				Window: window,
			}
			ok, err := l.Allow(r.Context(), rule)
			if err != nil {
				logging.FromContext(r.Context()).Error("rate limiter unavailable", "error", err, "bucket", name)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"Too many requests","message":"Too many requests","action":"Please wait before trying again","code":"RATE001"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already rewritten for proxied requests.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
