package httpserver

import (
	"net/http"

	"github.com/janaaaac/meetworld-relay/internal/origin"
)

// corsMiddleware answers CORS preflights and attaches response headers for
// allowed origins.
//
// The chat API is polled from browser pages that may be served elsewhere, so
// the default allowlist is "*" (matching the original deployment). With a
// wildcard entry the literal "*" is emitted; otherwise the normalized
// request origin is echoed back and Vary: Origin is set so caches keep
// per-origin responses apart.
func corsMiddleware(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowValue := ""
			if raw := r.Header.Get("Origin"); raw != "" {
				if normalized, ok := origin.Normalize(raw); ok && origin.IsAllowed(normalized, allowedOrigins) {
					allowValue = normalized
				}
			}
			if containsWildcard(allowedOrigins) {
				allowValue = "*"
			}

			if allowValue != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowValue)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				if allowValue != "*" {
					w.Header().Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func containsWildcard(allowedOrigins []string) bool {
	for _, o := range allowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}
