package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// adminAuth protects admin endpoints with the ADMIN_TOKEN, sent either as
// X-Admin-Token or as a Bearer token. With no token configured the admin
// routes are closed, since the full schedule reveals upcoming words.
func adminAuth(token string) func(http.Handler) http.Handler {
	if token == "" {
		slog.Warn("ADMIN_TOKEN not set - admin endpoints are disabled", slog.String("component", "http"))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, "admin endpoints disabled", http.StatusForbidden)
				return
			}
			given := r.Header.Get("X-Admin-Token")
			if given == "" {
				if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					given = v
				}
			}
			if given != "" && subtle.ConstantTimeCompare([]byte(given), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="shooting-star admin"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			slog.Warn("admin auth failed", slog.String("path", r.URL.Path), slog.String("remote_addr", r.RemoteAddr))
		})
	}
}
