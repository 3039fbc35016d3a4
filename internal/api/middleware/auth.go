package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/testforge/a11yforge/pkg/httputil"
)

// TokenAuthMiddleware requires a shared API token on every request
type TokenAuthMiddleware struct {
	token string
}

// NewTokenAuthMiddleware creates a token check. An empty token lets every
// request through.
func NewTokenAuthMiddleware(token string) *TokenAuthMiddleware {
	return &TokenAuthMiddleware{token: token}
}

// Handler returns the middleware handler
func (m *TokenAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := extractToken(r)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(m.token)) != 1 {
			httputil.JSONError(w, http.StatusUnauthorized, httputil.CodeUnauthorized, "missing or invalid API token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken reads X-API-Key, then a bearer Authorization header
func extractToken(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
