package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cms-graphql/internal/logging"
	"cms-graphql/internal/observability"
)

const defaultAdminTokenHeader = "X-Admin-Token"

// AdminTokenAuthConfig configures shared-token protection for admin routes.
// The token is read from HeaderName, or from an "Authorization: Bearer"
// header when HeaderName is absent from the request.
type AdminTokenAuthConfig struct {
	Token      string
	HeaderName string
	Metrics    *observability.AdminMetrics
}

type tokenGuard struct {
	header string
	digest [sha256.Size]byte
}

// presented returns the token offered by r, or "" when there is none.
func (g tokenGuard) presented(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(g.header)); v != "" {
		return v
	}
	scheme, credential, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(credential)
	}
	return ""
}

// matches compares digests so the comparison time does not depend on the
// token length.
func (g tokenGuard) matches(token string) bool {
	got := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(got[:], g.digest[:]) == 1
}

// AdminTokenAuthMiddleware rejects requests that do not present the
// configured admin token with 401.
func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	guard := tokenGuard{header: strings.TrimSpace(cfg.HeaderName), digest: sha256.Sum256([]byte(token))}
	if guard.header == "" {
		guard.header = defaultAdminTokenHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := guard.presented(r)
			ok := presented != "" && guard.matches(presented)
			cfg.Metrics.RecordAccess(r.Context(), r.URL.Path, ok)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			reason := "token mismatch"
			if presented == "" {
				reason = "token missing"
			}
			logging.FromContext(r.Context()).Warn("admin request rejected",
				slog.String("path", r.URL.Path),
				slog.String("reason", reason))
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		})
	}, nil
}
