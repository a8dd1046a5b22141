package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/SMohammed-suhail/ClinicCare/internal/models"
	"github.com/SMohammed-suhail/ClinicCare/internal/store"
)

type principalContextKey struct{}

// AuthMiddleware resolves the bearer session to a user profile and makes
// it the request's principal. Public endpoints pass through untouched.
func AuthMiddleware(identity store.IdentityStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := SessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		_, profile, err := identity.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromContext(ctx context.Context) (models.UserProfile, bool) {
	value := ctx.Value(principalContextKey{})
	if value == nil {
		return models.UserProfile{}, false
	}
	profile, ok := value.(models.UserProfile)
	if !ok {
		return models.UserProfile{}, false
	}
	return profile, true
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (models.UserProfile, bool) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return models.UserProfile{}, false
	}
	return principal, true
}

// SessionIDFromRequest pulls the session token from the Authorization
// header, the X-Session-ID header, or the session_id query parameter
// (the realtime endpoint cannot set headers from a browser).
func SessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if header := strings.TrimSpace(r.Header.Get("X-Session-ID")); header != "" {
		return header
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/api/auth/signup", "/api/auth/login":
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
