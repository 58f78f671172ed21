package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// SessionValidator resolves a raw token to its identity
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*types.UserClaims, error)
}

// Middleware guards mux routes with a portal session
type Middleware struct {
	sessions   SessionValidator
	cookieName string
	logger     *logger.Logger
}

// NewMiddleware creates the session middleware
func NewMiddleware(sessions SessionValidator, cookieName string, log *logger.Logger) *Middleware {
	return &Middleware{sessions: sessions, cookieName: cookieName, logger: log}
}

// RequireSession rejects requests without a valid session and stores the
// claims on the request context otherwise
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r, m.cookieName)
		if token == "" {
			writeError(w, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required"))
			return
		}

		claims, err := m.sessions.ValidateSession(r.Context(), token)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Debug("Rejected session")
			writeError(w, err)
			return
		}

		ctx := ContextWithClaims(r.Context(), claims)
		ctx = logger.ContextWithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFromRequest reads the bearer header first, then the session cookie
func TokenFromRequest(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, types.StatusCode(err), types.PublicError(err))
}
