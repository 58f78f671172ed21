package auth

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// SessionHandlers serves the session and user administration routes that
// live on the main mux router behind RequireSession
type SessionHandlers struct {
	service AuthService
	logger  *logger.Logger
}

// NewSessionHandlers creates the mux side of the auth API
func NewSessionHandlers(service AuthService, log *logger.Logger) *SessionHandlers {
	return &SessionHandlers{service: service, logger: log}
}

// RegisterRoutes mounts /me and /admin/users on an authenticated subrouter
func (h *SessionHandlers) RegisterRoutes(api *mux.Router) {
	api.HandleFunc("/me", h.handleMe).Methods(http.MethodGet)

	api.HandleFunc("/admin/users", h.handleListUsers).Methods(http.MethodGet)
	api.HandleFunc("/admin/users", h.handleCreateUser).Methods(http.MethodPost)
	api.HandleFunc("/admin/users/{id}/deactivate", h.handleDeactivateUser).Methods(http.MethodPost)
}

func (h *SessionHandlers) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    claims,
		"role":    claims.Role.DisplayName(),
		"landing": claims.Role.LandingPath(),
	})
}

func (h *SessionHandlers) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := types.UserRole(r.URL.Query().Get("role"))

	users, err := h.service.ListUsers(r.Context(), ClaimsFromContext(r.Context()), role)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

func (h *SessionHandlers) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req types.UserRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "Invalid request format", nil))
		return
	}

	user, err := h.service.CreateUser(r.Context(), ClaimsFromContext(r.Context()), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User created successfully",
		"user":    user,
	})
}

func (h *SessionHandlers) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	if err := h.service.DeactivateUser(r.Context(), ClaimsFromContext(r.Context()), userID); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "User deactivated",
		"id":      userID,
	})
}

func (h *SessionHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := types.StatusCode(err)
	entry := h.logger.WithContext(r.Context()).WithError(err)
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("Request failed")
	case lo.Contains([]int{http.StatusUnauthorized, http.StatusForbidden}, status):
		claims := ClaimsFromContext(r.Context())
		userID := ""
		if claims != nil {
			userID = claims.UserID
		}
		h.logger.Security("access_denied", userID, map[string]interface{}{"path": r.URL.Path})
	}
	writeError(w, err)
}
