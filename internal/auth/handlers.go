package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// AuthService is what the HTTP layer needs from the auth service
type AuthService interface {
	SessionValidator
	Authenticate(ctx context.Context, username, pin string) (*types.LoginResult, error)
	Logout(ctx context.Context, claims *types.UserClaims) error
	ListLoginOptions(ctx context.Context) ([]types.LoginOption, error)
	CreateUser(ctx context.Context, caller *types.UserClaims, req *types.UserRegistrationRequest) (*types.User, error)
	DeactivateUser(ctx context.Context, caller *types.UserClaims, userID string) error
	ListUsers(ctx context.Context, caller *types.UserClaims, role types.UserRole) ([]*types.User, error)
}

// CookieSettings controls the session cookie set at login
type CookieSettings struct {
	Name   string
	Secure bool
}

// Handlers contains the HTTP handlers for login and session endpoints
type Handlers struct {
	service AuthService
	cookie  CookieSettings
	logger  *logger.Logger
}

// NewHandlers creates new auth HTTP handlers
func NewHandlers(service AuthService, cookie CookieSettings, log *logger.Logger) *Handlers {
	return &Handlers{
		service: service,
		cookie:  cookie,
		logger:  log,
	}
}

// NewRouter builds the gin engine serving /api/v1/auth
func (h *Handlers) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes registers auth routes with the router
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/users", h.LoginOptions)
	}
}

// Login handles PIN authentication. Accepts JSON or form bodies.
func (h *Handlers) Login(c *gin.Context) {
	var credentials types.Credentials
	if err := c.ShouldBind(&credentials); err != nil {
		// A missing field is just another failed login
		h.handleError(c, types.NewAuthenticationError(types.ErrCodeAuthenticationFailed, types.InvalidCredentialsMessage))
		return
	}

	result, err := h.service.Authenticate(c.Request.Context(), credentials.Username, credentials.PIN)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.setSessionCookie(c, result.Token.AccessToken, int(result.Token.ExpiresIn))
	c.JSON(http.StatusOK, gin.H{
		"message": "Authentication successful",
		"token":   result.Token,
		"user":    result.User,
		"landing": result.Landing,
	})
}

// Logout ends the current session and clears the cookie
func (h *Handlers) Logout(c *gin.Context) {
	token := TokenFromRequest(c.Request, h.cookie.Name)
	if token == "" {
		h.handleError(c, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Authentication required"))
		return
	}

	claims, err := h.service.ValidateSession(c.Request.Context(), token)
	if err != nil {
		h.clearSessionCookie(c)
		h.handleError(c, err)
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims); err != nil {
		h.handleError(c, err)
		return
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{
		"message": "Logout successful",
	})
}

// LoginOptions lists active users for the login picker
func (h *Handlers) LoginOptions(c *gin.Context) {
	options, err := h.service.ListLoginOptions(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": options,
	})
}

func (h *Handlers) setSessionCookie(c *gin.Context, token string, maxAge int) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, maxAge, "/", "", h.cookie.Secure, true)
}

func (h *Handlers) clearSessionCookie(c *gin.Context) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

func (h *Handlers) handleError(c *gin.Context, err error) {
	status := types.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithContext(c.Request.Context()).WithError(err).Error("Internal server error")
	}
	c.JSON(status, types.PublicError(err))
}

