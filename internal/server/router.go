// Package server assembles the portal's HTTP surface: the gin login engine,
// the session-guarded mux API, and the operational endpoints.
package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/satymtripathi/microbiology/internal/auth"
	"github.com/satymtripathi/microbiology/internal/workflow"
	"github.com/satymtripathi/microbiology/pkg/config"
	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/monitoring"
	"github.com/satymtripathi/microbiology/pkg/types"
)

const (
	apiPrefix  = "/api/v1"
	authPrefix = apiPrefix + "/auth"
	loginPath  = authPrefix + "/login"
)

// Dependencies are the services the router dispatches to
type Dependencies struct {
	Auth     auth.AuthService
	Workflow workflow.WorkflowService
	// Throttle guards the login endpoint; nil leaves it unthrottled
	Throttle *LoginThrottle
	Metrics  *monitoring.MetricsCollector
	Tracing  *monitoring.TracingManager
	Health   *monitoring.HealthManager
	Logger   *logger.Logger
}

// NewRouter builds the portal handler
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, types.NewNotFoundError(types.ErrCodeNotFound, "Not found"))
	})

	monitor := monitoring.NewMonitoringMiddleware(deps.Metrics, deps.Tracing, deps.Logger)
	router.Use(monitor.HTTPMiddleware)

	if cfg.Monitoring.Enabled {
		router.Handle(cfg.Monitoring.MetricsPath, deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	router.Handle(cfg.Monitoring.HealthPath, deps.Health.HTTPHandler()).Methods(http.MethodGet)

	var login http.Handler = auth.NewHandlers(deps.Auth, auth.CookieSettings{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
	}, deps.Logger).NewRouter()
	if deps.Throttle != nil {
		login = deps.Throttle.Middleware(loginPath)(login)
	}
	router.PathPrefix(authPrefix).Handler(login)

	api := router.PathPrefix(apiPrefix).Subrouter()
	api.Use(auth.NewMiddleware(deps.Auth, cfg.Auth.CookieName, deps.Logger).RequireSession)
	auth.NewSessionHandlers(deps.Auth, deps.Logger).RegisterRoutes(api)
	workflow.NewHandlers(deps.Workflow, cfg.Storage.MaxImageBytes, deps.Logger).RegisterRoutes(api)

	// CORS sits outside mux so preflight requests reach it without a matching route
	return corsMiddleware(cfg.Server.AllowOrigin)(securityHeadersMiddleware(router))
}
