package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the outcome of one dependency probe or of the whole report
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// severity orders statuses so the report takes the worst one
var severity = map[HealthStatus]int{
	HealthStatusHealthy:   0,
	HealthStatusDegraded:  1,
	HealthStatusUnhealthy: 2,
}

// HealthCheck is the result of probing one dependency
type HealthCheck struct {
	Name       string                 `json:"name"`
	Status     HealthStatus           `json:"status"`
	Message    string                 `json:"message,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// HealthReport is what /health answers with
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Service   string        `json:"service"`
	Version   string        `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
	Checks    []HealthCheck `json:"checks"`
}

// HealthChecker probes one dependency
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
}

// CheckFunc adapts a function to HealthChecker
type CheckFunc func(ctx context.Context) HealthCheck

func (f CheckFunc) Check(ctx context.Context) HealthCheck { return f(ctx) }

// HealthManager probes the portal's dependencies (database, image store)
// in parallel, each under its own timeout
type HealthManager struct {
	service  string
	version  string
	timeout  time.Duration
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager with a five second per-check timeout
func NewHealthManager(service, version string) *HealthManager {
	return &HealthManager{
		service:  service,
		version:  version,
		timeout:  5 * time.Second,
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker adds or replaces the checker for name
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// CheckHealth runs every checker and reports the worst status. Checks are
// listed by name.
func (hm *HealthManager) CheckHealth(ctx context.Context) *HealthReport {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		names = append(names, name)
		checkers[name] = checker
	}
	timeout := hm.timeout
	hm.mu.RUnlock()
	sort.Strings(names)

	checks := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, checker HealthChecker) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			check := checker.Check(probeCtx)
			check.Name = name
			check.DurationMS = time.Since(start).Milliseconds()
			checks[i] = check
		}(i, name, checkers[name])
	}
	wg.Wait()

	status := HealthStatusHealthy
	for _, check := range checks {
		if severity[check.Status] > severity[status] {
			status = check.Status
		}
	}

	return &HealthReport{
		Status:    status,
		Service:   hm.service,
		Version:   hm.version,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	}
}

// HTTPHandler serves the report; only an unhealthy portal answers 503
func (hm *HealthManager) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.CheckHealth(r.Context())

		code := http.StatusOK
		if report.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(report)
	}
}

// NewDatabaseHealthChecker pings Postgres and reports pool usage. A pool
// with every connection in use is degraded.
func NewDatabaseHealthChecker(db *sql.DB) HealthChecker {
	return CheckFunc(func(ctx context.Context) HealthCheck {
		if err := db.PingContext(ctx); err != nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: "database unreachable: " + err.Error()}
		}

		stats := db.Stats()
		check := HealthCheck{
			Status: HealthStatusHealthy,
			Details: map[string]interface{}{
				"open_connections": stats.OpenConnections,
				"in_use":           stats.InUse,
				"idle":             stats.Idle,
				"wait_count":       stats.WaitCount,
			},
		}
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			check.Status = HealthStatusDegraded
			check.Message = "connection pool exhausted"
		}
		return check
	})
}

// ErrorHealthChecker turns a probe such as ImageStore.Ping into a check: nil
// is healthy, any error unhealthy
func ErrorHealthChecker(probe func(ctx context.Context) error) HealthChecker {
	return CheckFunc(func(ctx context.Context) HealthCheck {
		if err := probe(ctx); err != nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy}
	})
}
