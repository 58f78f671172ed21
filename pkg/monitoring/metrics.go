package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection for the portal
type MetricsCollector struct {
	serviceName string
	gatherer    prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authAttemptsTotal   *prometheus.CounterVec
	requestsSubmitted   *prometheus.CounterVec
	reportsCompleted    *prometheus.CounterVec
	processConflicts    *prometheus.CounterVec
	historyFailures     *prometheus.CounterVec
	documentsRendered   *prometheus.CounterVec
	imagesStored        *prometheus.CounterVec
	systemErrors        *prometheus.CounterVec
}

// NewMetricsCollector creates and registers the collectors on reg. A nil reg
// uses a private registry.
func NewMetricsCollector(serviceName string, reg *prometheus.Registry) *MetricsCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &MetricsCollector{
		serviceName: serviceName,
		gatherer:    reg,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		authAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_attempts_total",
				Help: "Total number of PIN login attempts",
			},
			[]string{"status", "service"},
		),
		requestsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microbio_requests_submitted_total",
				Help: "Sample requests submitted by doctors",
			},
			[]string{"with_image", "service"},
		),
		reportsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microbio_reports_completed_total",
				Help: "Requests completed with a lab report",
			},
			[]string{"service"},
		),
		processConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microbio_process_conflicts_total",
				Help: "Report submissions rejected because the request was no longer pending",
			},
			[]string{"service"},
		),
		historyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microbio_history_write_failures_total",
				Help: "History entries that could not be written",
			},
			[]string{"action", "service"},
		),
		documentsRendered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microbio_documents_rendered_total",
				Help: "PDF reports rendered",
			},
			[]string{"image", "service"},
		),
		imagesStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microbio_images_stored_total",
				Help: "Clinical images written to the image store",
			},
			[]string{"backend", "status", "service"},
		),
		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "system_errors_total",
				Help: "Total number of system errors",
			},
			[]string{"error_type", "service", "component"},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.authAttemptsTotal,
		m.requestsSubmitted,
		m.reportsCompleted,
		m.processConflicts,
		m.historyFailures,
		m.documentsRendered,
		m.imagesStored,
		m.systemErrors,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordAuthAttempt(status string) {
	m.authAttemptsTotal.WithLabelValues(status, m.serviceName).Inc()
}

func (m *MetricsCollector) RecordRequestSubmitted(withImage bool) {
	m.requestsSubmitted.WithLabelValues(strconv.FormatBool(withImage), m.serviceName).Inc()
}

func (m *MetricsCollector) RecordReportCompleted() {
	m.reportsCompleted.WithLabelValues(m.serviceName).Inc()
}

// RecordProcessConflict counts a lost race or a resubmission on a completed request
func (m *MetricsCollector) RecordProcessConflict() {
	m.processConflicts.WithLabelValues(m.serviceName).Inc()
}

func (m *MetricsCollector) RecordHistoryFailure(action string) {
	m.historyFailures.WithLabelValues(action, m.serviceName).Inc()
}

// RecordDocumentRendered records a PDF render. image is one of "none",
// "embedded" or "fallback".
func (m *MetricsCollector) RecordDocumentRendered(image string) {
	m.documentsRendered.WithLabelValues(image, m.serviceName).Inc()
}

func (m *MetricsCollector) RecordImageStored(backend string, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	m.imagesStored.WithLabelValues(backend, status, m.serviceName).Inc()
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, m.serviceName, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
