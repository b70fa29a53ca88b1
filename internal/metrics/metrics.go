package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the Entretien server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec
	SessionsIssued     prometheus.Counter
	SessionsRevoked    *prometheus.CounterVec

	// Review workflow metrics.
	CycleActivationsTotal        prometheus.Counter
	ConversationTransitionsTotal *prometheus.CounterVec
	PasswordResetsTotal          prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entretien_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entretien_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entretien_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entretien_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entretien_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		SessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entretien_sessions_issued_total",
			Help: "Total number of sessions issued at login.",
		}),

		SessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entretien_sessions_revoked_total",
			Help: "Total number of sessions revoked.",
		}, []string{"reason"}),

		CycleActivationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entretien_cycle_activations_total",
			Help: "Total number of review cycle activations.",
		}),

		ConversationTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entretien_conversation_transitions_total",
			Help: "Total number of conversation status transitions.",
		}, []string{"to_status"}),

		PasswordResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entretien_password_resets_total",
			Help: "Total number of admin-initiated password resets.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entretien_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.SessionsIssued,
		m.SessionsRevoked,
		m.CycleActivationsTotal,
		m.ConversationTransitionsTotal,
		m.PasswordResetsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, seconds float64, responseBytes int) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
	m.HTTPResponseSize.WithLabelValues(method, pathPattern).Observe(float64(responseBytes))
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// IncSessionsIssued increments the issued-sessions counter.
func (m *Metrics) IncSessionsIssued() {
	m.SessionsIssued.Inc()
}

// IncSessionsRevoked increments the revoked-sessions counter by reason
// (logout, password_change, password_reset, expired).
func (m *Metrics) IncSessionsRevoked(reason string) {
	m.SessionsRevoked.WithLabelValues(reason).Inc()
}

// IncCycleActivation increments the cycle activation counter.
func (m *Metrics) IncCycleActivation() {
	m.CycleActivationsTotal.Inc()
}

// IncConversationTransition increments the conversation transition counter.
func (m *Metrics) IncConversationTransition(toStatus string) {
	m.ConversationTransitionsTotal.WithLabelValues(toStatus).Inc()
}

// IncPasswordReset increments the password reset counter.
func (m *Metrics) IncPasswordReset() {
	m.PasswordResetsTotal.Inc()
}
