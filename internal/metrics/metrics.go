package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vrceventbot/vrceventbot/internal/models"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks ops HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total ops HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current ops HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by type and source
	ErrorCounter *prometheus.CounterVec
	// LoginsTotal counts login attempts by path (fresh, resume) and outcome
	LoginsTotal *prometheus.CounterVec
	// MFAVerificationsTotal counts submitted codes by kind and result
	MFAVerificationsTotal *prometheus.CounterVec
	// PendingLogins is the number of logins waiting for a second factor
	PendingLogins prometheus.Gauge
	// VaultOperationsTotal counts credential store operations
	VaultOperationsTotal *prometheus.CounterVec
	// ProviderRequestsTotal counts VRChat API calls by endpoint and status class
	ProviderRequestsTotal *prometheus.CounterVec
	// ProviderLatency tracks VRChat API latency by endpoint
	ProviderLatency *prometheus.HistogramVec
	// InteractionsTotal counts Discord interactions by command and result
	InteractionsTotal *prometheus.CounterVec
	// LinkedUsers is the number of stored credential records
	LinkedUsers prometheus.Gauge
	// CleanupDeletedTotal counts rows removed by retention, by table
	CleanupDeletedTotal *prometheus.CounterVec
	// MaintenanceDuration tracks cleanup, vacuum and analyze runs
	MaintenanceDuration *prometheus.HistogramVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "source"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Total number of VRChat login attempts",
			},
			[]string{"path", "outcome"},
		),
		MFAVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mfa_verifications_total",
				Help:      "Total number of submitted second factor codes",
			},
			[]string{"kind", "result"},
		),
		PendingLogins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_logins",
				Help:      "Logins waiting for a second factor code",
			},
		),
		VaultOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vault_operations_total",
				Help:      "Total number of credential vault operations",
			},
			[]string{"operation", "result"},
		),
		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total number of VRChat API requests",
			},
			[]string{"endpoint", "status"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "VRChat API request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		InteractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discord_interactions_total",
				Help:      "Total number of handled Discord interactions",
			},
			[]string{"command", "result"},
		),
		LinkedUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "linked_users",
				Help:      "Discord users with stored VRChat credentials",
			},
		),
		CleanupDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_deleted_rows_total",
				Help:      "Rows removed by retention cleanup",
			},
			[]string{"table"},
		),
		MaintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Duration of database maintenance operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.LoginsTotal,
		m.MFAVerificationsTotal,
		m.PendingLogins,
		m.VaultOperationsTotal,
		m.ProviderRequestsTotal,
		m.ProviderLatency,
		m.InteractionsTotal,
		m.LinkedUsers,
		m.CleanupDeletedTotal,
		m.MaintenanceDuration,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and the status endpoint.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, source string) {
	m.ErrorCounter.WithLabelValues(errorType, source).Inc()
}

// ObserveLogin implements auth.Observer.
func (m *Metrics) ObserveLogin(path string, outcome models.AuthOutcome) {
	m.LoginsTotal.WithLabelValues(path, outcome.String()).Inc()
}

// ObserveMFA implements auth.Observer.
func (m *Metrics) ObserveMFA(kind string, accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.MFAVerificationsTotal.WithLabelValues(kind, result).Inc()
}

// SetPendingLogins implements auth.Observer.
func (m *Metrics) SetPendingLogins(n int) {
	m.PendingLogins.Set(float64(n))
}

// ObserveVaultOp implements vault.Observer.
func (m *Metrics) ObserveVaultOp(op, result string) {
	m.VaultOperationsTotal.WithLabelValues(op, result).Inc()
}

// ObserveProviderRequest implements vrchat.RequestObserver. Statuses are
// bucketed by class to keep label cardinality flat.
func (m *Metrics) ObserveProviderRequest(endpoint string, status int, elapsed time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(endpoint, statusClass(status)).Inc()
	m.ProviderLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// RecordInteraction records a handled Discord interaction.
func (m *Metrics) RecordInteraction(command, result string) {
	m.InteractionsTotal.WithLabelValues(command, result).Inc()
}

// SetLinkedUsers sets the linked user gauge.
func (m *Metrics) SetLinkedUsers(n int) {
	m.LinkedUsers.Set(float64(n))
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// RecordCleanupOperation records one retention pass over table.
func (m *Metrics) RecordCleanupOperation(table string, deleted int64, duration time.Duration) {
	m.CleanupDeletedTotal.WithLabelValues(table).Add(float64(deleted))
	m.MaintenanceDuration.WithLabelValues("cleanup").Observe(duration.Seconds())
}

// RecordVacuumOperation records a VACUUM run.
func (m *Metrics) RecordVacuumOperation(duration time.Duration) {
	m.MaintenanceDuration.WithLabelValues("vacuum").Observe(duration.Seconds())
}

// RecordAnalyzeOperation records an ANALYZE run.
func (m *Metrics) RecordAnalyzeOperation(duration time.Duration) {
	m.MaintenanceDuration.WithLabelValues("analyze").Observe(duration.Seconds())
}
