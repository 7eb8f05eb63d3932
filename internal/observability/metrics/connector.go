package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

// ConnectorMetrics counts what the connector does against the remote
// services. It registers on the registry of the hosting process.
type ConnectorMetrics struct {
	service string

	outboundTotal    *prometheus.CounterVec
	outboundDuration *prometheus.HistogramVec
	retriesTotal     *prometheus.CounterVec
	tokenRefreshes   *prometheus.CounterVec
	orchestrations   *prometheus.CounterVec
	orchestrationDur *prometheus.HistogramVec
	pollAttempts     *prometheus.CounterVec
	itemsTotal       *prometheus.CounterVec
}

func NewConnectorMetrics(service string, registerer prometheus.Registerer) *ConnectorMetrics {
	m := &ConnectorMetrics{
		service: service,
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "requests_total",
			Help:      "Outbound HTTP calls by method, host and status class.",
		}, []string{"service", "method", "host", "status"}),
		outboundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "request_duration_seconds",
			Help:      "Outbound HTTP call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method", "host"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "retries_total",
			Help:      "Retries scheduled by the resilience executor.",
		}, []string{"service", "operation"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Bearer token fetches by downstream service and outcome.",
		}, []string{"service", "auth_service", "outcome"}),
		orchestrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestration",
			Name:      "runs_total",
			Help:      "Completed orchestrations by kind and outcome.",
		}, []string{"service", "kind", "outcome"}),
		orchestrationDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestration",
			Name:      "duration_seconds",
			Help:      "Orchestration duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"service", "kind"}),
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestration",
			Name:      "poll_attempts_total",
			Help:      "Job status poll attempts.",
		}, []string{"service", "kind"}),
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestration",
			Name:      "items_total",
			Help:      "Content items processed by upload outcome.",
		}, []string{"service", "kind", "state"}),
	}

	registerer.MustRegister(
		m.outboundTotal,
		m.outboundDuration,
		m.retriesTotal,
		m.tokenRefreshes,
		m.orchestrations,
		m.orchestrationDur,
		m.pollAttempts,
		m.itemsTotal,
	)
	return m
}

func (m *ConnectorMetrics) ObserveOutbound(method, host string, statusCode int, seconds float64) {
	m.outboundTotal.WithLabelValues(m.service, method, host, statusClass(statusCode)).Inc()
	m.outboundDuration.WithLabelValues(m.service, method, host).Observe(seconds)
}

func (m *ConnectorMetrics) ObserveRetry(operation string, _ int) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *ConnectorMetrics) ObserveTokenRefresh(authService, outcome string) {
	m.tokenRefreshes.WithLabelValues(m.service, authService, outcome).Inc()
}

func (m *ConnectorMetrics) ObserveOrchestration(kind, outcome string, seconds float64) {
	m.orchestrations.WithLabelValues(m.service, kind, outcome).Inc()
	m.orchestrationDur.WithLabelValues(m.service, kind).Observe(seconds)
}

func (m *ConnectorMetrics) ObservePollAttempt(kind string) {
	m.pollAttempts.WithLabelValues(m.service, kind).Inc()
}

func (m *ConnectorMetrics) ObserveItem(kind string, state domain.ItemState) {
	m.itemsTotal.WithLabelValues(m.service, kind, string(state)).Inc()
}

// statusClass keeps label cardinality low: 2xx, 4xx, 5xx or "transport".
func statusClass(code int) string {
	if code < 0 {
		return "transport"
	}
	return strconv.Itoa(code/100) + "xx"
}
