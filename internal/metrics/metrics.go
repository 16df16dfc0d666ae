// Package metrics exposes the gateway counters to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront_gateway"

// GatewayMetrics counts the authentication events of the gateway. All methods can be called
// on a nil receiver, in that case nothing is recorded.
type GatewayMetrics struct {
	refreshes      *prometheus.CounterVec
	retries        prometheus.Counter
	upstreamCalls  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	sessionsSwept  prometheus.Counter
	activeSessions prometheus.Gauge
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func (m *GatewayMetrics) RefreshFinished(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *GatewayMetrics) RequestRetried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// UpstreamCalled records a single request to the API with its auth mode and status class
func (m *GatewayMetrics) UpstreamCalled(authMode string, statusClass string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(authMode, statusClass).Inc()
}

func (m *GatewayMetrics) UserLoggedIn(method string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method).Inc()
}

func (m *GatewayMetrics) SessionsSwept(count int) {
	if m == nil {
		return
	}
	m.sessionsSwept.Add(float64(count))
}

func (m *GatewayMetrics) ActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

// Register adds all collectors to the registerer
func (m *GatewayMetrics) Register(registerer prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		m.refreshes,
		m.retries,
		m.upstreamCalls,
		m.logins,
		m.sessionsSwept,
		m.activeSessions,
	} {
		err := registerer.Register(collector)
		if err != nil {
			return err
		}
	}
	return nil
}

func NewGatewayMetrics() *GatewayMetrics {
	return &GatewayMetrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Number of credential refreshes by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Number of API requests replayed after a credential refresh.",
		}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Number of requests sent to the API by auth mode and status class.",
		}, []string{"auth", "status"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Number of successful logins by method.",
		}, []string{"method"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Number of expired browser sessions removed.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of browser sessions currently tracked.",
		}),
	}
}
