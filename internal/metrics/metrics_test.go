package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := NewGatewayMetrics()

	m.RefreshFinished(OutcomeSuccess)
	m.RefreshFinished(OutcomeSuccess)
	m.RefreshFinished(OutcomeFailure)
	m.RequestRetried()
	m.UpstreamCalled("user", "2xx")
	m.UserLoggedIn("otp")
	m.SessionsSwept(3)
	m.ActiveSessions(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.refreshes.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("user", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("otp")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionsSwept))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.activeSessions))
}

func TestNilMetrics(t *testing.T) {
	var m *GatewayMetrics

	assert.NotPanics(t, func() {
		m.RefreshFinished(OutcomeSuccess)
		m.RequestRetried()
		m.UpstreamCalled("none", "4xx")
		m.UserLoggedIn("password")
		m.SessionsSwept(1)
		m.ActiveSessions(1)
	})
}

func TestRegister(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewGatewayMetrics()

	require.NoError(t, m.Register(registry))
	m.RequestRetried()

	count, err := testutil.GatherAndCount(registry, "storefront_gateway_request_retries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Error(t, m.Register(registry))
}
