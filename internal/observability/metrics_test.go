package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	testMetrics     *Metrics
	testMetricsOnce sync.Once
)

// getTestMetrics returns a singleton metrics instance for all tests
// This prevents duplicate Prometheus registration errors since metrics
// are registered globally
func getTestMetrics() *Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = NewMetrics()
	})
	return testMetrics
}

func TestNewMetrics(t *testing.T) {
	metrics := getTestMetrics()
	assert.NotNil(t, metrics)
	assert.NotNil(t, metrics.SegmenterUtterancesTotal)
	assert.NotNil(t, metrics.SegmenterUtteranceDur)
	assert.NotNil(t, metrics.RouterDeliveriesTotal)
	assert.NotNil(t, metrics.RouterDegradedTotal)
	assert.NotNil(t, metrics.TranslationLatency)
	assert.NotNil(t, metrics.HTTPRequestsTotal)
	assert.NotNil(t, metrics.HTTPRequestDuration)
	assert.NotNil(t, metrics.OrchestratorActiveSessions)
	assert.NotNil(t, metrics.OrchestratorParticipants)
}

func TestMetrics_IncrementSegmenterUtterances(t *testing.T) {
	metrics := getTestMetrics()

	metrics.SegmenterUtterancesTotal.WithLabelValues("natural_silence").Inc()
	metrics.SegmenterUtterancesTotal.WithLabelValues("force_finalized").Inc()
}

func TestMetrics_RecordTranslationLatency(t *testing.T) {
	metrics := getTestMetrics()

	metrics.TranslationLatency.WithLabelValues("en-ru").Observe(170.0)
	metrics.TranslationLatency.WithLabelValues("he-en").Observe(90.0)
}

func TestMetrics_SetActiveSessions(t *testing.T) {
	metrics := getTestMetrics()

	metrics.OrchestratorActiveSessions.WithLabelValues().Set(3)
	metrics.OrchestratorParticipants.WithLabelValues("call-1").Set(4)
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	metrics := getTestMetrics()

	metrics.HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200").Inc()
	metrics.HTTPRequestDuration.WithLabelValues("GET", "/healthz").Observe(5.0)
}

func TestMetrics_RecordRouterDegraded(t *testing.T) {
	metrics := getTestMetrics()

	metrics.RouterDegradedTotal.WithLabelValues("translation_unavailable").Inc()
	metrics.RouterDegradedTotal.WithLabelValues("synthesis_unavailable").Inc()
}
