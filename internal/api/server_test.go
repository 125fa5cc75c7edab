package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbridge/callcore/internal/auth"
	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/internal/observability"
	"github.com/voxbridge/callcore/internal/orchestrator"
	"github.com/voxbridge/callcore/internal/repo/memory"
	"github.com/voxbridge/callcore/internal/router"
	"github.com/voxbridge/callcore/internal/speech"
	"github.com/voxbridge/callcore/internal/ttscache"
)

// testServer creates a test API server with default config. handler may be
// nil for tests that only exercise health/metrics.
func testServer(t *testing.T, handler *orchestrator.Handler) *Server {
	t.Helper()

	logger := zerolog.Nop()
	health := observability.NewHealthChecker(logger, "test")
	cfg := config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		CORS: config.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"http://localhost:5173"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		},
	}

	return New(cfg, handler, health, nil, logger)
}

// testHandler builds an orchestrator.Handler backed by an in-memory
// repository and a mock speech adapter, sufficient to exercise routing and
// admission rejection without a live ASR/MT/TTS backend.
func testHandler(t *testing.T) *orchestrator.Handler {
	t.Helper()

	jwtManager, err := auth.NewJWTManager("test-secret-that-is-at-least-32-characters-long")
	require.NoError(t, err)

	adapter := speech.NewMock()
	rt := router.New(config.RouterConfig{
		DedupTTL:                  30 * time.Second,
		ContextWindow:             10,
		InterimTranslationEnabled: true,
	}, adapter, ttscache.New(64, 0, zerolog.Nop()), zerolog.Nop())

	mgr := orchestrator.NewManager(
		config.OrchestratorConfig{
			MaxParticipants:   4,
			OutboundQueueSize: 16,
			PingInterval:      15 * time.Second,
			PongWait:          30 * time.Second,
			WriteWait:         10 * time.Second,
			TeardownGrace:     time.Second,
		},
		config.SegmenterConfig{
			RMSThreshold:       300,
			SilenceThresholdMS: 400,
			MaxUtteranceMS:     5000,
			MinSpeechMS:        100,
			SpectralWindowMS:   400,
			SpeechBandLowHz:    80,
			SpeechBandHighHz:   4000,
			NoiseBandHz:        5000,
			SpectralRatio:      2.0,
			InboundQueueSize:   32,
		},
		adapter, rt, memory.New(), nil, zerolog.Nop(),
	)

	return orchestrator.NewHandler(mgr, jwtManager, zerolog.Nop())
}

// TestHealthEndpoint verifies that the /health endpoint returns 200 with status info.
func TestHealthEndpoint(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body map[string]interface{}
	err := json.Unmarshal(rec.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Contains(t, body, "status")
}

// TestLivenessEndpoint verifies that /health/live always reports alive.
func TestLivenessEndpoint(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestReadinessEndpoint verifies that /health/ready reports ready when no
// health checks are registered.
func TestReadinessEndpoint(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestMetricsEndpoint verifies the Prometheus scrape endpoint is mounted.
func TestMetricsEndpoint(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestCallWebsocketRejectsMissingToken verifies the call endpoint requires a
// bearer token before the upgrade is attempted.
func TestCallWebsocketRejectsMissingToken(t *testing.T) {
	s := testServer(t, testHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/ws/call/call-1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestCallWebsocketRejectsInvalidToken verifies a malformed/expired bearer
// token is rejected before admission is attempted.
func TestCallWebsocketRejectsInvalidToken(t *testing.T) {
	s := testServer(t, testHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/ws/call/call-1?token=not-a-real-token", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestRouteWithNilHandlerIsNotMounted verifies the server still serves
// health/metrics when no orchestrator handler is configured.
func TestRouteWithNilHandlerIsNotMounted(t *testing.T) {
	s := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws/call/call-1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
