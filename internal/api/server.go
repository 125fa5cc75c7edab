package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/internal/observability"
	"github.com/voxbridge/callcore/internal/orchestrator"
)

// Server is the central HTTP API server for the call core. It wires chi
// routing, middleware, and the call-session WebSocket handler.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	handler    *orchestrator.Handler
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	logger     zerolog.Logger
	cfg        config.ServerConfig
}

// New creates and configures a new API Server with all routes and middleware.
// handler may be nil if only health/metrics routes are needed (e.g. tests).
func New(
	cfg config.ServerConfig,
	handler *orchestrator.Handler,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		handler: handler,
		health:  health,
		metrics: metrics,
		logger:  logger.With().Str("component", "api_server").Logger(),
		cfg:     cfg,
	}

	// Root router: keeps the call WebSocket outside the API middleware stack
	// (it needs neither the request timeout nor the body-size limit).
	r := chi.NewRouter()

	if handler != nil {
		r.Get("/ws/call/{sessionID}", handler.ServeWS)
	}

	// API router with the full middleware stack, for everything else.
	apiRouter := chi.NewRouter()

	apiRouter.Use(middleware.RequestID)
	apiRouter.Use(middleware.RealIP)
	apiRouter.Use(RequestLogger(s.logger))
	apiRouter.Use(middleware.Recoverer)
	apiRouter.Use(middleware.Timeout(30 * time.Second))
	apiRouter.Use(SecurityHeaders())
	apiRouter.Use(CORSMiddleware(cfg.CORS))
	apiRouter.Use(MaxBodySize(1 << 20)) // 1 MB default body limit

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 100
	}
	apiRouter.Use(RateLimitWithHeaders(rps))

	if metrics != nil {
		apiRouter.Use(MetricsMiddleware(metrics))
	}

	apiRouter.Get("/health", s.handleHealth)
	apiRouter.Get("/health/live", s.handleLiveness)
	apiRouter.Get("/health/ready", s.handleReadiness)
	apiRouter.Handle("/metrics", promhttp.Handler())

	r.Mount("/", apiRouter)

	s.router = r
	return s
}

// Start begins listening for HTTP connections.
// It blocks until the server is shut down or an error occurs.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info().
		Str("addr", addr).
		Bool("tls", s.cfg.TLSEnabled).
		Msg("starting HTTP server")

	if s.cfg.TLSEnabled && s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the chi router as an http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth returns the aggregated health status from all registered checks.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
		return
	}

	result := s.health.Check(r.Context())

	status := http.StatusOK
	if result.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	} else if result.IsDegraded() {
		status = http.StatusOK // degraded but still serving
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

// handleLiveness reports whether the process is alive.
// GET /health/live
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
	})
}

// handleReadiness reports whether the service is ready to receive traffic.
// GET /health/ready
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
		})
		return
	}

	result := s.health.Check(r.Context())
	status := http.StatusOK
	if result.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]string{
		"status": string(result.Status),
	})
}
