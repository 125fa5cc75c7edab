package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxbridge/callcore/internal/api"
	"github.com/voxbridge/callcore/internal/auth"
	"github.com/voxbridge/callcore/internal/broker"
	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/internal/observability"
	"github.com/voxbridge/callcore/internal/orchestrator"
	"github.com/voxbridge/callcore/internal/repo/memory"
	"github.com/voxbridge/callcore/internal/repo/postgres"
	"github.com/voxbridge/callcore/internal/repo/sqlite"
	"github.com/voxbridge/callcore/internal/router"
	"github.com/voxbridge/callcore/internal/speech"
	redisstore "github.com/voxbridge/callcore/internal/store/redis"
	"github.com/voxbridge/callcore/internal/ttscache"
	"github.com/voxbridge/callcore/pkg/version"
)

func main() {
	cfg, err := config.Load("config.json")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:        cfg.GetLogLevel(),
		Format:       cfg.Logging.Format,
		OutputPath:   cfg.Logging.OutputPath,
		ErrorPath:    cfg.Logging.ErrorPath,
		EnableCaller: cfg.Logging.EnableCaller,
		EnableStack:  cfg.Logging.EnableStack,
		Service:      "callcore",
		Version:      version.Version,
	})

	logger.Info().
		Str("version", version.Version).
		Str("git_commit", version.GitCommit).
		Str("platform", version.Platform).
		Msg("starting callcore orchestrator")

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker(logger, version.Version)

	repo, closeRepo := mustRepository(cfg, logger, health)
	defer closeRepo()

	br := mustBroker(cfg, logger, health)
	var closeBroker func() error
	if closer, ok := br.(interface{ Close() error }); ok {
		closeBroker = closer.Close
	}

	jwtManager, err := auth.NewJWTManager(cfg.Security.JWTSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create JWT manager")
	}

	adapter := speech.NewFromConfig(cfg.Speech, logger)
	rt := router.New(cfg.Router, adapter, mustTTSCache(cfg, logger, health), logger)
	manager := orchestrator.NewManager(cfg.Orchestrator, cfg.Segmenter, adapter, rt, repo, br, logger)
	handler := orchestrator.NewHandler(manager, jwtManager, logger)

	apiServer := api.New(cfg.Server, handler, health, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("callcore orchestrator started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error, initiating shutdown")
	}

	logger.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("starting graceful shutdown — draining in-flight requests")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error — some requests may not have completed")
	} else {
		logger.Info().Msg("HTTP server drained and stopped")
	}

	if closeBroker != nil {
		if err := closeBroker(); err != nil {
			logger.Error().Err(err).Msg("broker close error")
		} else {
			logger.Info().Msg("broker connection closed")
		}
	}

	logger.Info().Msg("callcore orchestrator shut down successfully")
}

// mustRepository wires the orchestrator.Repository implementation named by
// cfg.Database.Backend, running migrations and registering a health check
// for the backends that need one. It exits the process on failure for any
// backend but "memory".
func mustRepository(cfg *config.Config, logger zerolog.Logger, health *observability.HealthChecker) (orchestrator.Repository, func()) {
	switch cfg.Database.Backend {
	case "postgres":
		var pgDB *postgres.DB
		var err error
		const maxRetries = 5
		for attempt := 1; attempt <= maxRetries; attempt++ {
			pgDB, err = postgres.New(cfg.Database.Postgres, logger)
			if err == nil {
				break
			}
			if attempt == maxRetries {
				logger.Fatal().Err(err).Int("attempts", maxRetries).Msg("postgresql unavailable after retries — cannot start without database")
			}
			wait := time.Duration(attempt) * 2 * time.Second
			logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("postgresql unavailable — retrying")
			time.Sleep(wait)
		}

		if err := postgres.NewMigrator(pgDB, logger).Run(context.Background()); err != nil {
			logger.Fatal().Err(err).Msg("failed to run postgresql migrations")
		}
		health.RegisterCheck("postgresql", observability.DatabaseHealthCheck(pgDB.Ping))
		logger.Info().Msg("postgresql repository initialized and migrations applied")

		return postgres.NewRepository(pgDB, logger), func() { pgDB.Close() }

	case "sqlite":
		db, err := sqlite.New(cfg.Database.SQLite, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open sqlite database")
		}
		if err := sqlite.NewMigrator(db, logger).Migrate(context.Background()); err != nil {
			logger.Fatal().Err(err).Msg("failed to run sqlite migrations")
		}
		health.RegisterCheck("sqlite", observability.DatabaseHealthCheck(db.Ping))
		logger.Info().Msg("sqlite repository initialized and migrations applied")

		return sqlite.NewRepository(db, logger), func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("sqlite close error")
			}
		}

	default:
		logger.Info().Msg("using in-memory repository — call history does not survive a restart")
		return memory.New(), func() {}
	}
}

// mustTTSCache wires a Redis-backed tier onto the local LRU when the
// deployment's shared cache is enabled, so synthesized audio is reusable
// across orchestrator processes. Redis unavailability degrades to a
// local-only cache rather than failing startup.
func mustTTSCache(cfg *config.Config, logger zerolog.Logger, health *observability.HealthChecker) *ttscache.Cache {
	if !cfg.Cache.Redis.Enabled {
		return ttscache.New(cfg.Cache.TTS.MaxEntries, cfg.Cache.TTS.TTL, logger)
	}

	rdb, err := redisstore.New(cfg.Cache.Redis, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable — tts cache will not share across processes")
		return ttscache.New(cfg.Cache.TTS.MaxEntries, cfg.Cache.TTS.TTL, logger)
	}

	health.RegisterCheck("redis_ttscache", observability.RedisHealthCheck(rdb.Ping))
	logger.Info().Msg("redis tts cache tier initialized")
	return ttscache.NewWithRedis(cfg.Cache.TTS.MaxEntries, cfg.Cache.TTS.TTL, rdb, logger)
}

// mustBroker wires an InProcess broker by default, or a Redis-backed one
// when the deployment needs delivery to span more than one orchestrator
// process. Redis is optional: a dial failure degrades to single-process
// delivery rather than failing startup.
func mustBroker(cfg *config.Config, logger zerolog.Logger, health *observability.HealthChecker) broker.Broker {
	if !cfg.Cache.Redis.Enabled {
		return broker.NewInProcess()
	}

	rb, err := broker.NewRedis(cfg.Cache.Redis, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("redis broker unavailable — falling back to in-process delivery only")
		return broker.NewInProcess()
	}

	health.RegisterCheck("broker_redis", observability.RedisHealthCheck(rb.Ping))
	logger.Info().Msg("redis broker initialized")
	return rb
}
