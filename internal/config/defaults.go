package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Default returns a Config with sensible default values.
func Default() *Config {
	dataDir := getDefaultDataDir()
	configDir := getDefaultConfigDir()

	return &Config{
		App: AppConfig{
			Name:        "callcore",
			Version:     "0.1.0",
			Environment: "dev",
			DataDir:     dataDir,
			ConfigDir:   configDir,
		},

		Database: DatabaseConfig{
			Backend: "memory",
			SQLite: SQLiteConfig{
				Path:            filepath.Join(dataDir, "callcore.db"),
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				WALMode:         true,
				ForeignKeys:     true,
				BusyTimeout:     5 * time.Second,
			},
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "callcore",
				User:            "callcore",
				Password:        "",
				SSLMode:         "prefer",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
			},
		},

		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			TLSEnabled:      false,
			TLSCertFile:     "",
			TLSKeyFile:      "",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:5173"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type"},
			},
		},

		Segmenter: SegmenterConfig{
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

		Router: RouterConfig{
			DedupTTL:                  30 * time.Second,
			ContextWindow:             10,
			InterimTranslationEnabled: true,
		},

		Speech: SpeechConfig{
			STTURL:     "https://api.openai.com/v1/audio/transcriptions",
			STTAPIKey:  "",
			STTModel:   "whisper-1",
			STTTimeout: 10 * time.Second,

			MTURL:            "https://personaplex.nvidia.com/api/v1",
			MTAPIKey:         "",
			MTTimeout:        3 * time.Second,
			CircuitBreaker:   true,
			FailureThreshold: 5,
			MaxLatency:       500 * time.Millisecond,

			TTSURL:         "https://api.openai.com/v1/audio/speech",
			TTSAPIKey:      "",
			TTSTimeout:     5 * time.Second,
			DefaultVoice:   "default",
			UseMockAdapter: true,
		},

		Orchestrator: OrchestratorConfig{
			MaxParticipants:       4,
			MaxConcurrentSessions: 0,
			OutboundQueueSize:     64,
			PingInterval:          15 * time.Second,
			PongWait:              30 * time.Second,
			WriteWait:             10 * time.Second,
			TeardownGrace:         1 * time.Second,
		},

		Security: SecurityConfig{
			JWTSecret:        generateDefaultJWTSecret(),
			JWTAccessExpiry:  15 * time.Minute,
			JWTRefreshExpiry: 30 * 24 * time.Hour,

			RateLimitEnabled: true,
			RateLimitAPI:     60,

			EncryptLocalDB: false,
		},

		Logging: LoggingConfig{
			Level:        "info",
			Format:       "json",
			OutputPath:   "stdout",
			ErrorPath:    "stderr",
			EnableCaller: false,
			EnableStack:  true,
		},

		Cache: CacheConfig{
			TTS: TTSCacheConfig{
				MaxEntries: 256,
				TTL:        1 * time.Hour,
			},
			Redis: RedisConfig{
				Enabled:      false,
				Host:         "localhost",
				Port:         6379,
				Password:     "",
				DB:           0,
				MaxRetries:   3,
				PoolSize:     10,
				MinIdleConns: 5,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
	}
}

// getDefaultDataDir returns the default data directory based on OS.
func getDefaultDataDir() string {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		baseDir = filepath.Join(os.Getenv("HOME"), "Library", "Application Support")
	default: // linux and others
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("HOME"), ".local", "share")
		}
	}

	return filepath.Join(baseDir, "callcore")
}

// getDefaultConfigDir returns the default config directory based on OS.
func getDefaultConfigDir() string {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		baseDir = filepath.Join(os.Getenv("HOME"), "Library", "Application Support")
	default: // linux and others
		baseDir = os.Getenv("XDG_CONFIG_HOME")
		if baseDir == "" {
			baseDir = filepath.Join(os.Getenv("HOME"), ".config")
		}
	}

	return filepath.Join(baseDir, "callcore")
}

// generateDefaultJWTSecret generates a default JWT secret for development.
// WARNING: in production this MUST be overridden with a secure random secret.
func generateDefaultJWTSecret() string {
	return "dev-secret-change-me-in-production-min-32-chars-required"
}
