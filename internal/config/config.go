package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Config represents the complete application configuration.
type Config struct {
	// Application settings
	App AppConfig `json:"app"`

	// Database configuration
	Database DatabaseConfig `json:"database"`

	// Server configuration (WebSocket + HTTP)
	Server ServerConfig `json:"server"`

	// Segmenter configuration (VAD + utterance cutting)
	Segmenter SegmenterConfig `json:"segmenter"`

	// Router configuration (translation fan-out, dedup, context)
	Router RouterConfig `json:"router"`

	// Speech configuration (STT/MT/TTS adapters)
	Speech SpeechConfig `json:"speech"`

	// Orchestrator configuration (session/participant lifecycle)
	Orchestrator OrchestratorConfig `json:"orchestrator"`

	// Security configuration
	Security SecurityConfig `json:"security"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Cache configuration
	Cache CacheConfig `json:"cache"`
}

// AppConfig contains general application settings.
type AppConfig struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"` // dev, staging, production
	DataDir     string `json:"data_dir"`    // Directory for user data
	ConfigDir   string `json:"config_dir"`  // Directory for config files
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// SQLite configuration (single-process / on-prem deployments)
	SQLite SQLiteConfig `json:"sqlite"`

	// PostgreSQL configuration (clustered deployments)
	Postgres PostgresConfig `json:"postgres"`

	// Backend selects which repository implementation is wired: "sqlite",
	// "postgres", or "memory" (for tests).
	Backend string `json:"backend"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path            string        `json:"path"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	WALMode         bool          `json:"wal_mode"`
	ForeignKeys     bool          `json:"foreign_keys"`
	BusyTimeout     time.Duration `json:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL-specific settings.
type PostgresConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// ServerConfig contains HTTP/WebSocket server settings.
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	TLSEnabled      bool          `json:"tls_enabled"`
	TLSCertFile     string        `json:"tls_cert_file"`
	TLSKeyFile      string        `json:"tls_key_file"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	CORS            CORSConfig    `json:"cors"`
	RateLimitRPS    int           `json:"rate_limit_rps"` // API requests per second per client IP; <= 0 means 100
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	Enabled        bool     `json:"enabled"`
	AllowedOrigins []string `json:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers"`
}

// SegmenterConfig tunes the per-(session,speaker) voice-activity
// detector and utterance cutter.
type SegmenterConfig struct {
	RMSThreshold       float64       `json:"rms_threshold"`        // int16 RMS floor for "voice" (default 300)
	SilenceThresholdMS int           `json:"silence_threshold_ms"` // trailing silence before finalize (default 400)
	MaxUtteranceMS      int          `json:"max_utterance_ms"`     // force-finalize ceiling (default 5000)
	MinSpeechMS        int           `json:"min_speech_ms"`        // default 100; not read: the classifier's 100 ms minimum window is fixed, and shorter windows count as voice
	SpectralWindowMS   int           `json:"spectral_window_ms"`   // sliding window for RMS + spectral ratio (default 400)
	SpeechBandLowHz    float64       `json:"speech_band_low_hz"`   // default 80
	SpeechBandHighHz   float64       `json:"speech_band_high_hz"`  // default 4000
	NoiseBandHz        float64       `json:"noise_band_hz"`        // default 5000
	SpectralRatio      float64       `json:"spectral_ratio"`       // speech-band energy must exceed noise-band by this factor (default 2.0)
	InboundQueueSize   int           `json:"inbound_queue_size"`   // frames buffered per speaker (default 32, ~3.2s)
}

// RouterConfig tunes translation fan-out, ordering, and caching.
type RouterConfig struct {
	DedupTTL                  time.Duration `json:"dedup_ttl"`                   // suppress duplicate (session,speaker,seq) deliveries (default 30s)
	ContextWindow             int           `json:"context_window"`              // rolling finalized utterances retained per speaker (default 10)
	InterimTranslationEnabled bool          `json:"interim_translation_enabled"` // translate interims per listener, not just finals
}

// SpeechConfig configures the STT/MT/TTS adapters.
type SpeechConfig struct {
	// Recognition (STT)
	STTURL     string        `json:"stt_url"`
	STTAPIKey  string        `json:"stt_api_key"`
	STTModel   string        `json:"stt_model"`
	STTTimeout time.Duration `json:"stt_timeout"` // default 10s

	// Translation (MT)
	MTURL            string        `json:"mt_url"`
	MTAPIKey         string        `json:"mt_api_key"`
	MTTimeout        time.Duration `json:"mt_timeout"` // default 3s
	CircuitBreaker   bool          `json:"circuit_breaker"`
	FailureThreshold int           `json:"failure_threshold"`
	MaxLatency       time.Duration `json:"max_latency"`

	// Synthesis (TTS)
	TTSURL          string        `json:"tts_url"`
	TTSAPIKey       string        `json:"tts_api_key"`
	TTSTimeout      time.Duration `json:"tts_timeout"` // default 5s
	DefaultVoice    string        `json:"default_voice"`
	UseMockAdapter  bool          `json:"use_mock_adapter"` // substitute the deterministic mock for all three legs
}

// OrchestratorConfig tunes session/participant lifecycle and queueing.
type OrchestratorConfig struct {
	MaxParticipants       int           `json:"max_participants"`        // default 4
	MaxConcurrentSessions int           `json:"max_concurrent_sessions"` // 0 = unbounded
	OutboundQueueSize     int           `json:"outbound_queue_size"`     // default 64
	PingInterval          time.Duration `json:"ping_interval"`
	PongWait              time.Duration `json:"pong_wait"`
	WriteWait             time.Duration `json:"write_wait"`
	TeardownGrace         time.Duration `json:"teardown_grace"` // best-effort call_ended send window, default ~1s
}

// TTSCacheConfig tunes the synthesized-audio LRU.
type TTSCacheConfig struct {
	MaxEntries int           `json:"max_entries"` // default 256
	TTL        time.Duration `json:"ttl"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWTSecret        string        `json:"jwt_secret"`
	JWTAccessExpiry  time.Duration `json:"jwt_access_expiry"`
	JWTRefreshExpiry time.Duration `json:"jwt_refresh_expiry"`

	RateLimitEnabled bool `json:"rate_limit_enabled"`
	RateLimitAPI     int  `json:"rate_limit_api"` // per minute; not read by any component (admission throttling uses fixed constants in internal/orchestrator, control messages are not limited)

	EncryptLocalDB bool `json:"encrypt_local_db"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"`
	OutputPath   string `json:"output_path"`
	ErrorPath    string `json:"error_path"`
	EnableCaller bool   `json:"enable_caller"`
	EnableStack  bool   `json:"enable_stack"`
}

// CacheConfig contains cache settings.
type CacheConfig struct {
	TTS   TTSCacheConfig `json:"tts"`
	Redis RedisConfig    `json:"redis"`
}

// RedisConfig contains Redis settings, used both as the cross-process
// session broker and (optionally) as a distributed TTS cache tier.
type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	MaxRetries   int           `json:"max_retries"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// Load loads configuration from file and environment variables.
// Priority: env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				if err := cfg.Save(configPath); err != nil {
					return nil, fmt.Errorf("failed to create default config: %w", err)
				}
			} else {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a JSON file.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv overrides configuration with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("CALLCORE_ENV"); v != "" {
		c.App.Environment = v
	}
	if v := os.Getenv("CALLCORE_DATA_DIR"); v != "" {
		c.App.DataDir = v
	}

	if v := os.Getenv("CALLCORE_DB_BACKEND"); v != "" {
		c.Database.Backend = v
	}
	if v := os.Getenv("CALLCORE_DB_PATH"); v != "" {
		c.Database.SQLite.Path = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		c.Database.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Database.Postgres.Password = v
	}

	if v := os.Getenv("CALLCORE_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}

	if v := os.Getenv("CALLCORE_JWT_SECRET"); v != "" {
		c.Security.JWTSecret = v
	}

	if v := os.Getenv("CALLCORE_STT_URL"); v != "" {
		c.Speech.STTURL = v
	}
	if v := os.Getenv("CALLCORE_MT_URL"); v != "" {
		c.Speech.MTURL = v
	}
	if v := os.Getenv("CALLCORE_MT_API_KEY"); v != "" {
		c.Speech.MTAPIKey = v
	}
	if v := os.Getenv("CALLCORE_TTS_URL"); v != "" {
		c.Speech.TTSURL = v
	}

	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Save saves configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return errors.New("app name cannot be empty")
	}
	if c.App.Environment != "dev" && c.App.Environment != "staging" && c.App.Environment != "production" {
		return fmt.Errorf("invalid environment: %s (must be dev, staging, or production)", c.App.Environment)
	}

	switch c.Database.Backend {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return errors.New("sqlite database path cannot be empty")
		}
	case "postgres":
		if c.Database.Postgres.Database == "" {
			return errors.New("postgres database name cannot be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid database backend: %s (must be sqlite, postgres, or memory)", c.Database.Backend)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Orchestrator.MaxParticipants < 2 || c.Orchestrator.MaxParticipants > 4 {
		return fmt.Errorf("invalid max participants: %d (must be 2-4)", c.Orchestrator.MaxParticipants)
	}

	if c.Segmenter.RMSThreshold <= 0 {
		return fmt.Errorf("invalid rms threshold: %f", c.Segmenter.RMSThreshold)
	}
	if c.Segmenter.SilenceThresholdMS <= 0 || c.Segmenter.MaxUtteranceMS <= c.Segmenter.SilenceThresholdMS {
		return fmt.Errorf("invalid segmenter timing: silence_threshold_ms=%d max_utterance_ms=%d",
			c.Segmenter.SilenceThresholdMS, c.Segmenter.MaxUtteranceMS)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.App.Environment == "production" && len(c.Security.JWTSecret) < 32 {
		return errors.New("JWT secret must be at least 32 characters in production")
	}

	return nil
}

// GetLogLevel returns the zerolog level based on configuration.
func (c *Config) GetLogLevel() zerolog.Level {
	switch c.Logging.Level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "dev"
}

// GetDatabaseDSN returns the PostgreSQL connection string.
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Postgres.Host,
		c.Database.Postgres.Port,
		c.Database.Postgres.User,
		c.Database.Postgres.Password,
		c.Database.Postgres.Database,
		c.Database.Postgres.SSLMode,
	)
}

// GetRedisDSN returns the Redis connection string.
func (c *Config) GetRedisDSN() string {
	return fmt.Sprintf("%s:%d", c.Cache.Redis.Host, c.Cache.Redis.Port)
}
