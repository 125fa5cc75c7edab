package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "callcore", cfg.App.Name)
	assert.Equal(t, "dev", cfg.App.Environment)
	assert.Equal(t, "memory", cfg.Database.Backend)
	assert.True(t, cfg.Database.SQLite.WALMode)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid default config",
			setup:   func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid environment",
			setup: func(c *Config) {
				c.App.Environment = "invalid"
			},
			wantErr: true,
			errMsg:  "invalid environment",
		},
		{
			name: "empty app name",
			setup: func(c *Config) {
				c.App.Name = ""
			},
			wantErr: true,
			errMsg:  "app name cannot be empty",
		},
		{
			name: "invalid port",
			setup: func(c *Config) {
				c.Server.Port = 99999
			},
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name: "invalid database backend",
			setup: func(c *Config) {
				c.Database.Backend = "mongo"
			},
			wantErr: true,
			errMsg:  "invalid database backend",
		},
		{
			name: "sqlite backend requires a path",
			setup: func(c *Config) {
				c.Database.Backend = "sqlite"
				c.Database.SQLite.Path = ""
			},
			wantErr: true,
			errMsg:  "sqlite database path cannot be empty",
		},
		{
			name: "max participants out of range",
			setup: func(c *Config) {
				c.Orchestrator.MaxParticipants = 5
			},
			wantErr: true,
			errMsg:  "invalid max participants",
		},
		{
			name: "invalid segmenter timing",
			setup: func(c *Config) {
				c.Segmenter.MaxUtteranceMS = c.Segmenter.SilenceThresholdMS
			},
			wantErr: true,
			errMsg:  "invalid segmenter timing",
		},
		{
			name: "invalid log level",
			setup: func(c *Config) {
				c.Logging.Level = "invalid"
			},
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name: "short JWT secret in production",
			setup: func(c *Config) {
				c.App.Environment = "production"
				c.Security.JWTSecret = "short"
			},
			wantErr: true,
			errMsg:  "JWT secret must be at least 32 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.setup(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	cfg := Default()
	cfg.App.Environment = "staging"
	cfg.Server.Port = 9090
	cfg.Logging.Level = "debug"

	err := cfg.Save(configPath)
	require.NoError(t, err)

	loaded, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "staging", loaded.App.Environment)
	assert.Equal(t, 9090, loaded.Server.Port)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("CALLCORE_ENV", "staging")
	os.Setenv("CALLCORE_SERVER_HOST", "192.168.1.100")
	os.Setenv("CALLCORE_DB_BACKEND", "sqlite")
	os.Setenv("LOG_LEVEL", "warn")
	defer func() {
		os.Unsetenv("CALLCORE_ENV")
		os.Unsetenv("CALLCORE_SERVER_HOST")
		os.Unsetenv("CALLCORE_DB_BACKEND")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg := Default()
	cfg.loadFromEnv()

	assert.Equal(t, "staging", cfg.App.Environment)
	assert.Equal(t, "192.168.1.100", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Database.Backend)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	original := Default()
	original.Orchestrator.MaxParticipants = 3
	original.Segmenter.RMSThreshold = 450

	err := original.Save(configPath)
	require.NoError(t, err)

	_, err = os.Stat(configPath)
	require.NoError(t, err)

	loaded, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3, loaded.Orchestrator.MaxParticipants)
	assert.Equal(t, 450.0, loaded.Segmenter.RMSThreshold)
}

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"error", "error"},
		{"fatal", "fatal"},
		{"invalid", "info"}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Default()
			cfg.Logging.Level = tt.level
			level := cfg.GetLogLevel()
			assert.Equal(t, tt.expected, level.String())
		})
	}
}

func TestIsProduction(t *testing.T) {
	cfg := Default()

	cfg.App.Environment = "production"
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())

	cfg.App.Environment = "dev"
	assert.False(t, cfg.IsProduction())
	assert.True(t, cfg.IsDevelopment())
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Postgres.Port = 5432
	cfg.Database.Postgres.User = "testuser"
	cfg.Database.Postgres.Password = "testpass"
	cfg.Database.Postgres.Database = "testdb"
	cfg.Database.Postgres.SSLMode = "disable"

	dsn := cfg.GetDatabaseDSN()
	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, dsn)
}

func TestGetRedisDSN(t *testing.T) {
	cfg := Default()
	cfg.Cache.Redis.Host = "localhost"
	cfg.Cache.Redis.Port = 6379

	dsn := cfg.GetRedisDSN()
	assert.Equal(t, "localhost:6379", dsn)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Default()

	// Orchestrator/segmenter defaults follow the call-core architecture.
	assert.Equal(t, 4, cfg.Orchestrator.MaxParticipants)
	assert.Equal(t, 64, cfg.Orchestrator.OutboundQueueSize)
	assert.Equal(t, 300.0, cfg.Segmenter.RMSThreshold)
	assert.Equal(t, 400, cfg.Segmenter.SilenceThresholdMS)
	assert.True(t, cfg.Router.InterimTranslationEnabled)

	// Security defaults.
	assert.Equal(t, 15*time.Minute, cfg.Security.JWTAccessExpiry)
	assert.Equal(t, 30*24*time.Hour, cfg.Security.JWTRefreshExpiry)
	assert.True(t, cfg.Security.RateLimitEnabled)

	// Cache defaults.
	assert.Equal(t, 256, cfg.Cache.TTS.MaxEntries)
	assert.Equal(t, 1*time.Hour, cfg.Cache.TTS.TTL)
	assert.False(t, cfg.Cache.Redis.Enabled)
}

func TestLoadNonExistentFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nonexistent.json")

	// Should create default config if file doesn't exist.
	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	_, err = os.Stat(configPath)
	require.NoError(t, err)
}

func TestDefaultDataDirExists(t *testing.T) {
	dataDir := getDefaultDataDir()
	assert.NotEmpty(t, dataDir)
	assert.Contains(t, dataDir, "callcore")
}

func TestDefaultConfigDirExists(t *testing.T) {
	configDir := getDefaultConfigDir()
	assert.NotEmpty(t, configDir)
	assert.Contains(t, configDir, "callcore")
}
