package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbridge/callcore/internal/config"
	"github.com/voxbridge/callcore/internal/observability"
)

// getTestPostgresConfig returns a PostgresConfig suitable for
// integration tests, reading connection details from environment
// variables with sensible defaults.
func getTestPostgresConfig() config.PostgresConfig {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "callcore"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		database = "callcore_test"
	}
	sslMode := os.Getenv("POSTGRES_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	return config.PostgresConfig{
		Host:            host,
		Port:            5432,
		Database:        database,
		User:            user,
		Password:        password,
		SSLMode:         sslMode,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("POSTGRES_HOST") == "" {
		t.Skip("skipping integration test: POSTGRES_HOST not set")
	}
}

func TestIntegrationNew(t *testing.T) {
	skipIfNoPostgres(t)

	logger := observability.NewNopLogger()
	db, err := New(getTestPostgresConfig(), logger)
	require.NoError(t, err)
	defer db.Close()

	assert.NotNil(t, db.Pool())
}

func TestIntegrationPing(t *testing.T) {
	skipIfNoPostgres(t)

	logger := observability.NewNopLogger()
	db, err := New(getTestPostgresConfig(), logger)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, db.Ping(ctx))
}
