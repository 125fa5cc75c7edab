package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbridge/callcore/internal/observability"
)

func TestIntegrationMigrationRun(t *testing.T) {
	skipIfNoPostgres(t)

	logger := observability.NewNopLogger()
	db, err := New(getTestPostgresConfig(), logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	_, _ = db.pool.Exec(ctx, "DROP TABLE IF EXISTS session_participants, call_sessions, schema_migrations CASCADE")

	migrator := NewMigrator(db, logger)

	require.NoError(t, migrator.Run(ctx))

	status, err := migrator.Status(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, status)
	assert.Equal(t, 1, status[0].Version)
	assert.Equal(t, "init", status[0].Name)

	require.NoError(t, migrator.Run(ctx))

	_, _ = db.pool.Exec(ctx, "DROP TABLE IF EXISTS session_participants, call_sessions, schema_migrations CASCADE")
}
