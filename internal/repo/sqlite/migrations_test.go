package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbridge/callcore/internal/observability"
)

func TestMigrateAppliesInitMigration(t *testing.T) {
	logger := observability.NewNopLogger()
	db, err := New(testConfig(t), logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	migrator := NewMigrator(db, logger)

	require.NoError(t, migrator.Migrate(ctx))

	status, err := migrator.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, status)
	assert.Equal(t, 1, status[0].Version)
	assert.Equal(t, "init", status[0].Name)

	// Running again is a no-op.
	require.NoError(t, migrator.Migrate(ctx))
	status, err = migrator.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status, 1)
}
