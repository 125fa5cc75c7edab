package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration represents a single database migration.
type Migration struct {
	Version   int
	Name      string
	SQL       string
	AppliedAt time.Time
}

// Migrator handles database migrations.
type Migrator struct {
	db     *DB
	logger zerolog.Logger
}

// NewMigrator creates a new migration manager.
func NewMigrator(db *DB, logger zerolog.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// Migrate runs all pending migrations.
func (m *Migrator) Migrate(ctx context.Context) error {
	m.logger.Info().Msg("starting database migration")

	if err := m.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	pending := m.filterPendingMigrations(migrations, applied)
	if len(pending) == 0 {
		m.logger.Info().Msg("no pending migrations")
		return nil
	}

	m.logger.Info().Int("pending_count", len(pending)).Msg("found pending migrations")

	for _, migration := range pending {
		if err := m.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	m.logger.Info().Int("applied_count", len(pending)).Msg("all migrations applied successfully")
	return nil
}

// Status returns the current migration status.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure migrations table: %w", err)
	}
	return m.getAppliedMigrations(ctx)
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *Migrator) getAppliedMigrations(ctx context.Context) ([]Migration, error) {
	query := "SELECT version, name, applied_at FROM schema_migrations ORDER BY version ASC"

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var migration Migration
		if err := rows.Scan(&migration.Version, &migration.Name, &migration.AppliedAt); err != nil {
			return nil, err
		}
		migrations = append(migrations, migration)
	}
	return migrations, rows.Err()
}

func (m *Migrator) loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name := parseMigrationFilename(entry.Name())
		if version == 0 {
			m.logger.Warn().Str("filename", entry.Name()).Msg("skipping invalid migration filename")
			continue
		}

		sql, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(sql)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// parseMigrationFilename extracts version and name from a migration
// filename. Expected format: 001_init.sql -> version=1, name="init".
func parseMigrationFilename(filename string) (int, string) {
	name := strings.TrimSuffix(filename, ".sql")
	parts := strings.SplitN(name, "_", 2)
	if len(parts) != 2 {
		return 0, ""
	}
	var version int
	if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
		return 0, ""
	}
	return version, parts[1]
}

func (m *Migrator) filterPendingMigrations(all, applied []Migration) []Migration {
	appliedVersions := make(map[int]bool, len(applied))
	for _, migration := range applied {
		appliedVersions[migration.Version] = true
	}

	var pending []Migration
	for _, migration := range all {
		if !appliedVersions[migration.Version] {
			pending = append(pending, migration)
		}
	}
	return pending
}

func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	m.logger.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("applying migration")
	start := time.Now()

	err := m.db.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}

		insertQuery := "INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)"
		if _, err := tx.ExecContext(ctx, insertQuery, migration.Version, migration.Name, time.Now()); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})

	if err != nil {
		m.logger.Error().Err(err).Int("version", migration.Version).Str("name", migration.Name).
			Dur("duration_ms", time.Since(start)).Msg("migration failed")
		return err
	}

	m.logger.Info().Int("version", migration.Version).Str("name", migration.Name).
		Dur("duration_ms", time.Since(start)).Msg("migration applied successfully")
	return nil
}
