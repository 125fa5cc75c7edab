// Package sqlite is the SQLite-backed orchestrator.Repository, for
// single-instance / on-prem deployments that want durable call history
// without standing up a separate database server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/voxbridge/callcore/internal/config"
)

// DB wraps a SQLite database connection with additional functionality.
type DB struct {
	conn   *sql.DB
	path   string
	logger zerolog.Logger
}

// New creates a new SQLite database connection.
func New(cfg config.SQLiteConfig, logger zerolog.Logger) (*DB, error) {
	logger.Info().
		Str("path", cfg.Path).
		Bool("wal_mode", cfg.WALMode).
		Bool("foreign_keys", cfg.ForeignKeys).
		Msg("initializing sqlite database")

	dsn := buildDSN(cfg)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, path: cfg.Path, logger: logger}

	if err := db.applyPragmas(cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	logger.Info().Msg("sqlite database initialized successfully")
	return db, nil
}

func buildDSN(cfg config.SQLiteConfig) string {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc", cfg.Path)
	if cfg.BusyTimeout > 0 {
		dsn += fmt.Sprintf("&_busy_timeout=%d", cfg.BusyTimeout.Milliseconds())
	}
	return dsn
}

func (db *DB) applyPragmas(cfg config.SQLiteConfig) error {
	pragmas := []string{}

	if cfg.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	} else {
		pragmas = append(pragmas, "PRAGMA synchronous=FULL")
	}

	if cfg.ForeignKeys {
		pragmas = append(pragmas, "PRAGMA foreign_keys=ON")
	}

	pragmas = append(pragmas,
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=30000000000",
		"PRAGMA page_size=4096",
		"PRAGMA cache_size=-64000",
	)

	for _, pragma := range pragmas {
		if _, err := db.conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
		db.logger.Debug().Str("pragma", pragma).Msg("pragma applied")
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.logger.Info().Msg("closing sqlite database")
	return db.conn.Close()
}

// Conn returns the underlying *sql.DB connection.
func (db *DB) Conn() *sql.DB { return db.conn }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error { return db.conn.PingContext(ctx) }

// Stats returns database statistics.
func (db *DB) Stats() sql.DBStats { return db.conn.Stats() }

// BeginTx starts a new transaction.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, opts)
}

// ExecContext executes a query without returning any rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := db.conn.ExecContext(ctx, query, args...)
	db.logger.Debug().Str("query", query).Dur("duration_ms", time.Since(start)).Err(err).Msg("executed query")
	return result, err
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	db.logger.Debug().Str("query", query).Dur("duration_ms", time.Since(start)).Err(err).Msg("executed query")
	return rows, err
}

// QueryRowContext executes a query that returns at most one row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, query, args...)
	db.logger.Debug().Str("query", query).Dur("duration_ms", time.Since(start)).Msg("executed query")
	return row
}

// Vacuum performs a VACUUM operation to reclaim space.
func (db *DB) Vacuum(ctx context.Context) error {
	db.logger.Info().Msg("running vacuum on database")
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, "VACUUM")
	if err != nil {
		db.logger.Error().Err(err).Dur("duration_ms", time.Since(start)).Msg("vacuum failed")
		return err
	}
	db.logger.Info().Dur("duration_ms", time.Since(start)).Msg("vacuum completed successfully")
	return nil
}

// Backup creates a backup of the database to the specified path.
func (db *DB) Backup(ctx context.Context, destPath string) error {
	db.logger.Info().Str("dest_path", destPath).Msg("creating database backup")
	start := time.Now()
	destDir := filepath.Dir(destPath)
	query := fmt.Sprintf("VACUUM INTO '%s'", destPath)

	_, err := db.conn.ExecContext(ctx, query)
	if err != nil {
		db.logger.Error().Err(err).Str("dest_path", destPath).Dur("duration_ms", time.Since(start)).Msg("backup failed")
		return fmt.Errorf("backup failed: %w", err)
	}
	db.logger.Info().Str("dest_path", destPath).Str("dest_dir", destDir).Dur("duration_ms", time.Since(start)).Msg("backup completed successfully")
	return nil
}

// CheckIntegrity runs PRAGMA integrity_check.
func (db *DB) CheckIntegrity(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("integrity check failed: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// InTransaction executes fn within a transaction, rolling back on error
// or panic and committing on success.
func (db *DB) InTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
