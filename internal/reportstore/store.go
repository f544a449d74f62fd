package reportstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aleister1102/codetriage/internal/common"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store persists runs, generations, reports and review statuses. It is the
// sole shared mutable resource of the engine: all mutation funnels through
// it and committed generations are immutable afterwards.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// StoreBuilder provides a fluent interface for creating a Store
type StoreBuilder struct {
	databasePath string
	logger       zerolog.Logger
}

// NewStoreBuilder creates a new builder
func NewStoreBuilder(logger zerolog.Logger) *StoreBuilder {
	return &StoreBuilder{
		logger: logger.With().Str("component", "ReportStore").Logger(),
	}
}

// WithDatabasePath sets the SQLite database file path
func (b *StoreBuilder) WithDatabasePath(path string) *StoreBuilder {
	b.databasePath = path
	return b
}

// Build opens the database, verifies the schema version and applies any
// pending migrations.
func (b *StoreBuilder) Build() (*Store, error) {
	if b.databasePath == "" {
		return nil, common.NewValidationError("database_path", b.databasePath, "database path cannot be empty")
	}

	dbDir := filepath.Dir(b.databasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		b.logger.Error().Err(err).Str("directory", dbDir).Msg("Failed to create database directory")
		return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}

	dbInstance, err := sql.Open("sqlite", b.databasePath)
	if err != nil {
		b.logger.Error().Err(err).Str("db_path", b.databasePath).Msg("Failed to open report database")
		return nil, fmt.Errorf("sql.Open failed for %s: %w", b.databasePath, err)
	}

	// The modernc driver serializes writes; a single connection keeps
	// database/sql from handing concurrent writers a locked database.
	dbInstance.SetMaxOpenConns(1)

	store := &Store{
		db:     dbInstance,
		logger: b.logger,
	}

	if err := store.initSchema(); err != nil {
		store.Close()
		b.logger.Error().Err(err).Msg("Failed to initialize database schema")
		return nil, err
	}

	b.logger.Info().Str("db_path", b.databasePath).Msg("Report store initialized and schema verified")
	return store, nil
}

// NewStore opens a report store using builder pattern
func NewStore(databasePath string, logger zerolog.Logger) (*Store, error) {
	return NewStoreBuilder(logger).WithDatabasePath(databasePath).Build()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initSchema creates the schema on a fresh database or migrates an
// existing one forward. A database written by a newer binary fails with
// ErrSchemaVersionMismatch instead of being touched.
func (s *Store) initSchema() error {
	if _, err := s.db.Exec(initialSchema); err != nil {
		return common.WrapError(err, "failed to create base schema")
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}

	if version > CurrentSchemaVersion {
		return fmt.Errorf("%w: database at version %d, binary supports %d",
			ErrSchemaVersionMismatch, version, CurrentSchemaVersion)
	}

	for v := version; v < CurrentSchemaVersion; v++ {
		stmts, ok := migrations[v]
		if !ok {
			return fmt.Errorf("%w: no migration path from version %d", ErrSchemaVersionMismatch, v)
		}
		s.logger.Info().Int("from", v).Int("to", v+1).Msg("Applying schema migration")
		for _, stmt := range stmts {
			if _, err := s.db.Exec(stmt); err != nil {
				return common.WrapError(err, fmt.Sprintf("migration %d -> %d failed", v, v+1))
			}
		}
		if _, err := s.db.Exec(`UPDATE schema_meta SET version = ? WHERE id = 1`, v+1); err != nil {
			return common.WrapError(err, "failed to record schema version")
		}
	}

	return nil
}

// schemaVersion reads the stored schema version, initializing it for a
// fresh database.
func (s *Store) schemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_meta WHERE id = 1`).Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := s.db.Exec(`INSERT INTO schema_meta (id, version) VALUES (1, ?)`, CurrentSchemaVersion); err != nil {
			return 0, common.WrapError(err, "failed to initialize schema version")
		}
		return CurrentSchemaVersion, nil
	}
	if err != nil {
		return 0, common.WrapError(err, "failed to read schema version")
	}
	return version, nil
}

// inTransaction runs fn inside a transaction, rolling back on error.
func (s *Store) inTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "failed to commit transaction")
	}
	return nil
}
