package database

import (
	"fmt"
	"os"
	"path/filepath"

	"cvn-go/internal/config"
)

// NewDatabase creates a database based on the provided configuration.
// Supported types: "sqlite" (file-backed, migration-managed) and
// "memory" (ephemeral, schema applied directly; used by tests and dry runs).
func NewDatabase(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite database requires data_dir")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "cvn.db"))
	case "memory":
		return NewMemoryDatabase()
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// NewMemoryDatabase creates an in-memory database with the current schema
// already applied. Migration status checks are skipped for these.
func NewMemoryDatabase() (*SQLiteDatabase, error) {
	db, err := OpenConnection(":memory:")
	if err != nil {
		return nil, err
	}

	// Every pool connection to ":memory:" is a separate empty database,
	// so the pool must never grow past the connection holding the schema.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := NewSQLiteDatabaseFromDB(db)
	s.path = ":memory:"
	return s, nil
}
