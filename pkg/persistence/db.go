// Package persistence provides SQLite-based storage for jobs, stage audit
// records, and the invocation throttle lease.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // CGo-free SQLite driver

	"autoninja/pkg/logx"
)

// Open opens (creating if needed) the supervisor database at dbPath with WAL
// mode and a busy timeout, and brings the schema up to date.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logx.NewLogger("persistence").Info("database initialized: %s", dbPath)
	return db, nil
}
