package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY,
	file_name TEXT UNIQUE NOT NULL,
	request_id TEXT NOT NULL,
	part_type TEXT NOT NULL,
	local_name TEXT NOT NULL,
	size INTEGER NOT NULL,
	downloaded_at DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'downloaded'
);

CREATE INDEX IF NOT EXISTS downloads_request_id ON downloads (request_id);

CREATE TABLE IF NOT EXISTS cancellations (
	id INTEGER PRIMARY KEY,
	request_id TEXT UNIQUE NOT NULL,
	cancelled_at DATETIME NOT NULL
);`

// InitDB opens the SQLite database at path and creates the ledger tables if
// they don't exist.
func InitDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// tasks record completions concurrently; one connection serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
