package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

const memoryPath = ":memory:"

// Open returns a SQLite handle with the vec extension loaded and WAL enabled.
// Each store runs its own migrations against the returned handle.
func Open(path string) (*sql.DB, error) {
	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// every pooled connection to :memory: would see its own empty database
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenMemory is shorthand for an in-memory database, used by tests and the
// admin CLI's dry runs.
func OpenMemory() (*sql.DB, error) {
	return Open(memoryPath)
}

// VecVersion reports the loaded sqlite-vec version.
func VecVersion(db *sql.DB) (string, error) {
	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}
