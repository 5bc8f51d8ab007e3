package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"payrecon/internal/platform/config"
)

// Open connects to the ledger database. URLs may carry a "file:" prefix;
// ":memory:" is accepted for local runs.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL != ":memory:" {
		path, _, _ := strings.Cut(strings.TrimPrefix(cfg.URL, "file:"), "?")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", DSN(cfg.URL))
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 || cfg.URL == ":memory:" {
		// every connection to :memory: is a separate database
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// DSN turns a configured URL into a go-sqlite3 data source name with a busy
// timeout and WAL journaling.
func DSN(url string) string {
	if url == ":memory:" {
		return url
	}

	dsn := strings.TrimPrefix(url, "file:")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_journal_mode=WAL"
}
