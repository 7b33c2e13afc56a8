// Package connector implements the cross-database connector:
// promoting segments into events in a second, main SQLite store,
// duplicate detection by token-set Jaccard similarity over the
// segment/event text, bidirectional sync, and reconciliation of
// orphaned promotions.
//
// Grounded on original_source's main_db_connector.py
// (sync_sources/sync_articles_to_documents, generalized here to
// sync_to_main/sync_from_main) and on sqlstore's db.go for the
// single-connection-pool SQLite open pattern — the main store is a
// second database file opened the same way, not a second schema
// inside the repository's own file. Each store treats the other as
// opaque; this package is the one place that holds both handles.
package connector

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

// OpenMainStore opens (creating if absent) the main events database.
func OpenMainStore(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "create main store directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open main store database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperr.Wrap(apperr.Internal, "apply main store pragma", err)
		}
	}

	if err := mainSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
