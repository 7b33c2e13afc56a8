// Package searchindex implements the FTS5-backed search index:
// index/delete/reindex of documents sourced from either
// the repository store or the main (cross-referenced) database, a
// query parser supporting AND/OR/quoted phrases, fuzzy matching, and
// facet counts.
//
// FTS5 MATCH queries back the query parser and BM25 ordering; fuzzy
// matching is layered on top via github.com/agnivade/levenshtein,
// since FTS5 has no fuzzy vocabulary of its own.
package searchindex

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

// Open opens (creating if absent) the search index's own SQLite
// database, separate from the repository store's relational catalog
// so reindexing never contends with page/segment writes.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "create search index directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open search index database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperr.Wrap(apperr.Internal, "apply search index pragma", err)
		}
	}

	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS search_documents USING fts5(
			source, source_id, doc_type, title, body, date, facets,
			tokenize='porter unicode61'
		)
	`); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.Internal, "create search_documents table", err)
	}

	return db, nil
}
