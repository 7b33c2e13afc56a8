// Package sqlstore implements the repository store's relational
// index over pages, segments, and articles using modernc.org/sqlite
// (pure Go, no CGO) and github.com/Masterminds/squirrel for building
// the predicate queries search_pages needs.
//
// WAL mode, a foreign_keys pragma on every connection, and a
// versioned schema_migrations table keep the store self-migrating;
// repository methods close and check rows explicitly, wrapping
// failures with apperr instead of bare fmt.Errorf.
package sqlstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

// Open opens (creating if absent) a SQLite database at path with the
// pragmas the repository store needs and applies any pending schema
// migrations.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open database", err)
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
			return nil, apperr.Wrap(apperr.Internal, fmt.Sprintf("apply pragma %q", pragma), err)
		}
	}

	migrator := NewMigrator(db)
	if err := migrator.Up(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.Internal, "apply migrations", err)
	}

	return db, nil
}
