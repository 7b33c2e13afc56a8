package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

// Migrator applies ordered, numbered schema migrations and records
// which have run, following memoNexus's schema_migrations bookkeeping.
type Migrator struct {
	db *sql.DB
}

func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{
		version:     1,
		description: "pages, segments, articles, event links",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS publications (
				lccn TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				place_city TEXT,
				place_state TEXT,
				first_issue_date TEXT,
				last_issue_date TEXT,
				language TEXT,
				frequency_of_issue TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS pages (
				page_id TEXT PRIMARY KEY,
				publication_id TEXT NOT NULL,
				issue_date TEXT NOT NULL,
				sequence INTEGER NOT NULL,
				source_system TEXT NOT NULL,
				image_path TEXT NOT NULL,
				ocr_text_path TEXT,
				ocr_hocr_path TEXT,
				ocr_engine_version TEXT,
				status TEXT NOT NULL,
				metadata TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				UNIQUE(publication_id, issue_date, sequence, source_system)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_pages_publication ON pages(publication_id)`,
			`CREATE INDEX IF NOT EXISTS idx_pages_status ON pages(status)`,
			`CREATE INDEX IF NOT EXISTS idx_pages_issue_date ON pages(issue_date)`,
			`CREATE TABLE IF NOT EXISTS segments (
				segment_id TEXT PRIMARY KEY,
				page_id TEXT NOT NULL REFERENCES pages(page_id) ON DELETE CASCADE,
				kind TEXT NOT NULL,
				bbox_x INTEGER NOT NULL,
				bbox_y INTEGER NOT NULL,
				bbox_w INTEGER NOT NULL,
				bbox_h INTEGER NOT NULL,
				text TEXT,
				confidence REAL NOT NULL,
				image_clip_path TEXT,
				status TEXT NOT NULL,
				reviewed_by TEXT,
				reviewed_at INTEGER,
				event_id TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_segments_page ON segments(page_id)`,
			`CREATE INDEX IF NOT EXISTS idx_segments_status ON segments(status)`,
			`CREATE TABLE IF NOT EXISTS articles (
				article_id TEXT PRIMARY KEY,
				page_id TEXT NOT NULL REFERENCES pages(page_id) ON DELETE CASCADE,
				segment_ids TEXT NOT NULL,
				title TEXT,
				text TEXT,
				metadata TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_articles_page ON articles(page_id)`,
			`CREATE TABLE IF NOT EXISTS event_links (
				segment_id TEXT PRIMARY KEY REFERENCES segments(segment_id) ON DELETE CASCADE,
				event_id TEXT NOT NULL,
				content_hash TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_event_links_event ON event_links(event_id)`,
			`CREATE INDEX IF NOT EXISTS idx_event_links_hash ON event_links(content_hash)`,
		},
	},
	{
		version:     2,
		description: "work queue tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS bulk_operations (
				bulk_id TEXT PRIMARY KEY,
				description TEXT,
				operation TEXT NOT NULL,
				status TEXT NOT NULL,
				total INTEGER NOT NULL DEFAULT 0,
				pending INTEGER NOT NULL DEFAULT 0,
				in_progress INTEGER NOT NULL DEFAULT 0,
				succeeded INTEGER NOT NULL DEFAULT 0,
				failed INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL,
				completed_at INTEGER
			)`,
			`CREATE TABLE IF NOT EXISTS tasks (
				task_id TEXT PRIMARY KEY,
				page_id TEXT,
				operation TEXT NOT NULL,
				parameters TEXT,
				priority INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 5,
				last_error TEXT,
				lease_expires_at INTEGER,
				leased_by TEXT,
				bulk_id TEXT REFERENCES bulk_operations(bulk_id) ON DELETE SET NULL,
				next_eligible_at INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_status_eligible ON tasks(status, next_eligible_at)`,
			`CREATE INDEX IF NOT EXISTS idx_tasks_bulk ON tasks(bulk_id)`,
		},
	},
}

func (m *Migrator) Initialize() error {
	_, err := m.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`)
	return err
}

func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	return version, err
}

// Up applies every migration newer than the current schema version,
// each inside its own transaction.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return apperr.Wrap(apperr.Internal, "initialize schema_migrations", err)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "read schema version", err)
	}

	for _, mig := range migrations {
		if mig.version <= current {
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return apperr.Wrap(apperr.Internal, "begin migration transaction", err)
		}

		for _, stmt := range mig.statements {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return apperr.Wrap(apperr.Internal, fmt.Sprintf("migration %d: %s", mig.version, stmt), err)
			}
		}

		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, strftime('%s','now'))`,
			mig.version, mig.description,
		); err != nil {
			tx.Rollback()
			return apperr.Wrap(apperr.Internal, fmt.Sprintf("record migration %d", mig.version), err)
		}

		if err := tx.Commit(); err != nil {
			return apperr.Wrap(apperr.Internal, fmt.Sprintf("commit migration %d", mig.version), err)
		}
	}

	return nil
}
