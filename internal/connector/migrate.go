package connector

import (
	"database/sql"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

// mainSchema creates the main events store's tables. Kept separate
// from sqlstore's migrator since the main store's schema is much
// smaller and owned by this package alone.
func mainSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			date TEXT NOT NULL,
			body TEXT NOT NULL,
			source_page TEXT,
			image_clip_path TEXT,
			metadata TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);

		CREATE TABLE IF NOT EXISTS event_links (
			segment_id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES events(event_id) ON DELETE CASCADE,
			content_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_event_links_event ON event_links(event_id);
		CREATE INDEX IF NOT EXISTS idx_event_links_hash ON event_links(content_hash);
	`)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "create main store schema", err)
	}
	return nil
}
