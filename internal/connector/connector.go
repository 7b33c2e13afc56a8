package connector

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
)

// DefaultDuplicateThreshold matches original_source's find_duplicates default.
const DefaultDuplicateThreshold = 0.8

// Connector promotes repository segments into the main events store
// and keeps the two in sync. It is deliberately the only component
// holding handles to both databases.
type Connector struct {
	repo    *sqlstore.Store
	mainDB  *sql.DB
	sb      sq.StatementBuilderType
}

func New(repo *sqlstore.Store, mainDB *sql.DB) *Connector {
	return &Connector{repo: repo, mainDB: mainDB, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// PromoteOverrides lets a caller supply explicit title/date/body
// instead of deriving them from the segment (title defaults to the
// first line of the segment text).
type PromoteOverrides struct {
	Title string
	Date  time.Time
	Body  string
}

// Promote reads segment_id and its parent page, builds an Event, runs
// duplicate detection, inserts the event, marks the segment promoted
// with the new event_id, and writes its EventLink. If the link write
// fails, the event is not rolled back: the segment already carries
// the event_id, so Reconcile finds the missing link and reattaches it
// — promotion is at-least-once, the link table is authoritative.
func (c *Connector) Promote(ctx context.Context, segmentID string, overrides PromoteOverrides) (string, error) {
	segment, err := c.repo.GetSegment(ctx, segmentID)
	if err != nil {
		return "", err
	}
	page, err := c.repo.GetPage(ctx, segment.PageID)
	if err != nil {
		return "", err
	}

	title := overrides.Title
	if title == "" {
		title = firstLine(segment.Text)
	}
	date := overrides.Date
	if date.IsZero() {
		date = page.IssueDate
	}
	body := overrides.Body
	if body == "" {
		body = segment.Text
	}

	candidates, err := c.FindDuplicates(ctx, body, title, date, DefaultDuplicateThreshold)
	if err != nil {
		return "", err
	}
	if len(candidates) > 0 {
		return candidates[0].EventID, apperr.Newf(apperr.Conflict,
			"segment %s resembles existing event %s (similarity %.2f)", segmentID, candidates[0].EventID, candidates[0].Similarity)
	}

	metaJSON, err := json.Marshal(page.Metadata)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "marshal event metadata", err)
	}

	eventID := uuid.NewString()
	now := time.Now().UTC()
	insert := c.sb.Insert("events").
		Columns("event_id", "title", "date", "body", "source_page", "image_clip_path", "metadata", "created_at", "updated_at").
		Values(eventID, title, date.Format("2006-01-02"), body, page.PageID, segment.ImageClipPath, string(metaJSON), now.Unix(), now.Unix())
	query, args, err := insert.ToSql()
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "build event insert", err)
	}
	if _, err := c.mainDB.ExecContext(ctx, query, args...); err != nil {
		return "", apperr.Wrap(apperr.Internal, "insert event row", err)
	}

	if err := c.repo.MarkSegmentPromoted(ctx, segmentID, eventID); err != nil {
		return eventID, err
	}

	if err := c.writeLink(ctx, segmentID, eventID, body); err != nil {
		return eventID, apperr.Wrap(apperr.Internal, "write event_link (event inserted, reconcile pending)", err)
	}

	return eventID, nil
}

func (c *Connector) writeLink(ctx context.Context, segmentID, eventID, text string) error {
	insert := c.sb.Insert("event_links").
		Columns("segment_id", "event_id", "content_hash", "created_at").
		Values(segmentID, eventID, contentHash(text), time.Now().UTC().Unix())
	query, args, err := insert.ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build event_link insert", err)
	}
	_, err = c.mainDB.ExecContext(ctx, query, args...)
	return err
}

// FindDuplicates returns main-store events within ±1 day of date whose
// similarity is ≥ threshold, highest first. Similarity is the
// token-set Jaccard of text against the event body; when title is
// non-empty it is 0.7 of that plus 0.3 of the title-to-title Jaccard.
func (c *Connector) FindDuplicates(ctx context.Context, text, title string, date time.Time, threshold float64) ([]domain.DuplicateCandidate, error) {
	builder := c.sb.Select("event_id", "title", "date", "body").From("events")
	if !date.IsZero() {
		builder = builder.Where(sq.And{
			sq.GtOrEq{"date": date.AddDate(0, 0, -1).Format("2006-01-02")},
			sq.LtOrEq{"date": date.AddDate(0, 0, 1).Format("2006-01-02")},
		})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build find_duplicates query", err)
	}

	rows, err := c.mainDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query candidate events", err)
	}
	defer rows.Close()

	var candidates []domain.DuplicateCandidate
	for rows.Next() {
		var eventID, evTitle, dateStr, body string
		if err := rows.Scan(&eventID, &evTitle, &dateStr, &body); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan candidate event row", err)
		}
		similarity := jaccardSimilarity(text, body)
		if title != "" {
			similarity = 0.7*similarity + 0.3*jaccardSimilarity(title, evTitle)
		}
		if similarity < threshold {
			continue
		}
		evDate, _ := time.Parse("2006-01-02", dateStr)
		candidates = append(candidates, domain.DuplicateCandidate{
			EventID:    eventID,
			Title:      evTitle,
			Date:       evDate,
			Similarity: similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate candidate events", err)
	}

	sortCandidatesDescending(candidates)
	return candidates, nil
}

func sortCandidatesDescending(candidates []domain.DuplicateCandidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Similarity > candidates[j-1].Similarity; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

// SyncToMain promotes every reviewed, not-yet-promoted segment it can
// find, skipping (not failing) segments whose promotion is rejected
// as a duplicate. Returns the count actually promoted.
func (c *Connector) SyncToMain(ctx context.Context) (int, error) {
	segments, err := c.repo.ListSegmentsByStatus(ctx, domain.SegmentStatusReviewed)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, seg := range segments {
		if seg.EventID != nil {
			continue
		}
		if _, err := c.Promote(ctx, seg.SegmentID, PromoteOverrides{}); err != nil {
			if apperr.Is(err, apperr.Conflict) {
				continue
			}
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// SyncFromMain pulls event body edits made directly against the main
// store back onto their linked segment's text, keyed by EventLink.
// Returns the count of segments updated.
func (c *Connector) SyncFromMain(ctx context.Context) (int, error) {
	rows, err := c.mainDB.QueryContext(ctx, `
		SELECT event_links.segment_id, events.body, event_links.content_hash
		FROM event_links JOIN events ON events.event_id = event_links.event_id
	`)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "query event_links for sync_from_main", err)
	}
	defer rows.Close()

	type pending struct {
		segmentID, body string
	}
	var toUpdate []pending
	for rows.Next() {
		var segmentID, body, linkHash string
		if err := rows.Scan(&segmentID, &body, &linkHash); err != nil {
			return 0, apperr.Wrap(apperr.Internal, "scan event_link row", err)
		}
		if contentHash(body) == linkHash {
			continue // event body unchanged since promotion
		}
		toUpdate = append(toUpdate, pending{segmentID: segmentID, body: body})
	}
	if err := rows.Err(); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "iterate event_links for sync_from_main", err)
	}

	for _, p := range toUpdate {
		if err := c.repo.UpdateSegmentText(ctx, p.segmentID, p.body); err != nil {
			return 0, err
		}
		if _, err := c.mainDB.ExecContext(ctx,
			`UPDATE event_links SET content_hash = ? WHERE segment_id = ?`, contentHash(p.body), p.segmentID); err != nil {
			return 0, apperr.Wrap(apperr.Internal, "refresh event_link content_hash", err)
		}
	}
	return len(toUpdate), nil
}

// Reconcile finds segments marked promoted in the repository whose
// event_link is missing in the main store (the link write failed
// after the event insert succeeded) and either re-attaches the link
// if the event still exists, or clears the segment's promoted status
// so it can be promoted again. Keyed by (segment_id, content_hash).
func (c *Connector) Reconcile(ctx context.Context) (attached, cleared int, err error) {
	promotedSegments, err := c.repo.ListSegmentsByStatus(ctx, domain.SegmentStatusPromoted)
	if err != nil {
		return 0, 0, err
	}

	for _, seg := range promotedSegments {
		if seg.EventID == nil {
			continue
		}

		var linkExists bool
		if err := c.mainDB.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM event_links WHERE segment_id = ?)`, seg.SegmentID).Scan(&linkExists); err != nil {
			return attached, cleared, apperr.Wrap(apperr.Internal, "check event_link existence", err)
		}
		if linkExists {
			continue
		}

		var eventExists bool
		if err := c.mainDB.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM events WHERE event_id = ?)`, *seg.EventID).Scan(&eventExists); err != nil {
			return attached, cleared, apperr.Wrap(apperr.Internal, "check event existence", err)
		}

		if eventExists {
			if err := c.writeLink(ctx, seg.SegmentID, *seg.EventID, seg.Text); err != nil {
				return attached, cleared, apperr.Wrap(apperr.Internal, "reattach orphaned event_link", err)
			}
			attached++
			continue
		}

		if err := c.repo.ClearSegmentPromotion(ctx, seg.SegmentID); err != nil {
			return attached, cleared, err
		}
		cleared++
	}
	return attached, cleared, nil
}

// AllDocuments implements searchindex.Reindexer, walking both stores
// it alone is permitted to hold handles to: every page and segment
// from the repository plus every event from the main store.
func (c *Connector) AllDocuments(ctx context.Context) ([]domain.IndexEntry, error) {
	var entries []domain.IndexEntry

	pages, err := c.repo.SearchPages(ctx, sqlstore.PageFilter{}, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		entries = append(entries, domain.IndexEntry{
			Source:   domain.SourceRepository,
			SourceID: page.PageID,
			Type:     domain.DocTypePage,
			Title:    page.PublicationID + " " + page.IssueDate.Format("2006-01-02"),
			Date:     page.IssueDate,
			Facets:   map[string]string{"publication": page.PublicationID, "status": string(page.Status)},
		})

		segments, err := c.repo.GetSegmentsForPage(ctx, page.PageID)
		if err != nil {
			return nil, err
		}
		for _, seg := range segments {
			entries = append(entries, domain.IndexEntry{
				Source:   domain.SourceRepository,
				SourceID: seg.SegmentID,
				Type:     domain.DocTypeSegment,
				Title:    firstLine(seg.Text),
				Body:     seg.Text,
				Date:     page.IssueDate,
				Facets:   map[string]string{"publication": page.PublicationID, "kind": string(seg.Kind), "status": string(seg.Status)},
			})
		}
	}

	rows, err := c.mainDB.QueryContext(ctx, `SELECT event_id, title, date, body, source_page FROM events`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query events for reindex", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID, title, dateStr, body, sourcePage string
		if err := rows.Scan(&eventID, &title, &dateStr, &body, &sourcePage); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan event row for reindex", err)
		}
		date, _ := time.Parse("2006-01-02", dateStr)
		entries = append(entries, domain.IndexEntry{
			Source:   domain.SourceMain,
			SourceID: eventID,
			Type:     domain.DocTypeEvent,
			Title:    title,
			Body:     body,
			Date:     date,
			Facets:   map[string]string{"source_page": sourcePage},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate events for reindex", err)
	}

	return entries, nil
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexAny(text, "\n\r"); idx >= 0 {
		text = text[:idx]
	}
	if len(text) > 120 {
		text = text[:120]
	}
	return text
}
