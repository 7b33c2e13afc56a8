package sqlstore

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
	"github.com/nova-repository/newsrepo/internal/repository/fs"
)

// Store implements the repository store's relational operations:
// add_page, attach_ocr, add_segments, get_page, search_pages,
// delete_page. File bytes are written through the fs package; this
// file owns the SQLite side and keeps the two in sync.
type Store struct {
	db     *sql.DB
	layout *fs.Layout
	sb     sq.StatementBuilderType
}

func New(db *sql.DB, layout *fs.Layout) *Store {
	return &Store{db: db, layout: layout, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// AddPageParams carries everything add_page needs to both place the
// original image on disk and insert its catalog row atomically.
type AddPageParams struct {
	PublicationID string
	IssueDate     time.Time
	Sequence      int
	SourceSystem  string
	Extension     string
	ImageBytes    []byte
	Metadata      map[string]string
}

// AddPage writes the original image to its deterministic path and
// then inserts the page row. A page whose publication/date/sequence/
// source key already exists is rejected with a Conflict before any
// file is written, so the existing page's image is left untouched; if
// the row insert itself fails, the file just written is removed.
func (s *Store) AddPage(ctx context.Context, p AddPageParams) (domain.Page, error) {
	pageID := uuid.NewString()
	issueDateStr := p.IssueDate.Format("2006-01-02")

	dupQuery, dupArgs, err := s.sb.Select("COUNT(*)").From("pages").
		Where(sq.Eq{"publication_id": p.PublicationID, "issue_date": issueDateStr,
			"sequence": p.Sequence, "source_system": p.SourceSystem}).ToSql()
	if err != nil {
		return domain.Page{}, apperr.Wrap(apperr.Internal, "build duplicate page query", err)
	}
	var existing int
	if err := s.db.QueryRowContext(ctx, dupQuery, dupArgs...).Scan(&existing); err != nil {
		return domain.Page{}, apperr.Wrap(apperr.Internal, "check for duplicate page", err)
	}
	if existing > 0 {
		return domain.Page{}, apperr.Newf(apperr.Conflict,
			"page already exists for publication %s issue %s sequence %d source %s",
			p.PublicationID, issueDateStr, p.Sequence, p.SourceSystem)
	}

	bucketSize, err := s.bucketSize(ctx, p.SourceSystem, issueDateStr)
	if err != nil {
		return domain.Page{}, err
	}

	imagePath := s.layout.OriginalPath(pageID, p.SourceSystem, p.PublicationID, issueDateStr, p.Sequence, p.Extension, bucketSize)
	if err := fs.WriteAtomic(imagePath, p.ImageBytes); err != nil {
		return domain.Page{}, err
	}

	now := time.Now().UTC()
	metaJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return domain.Page{}, apperr.Wrap(apperr.Internal, "marshal page metadata", err)
	}

	insert := s.sb.Insert("pages").
		Columns("page_id", "publication_id", "issue_date", "sequence", "source_system",
			"image_path", "status", "metadata", "created_at", "updated_at").
		Values(pageID, p.PublicationID, issueDateStr, p.Sequence, p.SourceSystem,
			imagePath, string(domain.PageStatusNew), string(metaJSON), now.Unix(), now.Unix())

	query, args, err := insert.ToSql()
	if err != nil {
		return domain.Page{}, apperr.Wrap(apperr.Internal, "build add_page insert", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		fs.Remove(imagePath)
		if isUniqueConstraintErr(err) {
			return domain.Page{}, apperr.Newf(apperr.Conflict,
				"page already exists for publication %s issue %s sequence %d source %s",
				p.PublicationID, issueDateStr, p.Sequence, p.SourceSystem)
		}
		return domain.Page{}, apperr.Wrap(apperr.Internal, "insert page row", err)
	}

	return domain.Page{
		PageID:        pageID,
		PublicationID: p.PublicationID,
		IssueDate:     p.IssueDate,
		Sequence:      p.Sequence,
		SourceSystem:  p.SourceSystem,
		ImagePath:     imagePath,
		Status:        domain.PageStatusNew,
		Metadata:      p.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *Store) bucketSize(ctx context.Context, sourceSystem, issueDateStr string) (int, error) {
	month := issueDateStr[:7]
	query, args, err := s.sb.Select("COUNT(*)").From("pages").
		Where(sq.Eq{"source_system": sourceSystem}).
		Where(sq.Like{"issue_date": month + "%"}).
		ToSql()
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "build bucket size query", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "count bucket size", err)
	}
	return n, nil
}

// AttachOCR records OCR output against an existing page, writing the
// text/hocr bytes to disk and advancing the page's status to
// ocr_done. domain.CanTransition decides which pages qualify: new,
// queued, processing and ocr_done pages are accepted; failed and
// segmented pages are rejected with a Conflict.
func (s *Store) AttachOCR(ctx context.Context, pageID, text, hocr, engineVersion string) error {
	page, err := s.GetPage(ctx, pageID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(page.Status, domain.PageStatusOCRDone) {
		return apperr.Newf(apperr.Conflict, "page %s cannot transition from %s to ocr_done", pageID, page.Status)
	}

	textPath := s.layout.OCRTextPath(pageID)
	hocrPath := s.layout.OCRHOCRPath(pageID)
	if err := fs.WriteAtomic(textPath, []byte(text)); err != nil {
		return err
	}
	if err := fs.WriteAtomic(hocrPath, []byte(hocr)); err != nil {
		return err
	}

	update := s.sb.Update("pages").
		Set("ocr_text_path", textPath).
		Set("ocr_hocr_path", hocrPath).
		Set("ocr_engine_version", engineVersion).
		Set("status", string(domain.PageStatusOCRDone)).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(sq.Eq{"page_id": pageID})

	query, args, err := update.ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build attach_ocr update", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.Internal, "update page ocr fields", err)
	}
	return nil
}

// AddSegments validates each segment's bbox against the page's image
// dimensions and inserts them, advancing the page to segmented.
func (s *Store) AddSegments(ctx context.Context, pageID string, imageW, imageH int, segments []domain.Segment) ([]domain.Segment, error) {
	page, err := s.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(page.Status, domain.PageStatusSegmented) {
		return nil, apperr.Newf(apperr.Conflict, "page %s cannot transition from %s to segmented", pageID, page.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "begin add_segments transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	out := make([]domain.Segment, 0, len(segments))
	for _, seg := range segments {
		if !seg.BBox.Within(imageW, imageH) {
			return nil, apperr.Newf(apperr.Validation, "segment bbox %+v lies outside page image bounds %dx%d", seg.BBox, imageW, imageH)
		}
		if seg.Confidence < 0 || seg.Confidence > 1 {
			return nil, apperr.Newf(apperr.Validation, "segment confidence %f out of range", seg.Confidence)
		}

		seg.SegmentID = uuid.NewString()
		seg.PageID = pageID
		if seg.Status == "" {
			seg.Status = domain.SegmentStatusDraft
		}
		seg.CreatedAt = now
		seg.UpdatedAt = now

		insert := s.sb.Insert("segments").
			Columns("segment_id", "page_id", "kind", "bbox_x", "bbox_y", "bbox_w", "bbox_h",
				"text", "confidence", "image_clip_path", "status", "created_at", "updated_at").
			Values(seg.SegmentID, seg.PageID, string(seg.Kind), seg.BBox.X, seg.BBox.Y, seg.BBox.W, seg.BBox.H,
				seg.Text, seg.Confidence, seg.ImageClipPath, string(seg.Status), now.Unix(), now.Unix())

		query, args, err := insert.ToSql()
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "build add_segments insert", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "insert segment row", err)
		}
		out = append(out, seg)
	}

	update := s.sb.Update("pages").
		Set("status", string(domain.PageStatusSegmented)).
		Set("updated_at", now.Unix()).
		Where(sq.Eq{"page_id": pageID})
	query, args, err := update.ToSql()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build page status update", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "advance page to segmented", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "commit add_segments transaction", err)
	}
	return out, nil
}

func (s *Store) GetPage(ctx context.Context, pageID string) (domain.Page, error) {
	query, args, err := s.sb.Select(
		"page_id", "publication_id", "issue_date", "sequence", "source_system",
		"image_path", "ocr_text_path", "ocr_hocr_path", "ocr_engine_version",
		"status", "metadata", "created_at", "updated_at",
	).From("pages").Where(sq.Eq{"page_id": pageID}).ToSql()
	if err != nil {
		return domain.Page{}, apperr.Wrap(apperr.Internal, "build get_page query", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	page, err := scanPage(row)
	if err == sql.ErrNoRows {
		return domain.Page{}, apperr.Newf(apperr.NotFound, "page %s not found", pageID)
	}
	if err != nil {
		return domain.Page{}, err
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (domain.Page, error) {
	var p domain.Page
	var issueDate, metaJSON string
	var ocrTextPath, ocrHocrPath, ocrEngine sql.NullString
	var createdAt, updatedAt int64
	var status string

	if err := row.Scan(&p.PageID, &p.PublicationID, &issueDate, &p.Sequence, &p.SourceSystem,
		&p.ImagePath, &ocrTextPath, &ocrHocrPath, &ocrEngine, &status, &metaJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Page{}, err
		}
		return domain.Page{}, apperr.Wrap(apperr.Internal, "scan page row", err)
	}

	t, err := time.Parse("2006-01-02", issueDate)
	if err != nil {
		return domain.Page{}, apperr.Wrap(apperr.CorruptData, "parse issue_date", err)
	}
	p.IssueDate = t
	p.Status = domain.PageStatus(status)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if ocrTextPath.Valid {
		p.OCRTextPath = &ocrTextPath.String
	}
	if ocrHocrPath.Valid {
		p.OCRHOCRPath = &ocrHocrPath.String
	}
	if ocrEngine.Valid {
		p.OCREngineVersion = &ocrEngine.String
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &p.Metadata); err != nil {
			return domain.Page{}, apperr.Wrap(apperr.CorruptData, "unmarshal page metadata", err)
		}
	}
	return p, nil
}

// PageFilter narrows search_pages. A zero value matches everything.
type PageFilter struct {
	PublicationID string
	Status        domain.PageStatus
	SourceSystem  string
	DateStart     time.Time
	DateEnd       time.Time
}

func (s *Store) SearchPages(ctx context.Context, filter PageFilter, limit, offset int) ([]domain.Page, error) {
	builder := s.sb.Select(
		"page_id", "publication_id", "issue_date", "sequence", "source_system",
		"image_path", "ocr_text_path", "ocr_hocr_path", "ocr_engine_version",
		"status", "metadata", "created_at", "updated_at",
	).From("pages").OrderBy("issue_date ASC", "sequence ASC")

	if filter.PublicationID != "" {
		builder = builder.Where(sq.Eq{"publication_id": filter.PublicationID})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.SourceSystem != "" {
		builder = builder.Where(sq.Eq{"source_system": filter.SourceSystem})
	}
	if !filter.DateStart.IsZero() {
		builder = builder.Where(sq.GtOrEq{"issue_date": filter.DateStart.Format("2006-01-02")})
	}
	if !filter.DateEnd.IsZero() {
		builder = builder.Where(sq.LtOrEq{"issue_date": filter.DateEnd.Format("2006-01-02")})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build search_pages query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query search_pages", err)
	}

	var pages []domain.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apperr.Wrap(apperr.Internal, "iterate search_pages rows", err)
	}
	if err := rows.Close(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "close search_pages rows", err)
	}
	return pages, nil
}

// DeletePage removes the page row (cascading to segments and
// articles per the schema's ON DELETE CASCADE) and the files it owns.
func (s *Store) DeletePage(ctx context.Context, pageID string) error {
	page, err := s.GetPage(ctx, pageID)
	if err != nil {
		return err
	}

	query, args, err := s.sb.Delete("pages").Where(sq.Eq{"page_id": pageID}).ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build delete_page statement", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.Internal, "delete page row", err)
	}

	fs.Remove(page.ImagePath)
	if page.OCRTextPath != nil {
		fs.Remove(*page.OCRTextPath)
	}
	if page.OCRHOCRPath != nil {
		fs.Remove(*page.OCRHOCRPath)
	}
	return nil
}

// Vacuum reclaims free pages left by deletes, run periodically by the
// maintenance command rather than on every write.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return apperr.Wrap(apperr.Internal, "vacuum repository database", err)
	}
	return nil
}

// Analyze refreshes SQLite's query planner statistics.
func (s *Store) Analyze(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return apperr.Wrap(apperr.Internal, "analyze repository database", err)
	}
	return nil
}

func (s *Store) GetSegmentsForPage(ctx context.Context, pageID string) ([]domain.Segment, error) {
	query, args, err := s.sb.Select(
		"segment_id", "page_id", "kind", "bbox_x", "bbox_y", "bbox_w", "bbox_h",
		"text", "confidence", "image_clip_path", "status", "reviewed_by", "reviewed_at",
		"event_id", "created_at", "updated_at",
	).From("segments").Where(sq.Eq{"page_id": pageID}).OrderBy("bbox_y ASC", "bbox_x ASC").ToSql()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build get_segments query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query segments", err)
	}
	defer rows.Close()

	var segments []domain.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate segment rows", err)
	}
	return segments, nil
}

// GetSegment fetches a single segment by ID.
func (s *Store) GetSegment(ctx context.Context, segmentID string) (domain.Segment, error) {
	query, args, err := s.sb.Select(
		"segment_id", "page_id", "kind", "bbox_x", "bbox_y", "bbox_w", "bbox_h",
		"text", "confidence", "image_clip_path", "status", "reviewed_by", "reviewed_at",
		"event_id", "created_at", "updated_at",
	).From("segments").Where(sq.Eq{"segment_id": segmentID}).ToSql()
	if err != nil {
		return domain.Segment{}, apperr.Wrap(apperr.Internal, "build get_segment query", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	seg, err := scanSegment(row)
	if err == sql.ErrNoRows {
		return domain.Segment{}, apperr.Newf(apperr.NotFound, "segment %s not found", segmentID)
	}
	if err != nil {
		return domain.Segment{}, err
	}
	return seg, nil
}

func scanSegment(row rowScanner) (domain.Segment, error) {
	var seg domain.Segment
	var kind, status string
	var reviewedBy, eventID sql.NullString
	var reviewedAt sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(&seg.SegmentID, &seg.PageID, &kind, &seg.BBox.X, &seg.BBox.Y, &seg.BBox.W, &seg.BBox.H,
		&seg.Text, &seg.Confidence, &seg.ImageClipPath, &status, &reviewedBy, &reviewedAt,
		&eventID, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Segment{}, err
		}
		return domain.Segment{}, apperr.Wrap(apperr.Internal, "scan segment row", err)
	}

	seg.Kind = domain.SegmentKind(kind)
	seg.Status = domain.SegmentStatus(status)
	seg.CreatedAt = time.Unix(createdAt, 0).UTC()
	seg.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if reviewedBy.Valid {
		seg.ReviewedBy = &reviewedBy.String
	}
	if reviewedAt.Valid {
		t := time.Unix(reviewedAt.Int64, 0).UTC()
		seg.ReviewedAt = &t
	}
	if eventID.Valid {
		seg.EventID = &eventID.String
	}
	return seg, nil
}

// UpdateSegmentText overwrites a segment's text, used by the
// connector's sync_from_main to pull edits made against the promoted
// event back onto the originating segment.
func (s *Store) UpdateSegmentText(ctx context.Context, segmentID, text string) error {
	update := s.sb.Update("segments").
		Set("text", text).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(sq.Eq{"segment_id": segmentID})
	query, args, err := update.ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build update_segment_text statement", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.Internal, "update segment text", err)
	}
	return nil
}

// MarkSegmentPromoted sets a segment's status to promoted and records
// the event it was promoted to. Called by the connector after a
// successful promote; idempotent on retry since it only ever narrows
// from draft/reviewed to promoted.
func (s *Store) MarkSegmentPromoted(ctx context.Context, segmentID, eventID string) error {
	update := s.sb.Update("segments").
		Set("status", string(domain.SegmentStatusPromoted)).
		Set("event_id", eventID).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(sq.Eq{"segment_id": segmentID})

	query, args, err := update.ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build mark_segment_promoted update", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.Internal, "update segment promotion", err)
	}
	return nil
}

// ClearSegmentPromotion reverts a segment from promoted back to
// reviewed with no event_id, used when Reconcile finds the promoted
// event itself never made it into the main store.
func (s *Store) ClearSegmentPromotion(ctx context.Context, segmentID string) error {
	update := s.sb.Update("segments").
		Set("status", string(domain.SegmentStatusReviewed)).
		Set("event_id", nil).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(sq.Eq{"segment_id": segmentID})
	query, args, err := update.ToSql()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build clear_segment_promotion statement", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.Internal, "clear segment promotion", err)
	}
	return nil
}

// ListSegmentsByStatus returns every segment across all pages in the
// given status, used by the connector to find promotion candidates.
func (s *Store) ListSegmentsByStatus(ctx context.Context, status domain.SegmentStatus) ([]domain.Segment, error) {
	query, args, err := s.sb.Select(
		"segment_id", "page_id", "kind", "bbox_x", "bbox_y", "bbox_w", "bbox_h",
		"text", "confidence", "image_clip_path", "status", "reviewed_by", "reviewed_at",
		"event_id", "created_at", "updated_at",
	).From("segments").Where(sq.Eq{"status": string(status)}).OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build list_segments_by_status query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query segments by status", err)
	}
	defer rows.Close()

	var segments []domain.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate segments by status", err)
	}
	return segments, nil
}

func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
