package connector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/repository/fs"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
)

func newTestConnector(t *testing.T) (*Connector, *sqlstore.Store) {
	t.Helper()
	dir := t.TempDir()

	repoDB, err := sqlstore.Open(filepath.Join(dir, "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repoDB.Close() })
	layout := fs.New(filepath.Join(dir, "files"))
	require.NoError(t, layout.EnsureStructure())
	repo := sqlstore.New(repoDB, layout)

	mainDB, err := OpenMainStore(filepath.Join(dir, "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { mainDB.Close() })

	return New(repo, mainDB), repo
}

var nextTestSequence int

func addReviewedSegment(t *testing.T, repo *sqlstore.Store, text string) domain.Segment {
	t.Helper()
	ctx := context.Background()

	nextTestSequence++
	page, err := repo.AddPage(ctx, sqlstore.AddPageParams{
		PublicationID: "sn83045604",
		IssueDate:     time.Date(1891, 4, 15, 0, 0, 0, 0, time.UTC),
		Sequence:      nextTestSequence,
		SourceSystem:  "chroniclingamerica",
		Extension:     "jp2",
		ImageBytes:    []byte("fake-image-bytes"),
	})
	require.NoError(t, err)
	require.NoError(t, repo.AttachOCR(ctx, page.PageID, text, "<html></html>", "tesseract-5.0"))

	segments, err := repo.AddSegments(ctx, page.PageID, 1000, 1400, []domain.Segment{
		{Kind: domain.SegmentKindArticle, BBox: domain.BBox{X: 0, Y: 0, W: 500, H: 300}, Text: text, Confidence: 0.9, Status: domain.SegmentStatusReviewed},
	})
	require.NoError(t, err)
	return segments[0]
}

func TestPromoteCreatesEventAndLink(t *testing.T) {
	conn, repo := newTestConnector(t)
	ctx := context.Background()

	seg := addReviewedSegment(t, repo, "City Council Meets\nThe council convened to discuss the budget.")

	eventID, err := conn.Promote(ctx, seg.SegmentID, PromoteOverrides{})
	require.NoError(t, err)
	require.NotEmpty(t, eventID)

	updated, err := repo.GetSegment(ctx, seg.SegmentID)
	require.NoError(t, err)
	require.Equal(t, domain.SegmentStatusPromoted, updated.Status)
	require.NotNil(t, updated.EventID)
	require.Equal(t, eventID, *updated.EventID)

	var linkCount int
	require.NoError(t, conn.mainDB.QueryRow(`SELECT COUNT(*) FROM event_links WHERE segment_id = ?`, seg.SegmentID).Scan(&linkCount))
	require.Equal(t, 1, linkCount)
}

func TestPromoteRejectsNearDuplicate(t *testing.T) {
	conn, repo := newTestConnector(t)
	ctx := context.Background()

	seg1 := addReviewedSegment(t, repo, "City Council Meets\nThe council convened to discuss the annual budget allocation.")
	_, err := conn.Promote(ctx, seg1.SegmentID, PromoteOverrides{})
	require.NoError(t, err)

	seg2 := addReviewedSegment(t, repo, "City Council Meets\nThe council convened to discuss the annual budget allocation.")
	_, err = conn.Promote(ctx, seg2.SegmentID, PromoteOverrides{})
	require.Error(t, err)
}

func TestSyncToMainPromotesAllReviewedSegments(t *testing.T) {
	conn, repo := newTestConnector(t)

	addReviewedSegment(t, repo, "Fire At Lumber Mill\nA fire broke out downtown last evening.")
	addReviewedSegment(t, repo, "Election Results In\nVoters elected a new town chairman yesterday.")

	n, err := conn.SyncToMain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestReconcileReattachesOrphanedEventLink(t *testing.T) {
	conn, repo := newTestConnector(t)
	ctx := context.Background()

	seg := addReviewedSegment(t, repo, "Storm Damages Harbor\nHigh winds battered the waterfront overnight.")
	eventID, err := conn.Promote(ctx, seg.SegmentID, PromoteOverrides{})
	require.NoError(t, err)

	_, err = conn.mainDB.ExecContext(ctx, `DELETE FROM event_links WHERE segment_id = ?`, seg.SegmentID)
	require.NoError(t, err)

	attached, cleared, err := conn.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, attached)
	require.Equal(t, 0, cleared)

	var linkCount int
	require.NoError(t, conn.mainDB.QueryRow(`SELECT COUNT(*) FROM event_links WHERE segment_id = ? AND event_id = ?`, seg.SegmentID, eventID).Scan(&linkCount))
	require.Equal(t, 1, linkCount)
}

func TestReconcileClearsPromotionWhenEventMissing(t *testing.T) {
	conn, repo := newTestConnector(t)
	ctx := context.Background()

	seg := addReviewedSegment(t, repo, "Bridge Reopens To Traffic\nRepairs finished ahead of schedule.")
	eventID, err := conn.Promote(ctx, seg.SegmentID, PromoteOverrides{})
	require.NoError(t, err)

	_, err = conn.mainDB.ExecContext(ctx, `DELETE FROM event_links WHERE segment_id = ?`, seg.SegmentID)
	require.NoError(t, err)
	_, err = conn.mainDB.ExecContext(ctx, `DELETE FROM events WHERE event_id = ?`, eventID)
	require.NoError(t, err)

	attached, cleared, err := conn.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, attached)
	require.Equal(t, 1, cleared)

	updated, err := repo.GetSegment(ctx, seg.SegmentID)
	require.NoError(t, err)
	require.Equal(t, domain.SegmentStatusReviewed, updated.Status)
	require.Nil(t, updated.EventID)
}

func TestSyncFromMainPullsEditedEventBody(t *testing.T) {
	conn, repo := newTestConnector(t)
	ctx := context.Background()

	seg := addReviewedSegment(t, repo, "Harbor Expansion Approved\nThe council approved funds for the new pier.")
	eventID, err := conn.Promote(ctx, seg.SegmentID, PromoteOverrides{})
	require.NoError(t, err)

	_, err = conn.mainDB.ExecContext(ctx, `UPDATE events SET body = ? WHERE event_id = ?`, "Harbor Expansion Approved\nThe council approved funds for the new pier, corrected by an editor.", eventID)
	require.NoError(t, err)

	n, err := conn.SyncFromMain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	updated, err := repo.GetSegment(ctx, seg.SegmentID)
	require.NoError(t, err)
	require.Contains(t, updated.Text, "corrected by an editor")
}
