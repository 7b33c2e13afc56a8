package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/repository/fs"
)

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	layout := fs.New(filepath.Join(dir, "files"))
	require.NoError(t, layout.EnsureStructure())
	return New(db, layout)
}

func TestAddPageThenGetPage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	page, err := store.AddPage(ctx, AddPageParams{
		PublicationID: "sn83045604",
		IssueDate:     time.Date(1891, 4, 15, 0, 0, 0, 0, time.UTC),
		Sequence:      1,
		SourceSystem:  "chroniclingamerica",
		Extension:     "jp2",
		ImageBytes:    []byte("fake-image-bytes"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, page.PageID)
	require.Equal(t, domain.PageStatusNew, page.Status)

	fetched, err := store.GetPage(ctx, page.PageID)
	require.NoError(t, err)
	require.Equal(t, page.PageID, fetched.PageID)
	require.Equal(t, "sn83045604", fetched.PublicationID)
}

func TestAddPageDuplicateConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	params := AddPageParams{
		PublicationID: "sn83045604",
		IssueDate:     time.Date(1891, 4, 15, 0, 0, 0, 0, time.UTC),
		Sequence:      1,
		SourceSystem:  "chroniclingamerica",
		Extension:     "jp2",
		ImageBytes:    []byte("a"),
	}
	_, err := store.AddPage(ctx, params)
	require.NoError(t, err)

	_, err = store.AddPage(ctx, params)
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.Conflict))
}

func TestAttachOCRThenAddSegmentsAdvancesStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	page, err := store.AddPage(ctx, AddPageParams{
		PublicationID: "sn83045604",
		IssueDate:     time.Date(1891, 4, 15, 0, 0, 0, 0, time.UTC),
		Sequence:      1,
		SourceSystem:  "chroniclingamerica",
		Extension:     "jp2",
		ImageBytes:    []byte("a"),
	})
	require.NoError(t, err)

	require.NoError(t, store.AttachOCR(ctx, page.PageID, "hello world", "<html></html>", "tesseract-5"))

	fetched, err := store.GetPage(ctx, page.PageID)
	require.NoError(t, err)
	require.Equal(t, domain.PageStatusOCRDone, fetched.Status)
	require.NotNil(t, fetched.OCRTextPath)

	segments := []domain.Segment{
		{Kind: domain.SegmentKindHeadline, BBox: domain.BBox{X: 0, Y: 0, W: 100, H: 50}, Text: "HEADLINE", Confidence: 0.9},
	}
	saved, err := store.AddSegments(ctx, page.PageID, 1000, 1000, segments)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.NotEmpty(t, saved[0].SegmentID)

	fetched, err = store.GetPage(ctx, page.PageID)
	require.NoError(t, err)
	require.Equal(t, domain.PageStatusSegmented, fetched.Status)
}

func TestAddSegmentsRejectsOutOfBoundsBBox(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	page, err := store.AddPage(ctx, AddPageParams{
		PublicationID: "sn83045604",
		IssueDate:     time.Date(1891, 4, 15, 0, 0, 0, 0, time.UTC),
		Sequence:      1,
		SourceSystem:  "chroniclingamerica",
		Extension:     "jp2",
		ImageBytes:    []byte("a"),
	})
	require.NoError(t, err)
	require.NoError(t, store.AttachOCR(ctx, page.PageID, "text", "<html></html>", "tesseract-5"))

	_, err = store.AddSegments(ctx, page.PageID, 100, 100, []domain.Segment{
		{Kind: domain.SegmentKindArticle, BBox: domain.BBox{X: 50, Y: 50, W: 100, H: 100}, Confidence: 0.5},
	})
	require.Error(t, err)
}

func TestDeletePageCascadesSegments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	page, err := store.AddPage(ctx, AddPageParams{
		PublicationID: "sn83045604",
		IssueDate:     time.Date(1891, 4, 15, 0, 0, 0, 0, time.UTC),
		Sequence:      1,
		SourceSystem:  "chroniclingamerica",
		Extension:     "jp2",
		ImageBytes:    []byte("a"),
	})
	require.NoError(t, err)
	require.NoError(t, store.AttachOCR(ctx, page.PageID, "text", "<html></html>", "tesseract-5"))
	_, err = store.AddSegments(ctx, page.PageID, 1000, 1000, []domain.Segment{
		{Kind: domain.SegmentKindArticle, BBox: domain.BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.5},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeletePage(ctx, page.PageID))

	_, err = store.GetPage(ctx, page.PageID)
	require.Error(t, err)

	segments, err := store.GetSegmentsForPage(ctx, page.PageID)
	require.NoError(t, err)
	require.Empty(t, segments)
}

func TestSearchPagesFiltersByPublicationAndDateRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, d := range []time.Time{
		time.Date(1890, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1891, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1892, 12, 1, 0, 0, 0, 0, time.UTC),
	} {
		_, err := store.AddPage(ctx, AddPageParams{
			PublicationID: "sn83045604",
			IssueDate:     d,
			Sequence:      i + 1,
			SourceSystem:  "chroniclingamerica",
			Extension:     "jp2",
			ImageBytes:    []byte("a"),
		})
		require.NoError(t, err)
	}

	pages, err := store.SearchPages(ctx, PageFilter{
		PublicationID: "sn83045604",
		DateStart:     time.Date(1891, 1, 1, 0, 0, 0, 0, time.UTC),
		DateEnd:       time.Date(1892, 1, 1, 0, 0, 0, 0, time.UTC),
	}, 0, 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, 1891, pages[0].IssueDate.Year())
}
