package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/logging"
	"github.com/nova-repository/newsrepo/internal/ocr/layout"
	"github.com/nova-repository/newsrepo/internal/ocr/shellocr"
	"github.com/nova-repository/newsrepo/internal/pubsub"
	"github.com/nova-repository/newsrepo/internal/queue"
	"github.com/nova-repository/newsrepo/internal/repository/fs"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
)

func newTestService(t *testing.T, engine shellocr.MockEngine) (*Service, *queue.Queue, *sqlstore.Store) {
	dir := t.TempDir()
	db, err := sqlstore.Open(filepath.Join(dir, "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	layoutDir := fs.New(filepath.Join(dir, "files"))
	require.NoError(t, layoutDir.EnsureStructure())

	store := sqlstore.New(db, layoutDir)
	q := queue.New(db)
	logger := logging.New("error")
	publisher := pubsub.New(logger, 8)

	svc := New(Deps{
		Queue:         q,
		Store:         store,
		OCREngine:     engine,
		Layout:        layout.New(),
		Publisher:     publisher,
		Logger:        logger,
		Workers:       1,
		PollInterval:  10 * time.Millisecond,
		LeaseDuration: time.Second,
		ImageLoader: func(path string) ([]byte, int, int, error) {
			return []byte("fake-image"), 1000, 1400, nil
		},
		TextLoader: func(path string) (string, error) {
			return `<div class="ocr_carea" title="bbox 0 0 200 120"><span class="ocr_line" title="bbox 0 0 200 120"><span class="ocrx_word" title="x_wconf 90">HEADLINE</span></span></div>`, nil
		},
	})
	return svc, q, store
}

func TestExecuteOCRTaskAttachesResult(t *testing.T) {
	engine := shellocr.MockEngine{Result: domain.OCRResult{Text: "hello", HOCR: "<html></html>", Confidence: 0.9, EngineVersion: "mock-1"}}
	svc, q, store := newTestService(t, engine)
	ctx := context.Background()

	page, err := store.AddPage(ctx, sqlstore.AddPageParams{
		PublicationID: "sn83045604",
		IssueDate:     time.Date(1891, 4, 15, 0, 0, 0, 0, time.UTC),
		Sequence:      1,
		SourceSystem:  "chroniclingamerica",
		Extension:     "jp2",
		ImageBytes:    []byte("a"),
	})
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, queue.EnqueueParams{PageID: &page.PageID, Operation: domain.OpOCR})
	require.NoError(t, err)

	leased, err := q.Lease(ctx, "w1", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, leased, 1)

	require.NoError(t, svc.execute(ctx, leased[0]))

	fetched, err := store.GetPage(ctx, page.PageID)
	require.NoError(t, err)
	require.Equal(t, domain.PageStatusOCRDone, fetched.Status)
}

func TestExecuteSegmentTaskProducesArticle(t *testing.T) {
	engine := shellocr.MockEngine{}
	svc, q, store := newTestService(t, engine)
	ctx := context.Background()

	page, err := store.AddPage(ctx, sqlstore.AddPageParams{
		PublicationID: "sn83045604",
		IssueDate:     time.Date(1891, 4, 15, 0, 0, 0, 0, time.UTC),
		Sequence:      1,
		SourceSystem:  "chroniclingamerica",
		Extension:     "jp2",
		ImageBytes:    []byte("a"),
	})
	require.NoError(t, err)
	require.NoError(t, store.AttachOCR(ctx, page.PageID, "HEADLINE", "<html></html>", "mock-1"))

	_, err = q.Enqueue(ctx, queue.EnqueueParams{PageID: &page.PageID, Operation: domain.OpSegment})
	require.NoError(t, err)

	leased, err := q.Lease(ctx, "w1", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, leased, 1)

	require.NoError(t, svc.execute(ctx, leased[0]))

	segments, err := store.GetSegmentsForPage(ctx, page.PageID)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, domain.SegmentKindArticle, segments[0].Kind)
}
