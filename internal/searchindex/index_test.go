package searchindex

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nova-repository/newsrepo/internal/domain"
)

func newTestIndex(t *testing.T) (*Index, *sql.DB) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func sampleEntry(id, title, body string) domain.IndexEntry {
	return domain.IndexEntry{
		Source:   domain.SourceRepository,
		SourceID: id,
		Type:     domain.DocTypeSegment,
		Title:    title,
		Body:     body,
		Date:     time.Date(1923, 6, 14, 0, 0, 0, 0, time.UTC),
		Facets:   map[string]string{"publication": "daily-gazette"},
	}
}

func TestIndexDocumentThenSearchMatches(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexDocument(ctx, sampleEntry("seg-1", "City Council Meets", "The city council convened to discuss the new fire department budget.")))
	require.NoError(t, idx.IndexDocument(ctx, sampleEntry("seg-2", "Weather Report", "Fair skies expected through the weekend.")))

	resp, err := idx.Search(ctx, domain.SearchOptions{Query: "council"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	require.Equal(t, "seg-1", resp.Hits[0].Entry.SourceID)
	require.NotEmpty(t, resp.Hits[0].Snippet)
}

func TestIndexDocumentReplacesExistingEntry(t *testing.T) {
	idx, db := newTestIndex(t)
	ctx := context.Background()

	entry := sampleEntry("seg-1", "Old Title", "old body text")
	require.NoError(t, idx.IndexDocument(ctx, entry))

	entry.Title = "New Title"
	entry.Body = "new body text"
	require.NoError(t, idx.IndexDocument(ctx, entry))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM search_documents WHERE source_id = ?`, "seg-1").Scan(&count))
	require.Equal(t, 1, count)

	resp, err := idx.Search(ctx, domain.SearchOptions{Query: "New"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
}

func TestDeleteDocumentRemovesEntry(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	entry := sampleEntry("seg-1", "City Council Meets", "budget discussion")
	require.NoError(t, idx.IndexDocument(ctx, entry))
	require.NoError(t, idx.DeleteDocument(ctx, entry.Source, entry.SourceID, entry.Type))

	resp, err := idx.Search(ctx, domain.SearchOptions{Query: "council"})
	require.NoError(t, err)
	require.Empty(t, resp.Hits)
}

type stubReindexer struct {
	entries []domain.IndexEntry
}

func (s stubReindexer) AllDocuments(ctx context.Context) ([]domain.IndexEntry, error) {
	return s.entries, nil
}

func TestReindexIsIdempotent(t *testing.T) {
	idx, db := newTestIndex(t)
	ctx := context.Background()

	source := stubReindexer{entries: []domain.IndexEntry{
		sampleEntry("seg-1", "City Council Meets", "budget discussion"),
		sampleEntry("seg-2", "Fire At Mill", "a fire broke out downtown"),
	}}

	n, err := idx.Reindex(ctx, source)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = idx.Reindex(ctx, source)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM search_documents`).Scan(&count))
	require.Equal(t, 2, count)
}

func TestSearchFiltersByFacetAndDateRange(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	gazette := sampleEntry("seg-1", "City Council Meets", "budget discussion")
	herald := sampleEntry("seg-2", "City Council Elects", "election of new chairman")
	herald.Facets = map[string]string{"publication": "evening-herald"}
	herald.Date = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, idx.IndexDocument(ctx, gazette))
	require.NoError(t, idx.IndexDocument(ctx, herald))

	resp, err := idx.Search(ctx, domain.SearchOptions{
		Query:   "council",
		Filters: map[string]string{"publication": "daily-gazette"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	require.Equal(t, "seg-1", resp.Hits[0].Entry.SourceID)

	resp, err = idx.Search(ctx, domain.SearchOptions{
		Query:     "council",
		DateStart: time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	require.Equal(t, "seg-2", resp.Hits[0].Entry.SourceID)
}

func TestSearchFuzzyFallsBackWhenNoExactMatch(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexDocument(ctx, sampleEntry("seg-1", "City Councel Meets", "typo in the original scan")))

	resp, err := idx.Search(ctx, domain.SearchOptions{Query: "council", Fuzzy: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Hits)
	require.True(t, resp.Hits[0].FuzzyMatch)
}

func TestFacetCountsAggregatePerValue(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	a := sampleEntry("seg-1", "City Council Meets", "budget discussion")
	b := sampleEntry("seg-2", "City Council Elects", "election coverage")
	b.Facets = map[string]string{"publication": "evening-herald"}

	require.NoError(t, idx.IndexDocument(ctx, a))
	require.NoError(t, idx.IndexDocument(ctx, b))

	resp, err := idx.Search(ctx, domain.SearchOptions{Query: "council", Facets: []string{"publication"}})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Facets["publication"]["daily-gazette"])
	require.Equal(t, 1, resp.Facets["publication"]["evening-herald"])
}
