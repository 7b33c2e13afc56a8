package searchindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
)

const (
	// DefaultFuzzyThreshold: a fuzzy candidate must score at least
	// 70/100 similarity to count as a match, the midpoint of the
	// 60/70/80 range the original's sites disagree on.
	DefaultFuzzyThreshold = 70
	fuzzyCandidateScan    = 500
)

type Index struct {
	db *sql.DB
}

func New(db *sql.DB) *Index {
	return &Index{db: db}
}

// IndexDocument inserts or replaces a document's indexed fields.
// FTS5 external-content tables would need a rowid join; this index
// is self-contained, so a re-index first deletes the old row (if
// any) for the same (source, source_id, doc_type) key.
func (idx *Index) IndexDocument(ctx context.Context, entry domain.IndexEntry) error {
	if err := idx.DeleteDocument(ctx, entry.Source, entry.SourceID, entry.Type); err != nil {
		return err
	}

	facets := encodeFacets(entry.Facets)
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO search_documents (source, source_id, doc_type, title, body, date, facets)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(entry.Source), entry.SourceID, string(entry.Type), entry.Title, entry.Body,
		entry.Date.Format("2006-01-02"), facets,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert search document", err)
	}
	return nil
}

func (idx *Index) DeleteDocument(ctx context.Context, source domain.DocumentSource, sourceID string, docType domain.DocumentType) error {
	_, err := idx.db.ExecContext(ctx,
		`DELETE FROM search_documents WHERE source = ? AND source_id = ? AND doc_type = ?`,
		string(source), sourceID, string(docType),
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete search document", err)
	}
	return nil
}

// Reindexer supplies the documents to rebuild an index from, keeping
// searchindex itself free of a dependency on the repository/main
// stores it indexes.
type Reindexer interface {
	AllDocuments(ctx context.Context) ([]domain.IndexEntry, error)
}

// Reindex drops every document and re-adds everything source
// provides, idempotently: running it twice in a row leaves the same
// set of rows.
func (idx *Index) Reindex(ctx context.Context, source Reindexer) (int, error) {
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM search_documents`); err != nil {
		return 0, apperr.Wrap(apperr.Internal, "clear search_documents before reindex", err)
	}

	entries, err := source.AllDocuments(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "load documents for reindex", err)
	}

	for _, entry := range entries {
		if err := idx.IndexDocument(ctx, entry); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// Search executes opts.Query against the index, falling back to
// fuzzy (edit-distance) matching over a bounded candidate scan when
// opts.Fuzzy is set and the FTS5 MATCH returns nothing close.
func (idx *Index) Search(ctx context.Context, opts domain.SearchOptions) (domain.SearchResponse, error) {
	start := time.Now()
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}

	hits, total, err := idx.ftsSearch(ctx, opts)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	if opts.Fuzzy && len(hits) == 0 {
		hits, err = idx.fuzzySearch(ctx, opts)
		if err != nil {
			return domain.SearchResponse{}, err
		}
		total = len(hits)
	}

	facets, err := idx.facetCounts(ctx, opts)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	return domain.SearchResponse{
		Hits:          hits,
		Total:         total,
		ExecutionTime: time.Since(start),
		Facets:        facets,
	}, nil
}

func (idx *Index) ftsSearch(ctx context.Context, opts domain.SearchOptions) ([]domain.SearchHit, int, error) {
	matchExpr := parseQuery(opts.Query)
	if matchExpr == "" {
		return nil, 0, apperr.New(apperr.Validation, "search query is empty")
	}

	where := []string{"search_documents MATCH ?"}
	args := []any{matchExpr}

	if opts.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(opts.Source))
	}
	if !opts.DateStart.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, opts.DateStart.Format("2006-01-02"))
	}
	if !opts.DateEnd.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, opts.DateEnd.Format("2006-01-02"))
	}
	for key, val := range opts.Filters {
		where = append(where, "facets LIKE ?")
		args = append(args, "%"+key+"="+val+"%")
	}

	query := fmt.Sprintf(
		`SELECT source, source_id, doc_type, title, body, date, facets,
		        bm25(search_documents) AS rank,
		        snippet(search_documents, 4, '<mark>', '</mark>', '...', 12) AS snip
		 FROM search_documents WHERE %s ORDER BY rank LIMIT ? OFFSET ?`,
		strings.Join(where, " AND "),
	)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Internal, "execute fts search", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		hit, err := scanHit(rows)
		if err != nil {
			return nil, 0, err
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Wrap(apperr.Internal, "iterate fts search rows", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM search_documents WHERE %s`, strings.Join(where, " AND "))
	var total int
	if err := idx.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(apperr.Internal, "count fts search results", err)
	}

	return hits, total, nil
}

type scannableRows interface {
	Scan(dest ...any) error
}

func scanHit(rows scannableRows) (domain.SearchHit, error) {
	var source, sourceID, docType, title, body, dateStr, facets, snip string
	var rank float64
	if err := rows.Scan(&source, &sourceID, &docType, &title, &body, &dateStr, &facets, &rank, &snip); err != nil {
		return domain.SearchHit{}, apperr.Wrap(apperr.Internal, "scan search hit", err)
	}

	date, _ := time.Parse("2006-01-02", dateStr)
	return domain.SearchHit{
		Entry: domain.IndexEntry{
			Source:   domain.DocumentSource(source),
			SourceID: sourceID,
			Type:     domain.DocumentType(docType),
			Title:    title,
			Body:     body,
			Date:     date,
			Facets:   decodeFacets(facets),
		},
		Score:   -rank, // bm25() returns lower-is-better; invert so higher Score is better
		Snippet: snip,
	}, nil
}

// fuzzySearch scans a bounded window of recent documents and scores
// each term of opts.Query against the title by normalized Levenshtein
// distance, keeping candidates at or above opts.FuzzyThreshold.
func (idx *Index) fuzzySearch(ctx context.Context, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	rows, err := idx.db.QueryContext(ctx,
		`SELECT source, source_id, doc_type, title, body, date, facets FROM search_documents
		 ORDER BY rowid DESC LIMIT ?`, fuzzyCandidateScan)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "scan fuzzy candidates", err)
	}
	defer rows.Close()

	terms := strings.Fields(strings.ToLower(strings.Trim(opts.Query, `"`)))
	var hits []domain.SearchHit
	for rows.Next() {
		var source, sourceID, docType, title, body, dateStr, facets string
		if err := rows.Scan(&source, &sourceID, &docType, &title, &body, &dateStr, &facets); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan fuzzy candidate row", err)
		}

		score := bestWordScore(terms, strings.ToLower(title))
		if score < opts.FuzzyThreshold {
			continue
		}

		date, _ := time.Parse("2006-01-02", dateStr)
		hits = append(hits, domain.SearchHit{
			Entry: domain.IndexEntry{
				Source:   domain.DocumentSource(source),
				SourceID: sourceID,
				Type:     domain.DocumentType(docType),
				Title:    title,
				Body:     body,
				Date:     date,
				Facets:   decodeFacets(facets),
			},
			Score:      float64(score) / 100.0,
			FuzzyMatch: true,
		})
		if len(hits) >= opts.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate fuzzy candidates", err)
	}
	return hits, nil
}

// bestWordScore scores each query term against every word of title
// and returns the best match, so a single mistyped word in a
// multi-word title doesn't drag the whole comparison down.
func bestWordScore(terms []string, title string) int {
	words := strings.Fields(title)
	best := 0
	for _, term := range terms {
		for _, word := range words {
			if score := fuzzyScore(term, word); score > best {
				best = score
			}
		}
	}
	return best
}

// fuzzyScore returns 0-100, the percentage similarity between a and
// b derived from their Levenshtein edit distance relative to the
// longer string's length.
func fuzzyScore(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	similarity := 1.0 - float64(dist)/float64(maxLen)
	if similarity < 0 {
		similarity = 0
	}
	return int(similarity * 100)
}

func (idx *Index) facetCounts(ctx context.Context, opts domain.SearchOptions) (domain.FacetCounts, error) {
	if len(opts.Facets) == 0 {
		return nil, nil
	}

	counts := domain.FacetCounts{}
	rows, err := idx.db.QueryContext(ctx, `SELECT facets FROM search_documents`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "scan facets", err)
	}
	defer rows.Close()

	for rows.Next() {
		var facetsRaw string
		if err := rows.Scan(&facetsRaw); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan facet row", err)
		}
		parsed := decodeFacets(facetsRaw)
		for _, wanted := range opts.Facets {
			val, ok := parsed[wanted]
			if !ok {
				continue
			}
			if counts[wanted] == nil {
				counts[wanted] = map[string]int{}
			}
			counts[wanted][val]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate facet rows", err)
	}
	return counts, nil
}

func encodeFacets(facets map[string]string) string {
	parts := make([]string, 0, len(facets))
	for k, v := range facets {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ";")
}

func decodeFacets(raw string) map[string]string {
	out := map[string]string{}
	if raw == "" {
		return out
	}
	for _, part := range strings.Split(raw, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
