package domain

import "time"

// DocumentSource distinguishes which store a search document came from.
type DocumentSource string

const (
	SourceRepository DocumentSource = "repository"
	SourceMain       DocumentSource = "main"
)

// DocumentType further classifies a document within its source
// (page, segment, article, event).
type DocumentType string

const (
	DocTypePage    DocumentType = "page"
	DocTypeSegment DocumentType = "segment"
	DocTypeArticle DocumentType = "article"
	DocTypeEvent   DocumentType = "event"
)

// IndexEntry is a document tracked by the search index.
type IndexEntry struct {
	Source   DocumentSource
	SourceID string
	Type     DocumentType
	Title    string
	Body     string
	Date     time.Time
	Facets   map[string]string
}

// SearchOptions parameterizes Index.Search.
type SearchOptions struct {
	Query        string
	Source       DocumentSource // "" means all sources
	Limit        int
	Offset       int
	Fuzzy        bool
	FuzzyThreshold int // 0-100
	Facets       []string
	Filters      map[string]string
	DateStart    time.Time
	DateEnd      time.Time
}

// SearchHit is one ranked result.
type SearchHit struct {
	Entry     IndexEntry
	Score     float64
	Snippet   string
	FuzzyMatch bool
}

// FacetCounts maps facet name -> value -> count.
type FacetCounts map[string]map[string]int

// SearchResponse is Index.Search's return value.
type SearchResponse struct {
	Hits          []SearchHit
	Total         int
	ExecutionTime time.Duration
	Facets        FacetCounts
}

// DuplicateCandidate is a possible pre-existing event found by
// find_duplicates before a promotion.
type DuplicateCandidate struct {
	EventID    string
	Title      string
	Date       time.Time
	Similarity float64
}
