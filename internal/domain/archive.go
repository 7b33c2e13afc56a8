package domain

import "time"

// PageMetadata describes a single newspaper page as returned by the
// archive client's search/download operations, ahead of it being
// stored in the repository.
type PageMetadata struct {
	LCCN           string
	PublicationTitle string
	PlaceCity      string
	PlaceState     string
	IssueDate      time.Time
	Sequence       int
	SourceSystem   string
	Formats        []string // subset of {pdf, jp2, ocr_text, json}
	DownloadURLs   map[string]string
	RawMetadata    map[string]any
}

// PaginationSummary describes where a search result page sits within
// the full result set.
type PaginationSummary struct {
	CurrentPage int
	TotalPages  int
	TotalItems  int
}

// DateAdjustment records an earliest-date pruning decision surfaced to
// the caller.
type DateAdjustment struct {
	Original time.Time
	Adjusted time.Time
}

// SearchRequest parameterizes Client.Search.
type SearchRequest struct {
	Keywords      string
	PublicationID string // LCCN
	State         string
	DateStart     time.Time
	DateEnd       time.Time
	PageIndex     int
	PageSize      int
}

// SearchResult is what Client.Search returns.
type SearchResult struct {
	Pages      []PageMetadata
	Pagination PaginationSummary
	Adjustment *DateAdjustment
}

// DownloadManifestEntry records one fetched format's byte length and
// content hash for provenance.
type DownloadManifestEntry struct {
	Format      string
	ContentType string
	SizeBytes   int
	SHA256      string
}

// DownloadResult is what Client.Download returns.
type DownloadResult struct {
	Bytes    map[string][]byte // format -> raw bytes
	Manifest []DownloadManifestEntry
}
