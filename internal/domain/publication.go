// Package domain holds the pipeline's entities and invariants:
// Publication, Page, Segment, Article, Task, BulkOperation, EventLink.
package domain

import "time"

// Publication is identified by an archive-assigned LCCN-shaped control
// number (e.g. "sn83045604").
type Publication struct {
	LCCN             string
	Title            string
	PlaceCity        string
	PlaceState       string
	FirstIssueDate   time.Time
	LastIssueDate    time.Time
	Language         string
	FrequencyOfIssue string
}

// PageStatus enumerates the monotonic (mostly) lifecycle of a Page.
type PageStatus string

const (
	PageStatusNew        PageStatus = "new"
	PageStatusQueued     PageStatus = "queued"
	PageStatusProcessing PageStatus = "processing"
	PageStatusOCRDone    PageStatus = "ocr_done"
	PageStatusSegmented  PageStatus = "segmented"
	PageStatusFailed     PageStatus = "failed"
)

// pageStatusOrder encodes the forward-only transitions; failed is the
// sole status that may be re-queued.
var pageStatusOrder = map[PageStatus]int{
	PageStatusNew:        0,
	PageStatusQueued:     1,
	PageStatusProcessing: 2,
	PageStatusOCRDone:    3,
	PageStatusSegmented:  4,
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to PageStatus) bool {
	if to == PageStatusFailed {
		return true
	}
	if from == PageStatusFailed {
		return to == PageStatusQueued
	}
	fromRank, fromOK := pageStatusOrder[from]
	toRank, toOK := pageStatusOrder[to]
	if !fromOK || !toOK {
		return false
	}
	return toRank >= fromRank
}

// Page is an original newspaper page acquired from an archive.
type Page struct {
	PageID       string
	PublicationID string // Publication.LCCN
	IssueDate    time.Time
	Sequence     int
	SourceSystem string

	ImagePath string
	OCRTextPath  *string
	OCRHOCRPath  *string
	OCREngineVersion *string

	Status   PageStatus
	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SegmentKind enumerates the classification of a bounding-box region.
type SegmentKind string

const (
	SegmentKindArticle  SegmentKind = "article"
	SegmentKindHeadline SegmentKind = "headline"
	SegmentKindImage    SegmentKind = "image"
	SegmentKindAd       SegmentKind = "ad"
)

// SegmentStatus tracks the review/promotion lifecycle of a segment.
type SegmentStatus string

const (
	SegmentStatusDraft    SegmentStatus = "draft"
	SegmentStatusReviewed SegmentStatus = "reviewed"
	SegmentStatusPromoted SegmentStatus = "promoted"
)

// BBox is a bounding box in page-image pixel coordinates.
type BBox struct {
	X, Y, W, H int
}

// Within reports whether bb lies entirely inside an image of the given
// dimensions.
func (bb BBox) Within(imageW, imageH int) bool {
	return bb.X >= 0 && bb.Y >= 0 &&
		bb.W > 0 && bb.H > 0 &&
		bb.X+bb.W <= imageW && bb.Y+bb.H <= imageH
}

// Segment is a bounding-box region of a page classified by kind.
type Segment struct {
	SegmentID  string
	PageID     string
	Kind       SegmentKind
	BBox       BBox
	Text       string
	Confidence float64
	ImageClipPath string
	Status     SegmentStatus
	ReviewedBy *string
	ReviewedAt *time.Time
	EventID    *string // non-nil only once Status == promoted

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Article is a composition of one or more segments from the same page.
type Article struct {
	ArticleID   string
	PageID      string
	SegmentIDs  []string
	Title       string
	Text        string
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
