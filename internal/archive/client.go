// Package archive implements the Chronicling America acquisition
// client: paginated search across four fallback strategies, format
// downloads, and earliest-issue-date resolution with date-range
// pruning.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/logging"
	"github.com/nova-repository/newsrepo/internal/ratelimit"
)

const defaultBaseURL = "https://chroniclingamerica.loc.gov"

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the archive's base URL (tests use httptest servers).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.client = hc }
}

// WithRateLimit overrides the requests-per-second refill rate (default 2).
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.http.limiter = ratelimit.New(rps) }
}

// WithMaxAttempts overrides the retry ceiling (default 5).
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.http.maxAttempts = n }
}

// Client is the acquisition client. It never writes to the repository
// directly; callers hand returned bytes and metadata to the
// repository store.
type Client struct {
	baseURL string
	http    *httpDoer
	logger  *slog.Logger
	dateProvider *DateProvider

	cacheMu       sync.Mutex
	earliestCache map[string]time.Time
}

func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http: &httpDoer{
			client:      &http.Client{Timeout: 60 * time.Second},
			limiter:     ratelimit.New(2.0),
			maxAttempts: 5,
			logger:      logging.Component(logger, "archive.http"),
		},
		logger:        logging.Component(logger, "archive.client"),
		earliestCache: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.logger = logging.Component(logger, "archive.http")
	c.dateProvider = NewDateProvider(c)
	return c
}

// chronAPIResponse is the subset of the search JSON response we parse.
type chronAPIResponse struct {
	TotalItems   int            `json:"totalItems"`
	EndIndex     int            `json:"endIndex"`
	StartIndex   int            `json:"startIndex"`
	ItemsPerPage int            `json:"itemsPerPage"`
	Items        []chronAPIItem `json:"items"`
}

type chronAPIItem struct {
	LCCN     string   `json:"lccn"`
	Date     string   `json:"date"` // YYYYMMDD
	Sequence int      `json:"sequence"`
	Title    string   `json:"title"`
	State    string   `json:"state"`
	City     []string `json:"city"`
	PDF      string   `json:"pdf"`
	JP2      string   `json:"jp2"`
	OCR      string   `json:"ocr_eng"`
}

func parseChronDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == 8 {
		return time.Parse("20060102", s)
	}
	return time.Parse("2006-01-02", s)
}

func (it chronAPIItem) toMetadata() domain.PageMetadata {
	day, _ := parseChronDate(it.Date)
	city := ""
	if len(it.City) > 0 {
		city = it.City[0]
	}
	formats := make([]string, 0, 3)
	urls := map[string]string{}
	if it.PDF != "" {
		formats = append(formats, "pdf")
		urls["pdf"] = it.PDF
	}
	if it.JP2 != "" {
		formats = append(formats, "jp2")
		urls["jp2"] = it.JP2
	}
	if it.OCR != "" {
		formats = append(formats, "ocr_text")
		urls["ocr_text"] = it.OCR
	}
	return domain.PageMetadata{
		LCCN:             it.LCCN,
		PublicationTitle: it.Title,
		PlaceCity:        city,
		PlaceState:       it.State,
		IssueDate:        day,
		Sequence:         it.Sequence,
		SourceSystem:     "chroniclingamerica",
		Formats:          formats,
		DownloadURLs:     urls,
	}
}

// Search walks the ordered strategy chain, applying earliest-date
// pruning first when both a date_start and an LCCN are given.
func (c *Client) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	result := domain.SearchResult{}

	dateStart := req.DateStart
	if req.PublicationID != "" && !req.DateStart.IsZero() {
		earliest, err := c.EarliestIssueDate(ctx, req.PublicationID)
		if err == nil && earliest.After(dateStart) {
			result.Adjustment = &domain.DateAdjustment{Original: req.DateStart, Adjusted: earliest}
			dateStart = earliest
		}
	}

	page := req.PageIndex
	if page < 1 {
		page = 1
	}

	params := searchExecParams{
		keywords:  req.Keywords,
		lccn:      req.PublicationID,
		state:     req.State,
		dateStart: dateStart,
		dateEnd:   req.DateEnd,
		page:      page,
	}

	pages, pagination, err := c.runStrategies(ctx, params)
	if err != nil {
		return result, err
	}

	filtered := make([]domain.PageMetadata, 0, len(pages))
	for _, p := range pages {
		if withinRange(p.IssueDate, dateStart, req.DateEnd) {
			filtered = append(filtered, p)
		}
	}

	result.Pages = filtered
	result.Pagination = pagination
	return result, nil
}

type strategyFunc func() ([]domain.PageMetadata, domain.PaginationSummary, error)

func (c *Client) runStrategies(ctx context.Context, params searchExecParams) ([]domain.PageMetadata, domain.PaginationSummary, error) {
	type namedStrategy struct {
		name StrategyName
		run  strategyFunc
	}

	strategies := []namedStrategy{
		{StrategyAdvancedDateRange, func() ([]domain.PageMetadata, domain.PaginationSummary, error) {
			return c.apiSearch(ctx, buildAdvancedSearchParams(params))
		}},
	}

	rangeDays := int(params.dateEnd.Sub(params.dateStart).Hours() / 24)
	if params.lccn != "" && rangeDays >= 0 && rangeDays <= maxDirectRangeDays {
		strategies = append(strategies, namedStrategy{StrategyDirectURLConstruction, func() ([]domain.PageMetadata, domain.PaginationSummary, error) {
			return c.directSearch(ctx, params)
		}})
	}

	strategies = append(strategies,
		namedStrategy{StrategyYearPlusMonth, func() ([]domain.PageMetadata, domain.PaginationSummary, error) {
			return c.apiSearch(ctx, buildYearPlusMonthParams(params))
		}},
		namedStrategy{StrategyYearOnly, func() ([]domain.PageMetadata, domain.PaginationSummary, error) {
			return c.apiSearch(ctx, buildYearOnlyParams(params))
		}},
	)

	var lastErr error
	for _, s := range strategies {
		pages, pagination, err := s.run()
		if err != nil {
			c.logger.Warn("search strategy failed", "strategy", s.name, "error", err)
			lastErr = err
			continue
		}
		if len(pages) > 0 {
			c.logger.Info("search strategy succeeded", "strategy", s.name, "count", len(pages))
			return pages, pagination, nil
		}
		c.logger.Debug("search strategy found no results", "strategy", s.name)
	}

	if lastErr != nil {
		return nil, domain.PaginationSummary{}, lastErr
	}
	return nil, domain.PaginationSummary{}, nil
}

// apiSearch executes one of the three API-based strategies (1, 3, 4).
func (c *Client) apiSearch(ctx context.Context, params url.Values) ([]domain.PageMetadata, domain.PaginationSummary, error) {
	endpoint := c.baseURL + "/search/pages/results/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildURL(endpoint, params), nil)
	if err != nil {
		return nil, domain.PaginationSummary{}, apperr.Wrap(apperr.Internal, "build search request", err)
	}

	resp, err := c.http.do(ctx, req)
	if err != nil {
		return nil, domain.PaginationSummary{}, err
	}
	defer resp.Body.Close()

	var parsed chronAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.PaginationSummary{}, apperr.Wrap(apperr.CorruptData, "decode search response", err)
	}

	pages := make([]domain.PageMetadata, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		pages = append(pages, item.toMetadata())
	}

	pagination := domain.PaginationSummary{
		TotalItems: parsed.TotalItems,
	}
	if parsed.ItemsPerPage > 0 {
		pagination.TotalPages = (parsed.TotalItems + parsed.ItemsPerPage - 1) / parsed.ItemsPerPage
	}
	if p, err := pageParamValue(params); err == nil {
		pagination.CurrentPage = p
	}

	return pages, pagination, nil
}

func pageParamValue(v url.Values) (int, error) {
	var n int
	_, err := fmt.Sscanf(v.Get("page"), "%d", &n)
	return n, err
}

// directSearch implements strategy 2: per-day direct URL construction,
// HEAD-probing sequence numbers 1..20 for each day in range.
func (c *Client) directSearch(ctx context.Context, params searchExecParams) ([]domain.PageMetadata, domain.PaginationSummary, error) {
	var pages []domain.PageMetadata

	for day := params.dateStart; !day.After(params.dateEnd); day = day.AddDate(0, 0, 1) {
		foundAny := false
		for seq := 1; seq <= maxDirectPagesPerIssue; seq++ {
			base := directIssuePageURL(c.baseURL, params.lccn, day, seq)
			exists, err := c.headExists(ctx, base+".jp2")
			if err != nil {
				return nil, domain.PaginationSummary{}, err
			}
			if !exists {
				break
			}
			foundAny = true
			pages = append(pages, domain.PageMetadata{
				LCCN:         params.lccn,
				IssueDate:    day,
				Sequence:     seq,
				SourceSystem: "chroniclingamerica",
				Formats:      []string{"jp2", "pdf", "ocr_text"},
				DownloadURLs: map[string]string{
					"jp2":      base + ".jp2",
					"pdf":      base + ".pdf",
					"ocr_text": base + "/ocr/",
				},
			})
		}
		_ = foundAny
	}

	pagination := domain.PaginationSummary{TotalItems: len(pages), TotalPages: 1, CurrentPage: 1}
	return pages, pagination, nil
}

func (c *Client) headExists(ctx context.Context, u string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "build head request", err)
	}
	resp, err := c.http.do(ctx, req)
	if err != nil {
		if apperr.Is(err, apperr.PermanentUpstream) {
			return false, nil
		}
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Download fetches the requested formats for a page and returns a
// content manifest.
func (c *Client) Download(ctx context.Context, meta domain.PageMetadata, formats []string) (domain.DownloadResult, error) {
	result := domain.DownloadResult{Bytes: map[string][]byte{}}

	for _, fmtName := range formats {
		u, ok := meta.DownloadURLs[fmtName]
		if !ok {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return result, apperr.Wrap(apperr.Internal, "build download request", err)
		}
		resp, err := c.http.do(ctx, req)
		if err != nil {
			return result, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return result, apperr.Wrap(apperr.TransientUpstream, "read download body", err)
		}

		result.Bytes[fmtName] = body
		result.Manifest = append(result.Manifest, domain.DownloadManifestEntry{
			Format:      fmtName,
			ContentType: resp.Header.Get("Content-Type"),
			SizeBytes:   len(body),
			SHA256:      sha256Hex(body),
		})
	}

	return result, nil
}

// EarliestIssueDate resolves the earliest known issue date for lccn,
// consulting the strategy chain (cache -> static dataset -> JSON
// endpoint -> HTML scrape) and caching the winning result.
func (c *Client) EarliestIssueDate(ctx context.Context, lccn string) (time.Time, error) {
	c.cacheMu.Lock()
	if cached, ok := c.earliestCache[lccn]; ok {
		c.cacheMu.Unlock()
		return cached, nil
	}
	c.cacheMu.Unlock()

	date, err := c.dateProvider.Resolve(ctx, lccn)
	if err != nil {
		return time.Time{}, err
	}

	c.cacheMu.Lock()
	c.earliestCache[lccn] = date
	c.cacheMu.Unlock()

	return date, nil
}
