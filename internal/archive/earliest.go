package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

// DateProvider resolves a publication's earliest known issue date by
// walking a chain: local cache (handled by
// Client.EarliestIssueDate), bundled static dataset, the archive's
// per-publication JSON endpoint, then an HTML scrape of the listing
// page. The first successful source wins.
//
// Grounded on original_source/src/api/chronicling_america_earliest_dates.py
// (the static dataset) and chronicling_america_improved.py's
// get_earliest_issue_date (the JSON/HTML fallbacks), reordered to try
// the JSON endpoint before the HTML scrape fallback, the reverse of
// the order the original tries them in.
type DateProvider struct {
	client *Client
}

func NewDateProvider(c *Client) *DateProvider {
	return &DateProvider{client: c}
}

func (p *DateProvider) Resolve(ctx context.Context, lccn string) (time.Time, error) {
	if d, ok := p.fromStaticDataset(lccn); ok {
		return d, nil
	}

	if d, err := p.fromJSONEndpoint(ctx, lccn); err == nil {
		return d, nil
	}

	d, err := p.fromHTMLScrape(ctx, lccn)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.NotFound, fmt.Sprintf("no earliest issue date found for %s", lccn), err)
	}
	return d, nil
}

func (p *DateProvider) fromStaticDataset(lccn string) (time.Time, bool) {
	entry, ok := staticDates[lccn]
	if !ok {
		return time.Time{}, false
	}
	return entry.EarliestDate, true
}

type issuesResponse struct {
	Issues []struct {
		DateIssued string `json:"date_issued"`
	} `json:"issues"`
}

func (p *DateProvider) fromJSONEndpoint(ctx context.Context, lccn string) (time.Time, error) {
	u := fmt.Sprintf("%s/lccn/%s/issues.json", p.client.baseURL, lccn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.Internal, "build issues request", err)
	}

	resp, err := p.client.http.do(ctx, req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	var parsed issuesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return time.Time{}, apperr.Wrap(apperr.CorruptData, "decode issues response", err)
	}

	if len(parsed.Issues) == 0 {
		return time.Time{}, apperr.New(apperr.NotFound, "no issues listed")
	}

	earliest := time.Time{}
	for _, issue := range parsed.Issues {
		d, err := time.Parse("2006-01-02", issue.DateIssued)
		if err != nil {
			continue
		}
		if earliest.IsZero() || d.Before(earliest) {
			earliest = d
		}
	}
	if earliest.IsZero() {
		return time.Time{}, apperr.New(apperr.NotFound, "no parseable issue dates")
	}
	return earliest, nil
}

var earliestIssueSelector = "span[class*=earliest-issue]"
var monthDayYearExpr = regexp.MustCompile(`[A-Za-z]+ \d{1,2}, \d{4}`)

func (p *DateProvider) fromHTMLScrape(ctx context.Context, lccn string) (time.Time, error) {
	u := fmt.Sprintf("%s/lccn/%s", p.client.baseURL, lccn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.Internal, "build listing request", err)
	}

	resp, err := p.client.http.do(ctx, req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.CorruptData, "parse listing html", err)
	}

	text := doc.Find(earliestIssueSelector).First().Text()
	if text == "" {
		doc.Find(".newspaper-metadata tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			label := row.Find("th").First().Text()
			if containsFold(label, "earliest") {
				text = row.Find("td").First().Text()
				return false
			}
			return true
		})
	}

	match := monthDayYearExpr.FindString(text)
	if match == "" {
		return time.Time{}, apperr.New(apperr.NotFound, "no earliest-issue text found in listing page")
	}

	d, err := time.Parse("January 2, 2006", match)
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.CorruptData, "parse earliest-issue date text", err)
	}
	return d, nil
}

func containsFold(s, substr string) bool {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(substr)).MatchString(s)
}
