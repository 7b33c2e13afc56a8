package archive

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// StrategyName names one of the four search strategies, kept
// identical to the names used in the original Python client so log
// lines and tests can refer to them unambiguously.
type StrategyName string

const (
	StrategyAdvancedDateRange     StrategyName = "Web UI date format"
	StrategyDirectURLConstruction StrategyName = "Direct URL construction"
	StrategyYearPlusMonth         StrategyName = "Year plus month as keyword"
	StrategyYearOnly              StrategyName = "Year only"
)

// maxDirectRangeDays is the 730-day ceiling for strategy 2, beyond
// which direct URL range construction gives way to the year+month
// fallback.
const maxDirectRangeDays = 730

// maxDirectPagesPerIssue bounds how many sequence numbers the direct
// strategy probes per issue date, grounded on the original's 20-page cap.
const maxDirectPagesPerIssue = 20

// buildAdvancedSearchParams constructs strategy 1's query parameters:
// MM/DD/YYYY start/end, dateFilterType=range, searchType=advanced.
func buildAdvancedSearchParams(req searchExecParams) url.Values {
	v := url.Values{}
	if req.keywords != "" {
		v.Set("andtext", req.keywords)
	}
	if req.state != "" {
		v.Set("state", req.state)
	}
	if req.lccn != "" {
		v.Set("lccn", req.lccn)
	}
	v.Set("date1", req.dateStart.Format("01/02/2006"))
	v.Set("date2", req.dateEnd.Format("01/02/2006"))
	v.Set("dateFilterType", "range")
	v.Set("searchType", "advanced")
	v.Set("page", strconv.Itoa(req.page))
	v.Set("format", "json")
	return v
}

// buildYearPlusMonthParams constructs strategy 3's fallback query.
func buildYearPlusMonthParams(req searchExecParams) url.Values {
	v := url.Values{}
	if req.lccn != "" {
		v.Set("lccn", req.lccn)
	}
	if req.state != "" {
		v.Set("state", req.state)
	}
	v.Set("year", strconv.Itoa(req.dateStart.Year()))
	v.Set("ortext", req.dateStart.Month().String())
	v.Set("page", strconv.Itoa(req.page))
	v.Set("format", "json")
	return v
}

// buildYearOnlyParams constructs strategy 4's last-resort query.
func buildYearOnlyParams(req searchExecParams) url.Values {
	v := url.Values{}
	if req.lccn != "" {
		v.Set("lccn", req.lccn)
	}
	if req.state != "" {
		v.Set("state", req.state)
	}
	v.Set("year", strconv.Itoa(req.dateStart.Year()))
	v.Set("page", strconv.Itoa(req.page))
	v.Set("format", "json")
	return v
}

// directIssuePageURL builds the per-day, per-sequence JP2 probe URL
// used by strategy 2, e.g.
// https://chroniclingamerica.loc.gov/lccn/sn83045604/1892-01-01/ed-1/seq-1.jp2
func directIssuePageURL(baseURL, lccn string, day time.Time, seq int) string {
	return fmt.Sprintf("%s/lccn/%s/%s/ed-1/seq-%d", baseURL, lccn, day.Format("2006-01-02"), seq)
}

// withinRange filters results from strategies 2-4 to lie strictly
// within [start, end].
func withinRange(day, start, end time.Time) bool {
	d := day.Truncate(24 * time.Hour)
	return !d.Before(start.Truncate(24*time.Hour)) && !d.After(end.Truncate(24*time.Hour))
}

// searchExecParams is the normalized internal form each strategy
// builder consumes.
type searchExecParams struct {
	keywords  string
	lccn      string
	state     string
	dateStart time.Time
	dateEnd   time.Time
	page      int
}
