package archive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/logging"
)

// TestEarliestDatePruning covers a request starting
// in 1800 against sn83045604 must be pruned to the bundled dataset's
// 1888-05-11 and the adjustment surfaced to the caller.
func TestEarliestDatePruning(t *testing.T) {
	var capturedDate1, capturedDate2 string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			// Simulate no direct-URL pages present, so strategy 2 never
			// overwrites the captured advanced-search parameters below.
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("dateFilterType") == "range" {
			capturedDate1 = r.URL.Query().Get("date1")
			capturedDate2 = r.URL.Query().Get("date2")
		}
		resp := chronAPIResponse{TotalItems: 0, ItemsPerPage: 20, Items: nil}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(logging.New("error"), WithBaseURL(server.URL), WithRateLimit(1000), WithMaxAttempts(1))

	req := domain.SearchRequest{
		PublicationID: "sn83045604",
		DateStart:     date(1800, 1, 1),
		DateEnd:       date(1888, 12, 31),
		PageIndex:     1,
	}

	result, err := client.Search(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result.Adjustment)
	require.Equal(t, date(1800, 1, 1), result.Adjustment.Original)
	require.Equal(t, date(1888, 5, 11), result.Adjustment.Adjusted)
	require.Equal(t, "05/11/1888", capturedDate1)
	require.Equal(t, "12/31/1888", capturedDate2)
}

// TestAdvancedSearchParameters covers the first
// upstream request must carry the exact advanced-search parameter set.
func TestAdvancedSearchParameters(t *testing.T) {
	var gotQuery map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"date1":          r.URL.Query().Get("date1"),
			"date2":          r.URL.Query().Get("date2"),
			"dateFilterType": r.URL.Query().Get("dateFilterType"),
			"searchType":     r.URL.Query().Get("searchType"),
			"lccn":           r.URL.Query().Get("lccn"),
			"page":           r.URL.Query().Get("page"),
			"format":         r.URL.Query().Get("format"),
		}
		resp := chronAPIResponse{TotalItems: 1, ItemsPerPage: 20, Items: []chronAPIItem{
			{LCCN: "sn83045604", Date: "18910415", Sequence: 1, Title: "t"},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(logging.New("error"), WithBaseURL(server.URL), WithRateLimit(1000), WithMaxAttempts(1))

	req := domain.SearchRequest{
		PublicationID: "sn83045604",
		DateStart:     date(1891, 4, 1),
		DateEnd:       date(1891, 4, 30),
		PageIndex:     1,
	}

	_, err := client.Search(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, "04/01/1891", gotQuery["date1"])
	require.Equal(t, "04/30/1891", gotQuery["date2"])
	require.Equal(t, "range", gotQuery["dateFilterType"])
	require.Equal(t, "advanced", gotQuery["searchType"])
	require.Equal(t, "sn83045604", gotQuery["lccn"])
	require.Equal(t, "1", gotQuery["page"])
	require.Equal(t, "json", gotQuery["format"])
}

// TestRateLimitHandling covers a 429 with Retry-After
// must push the next attempt out by at least that long.
func TestRateLimitHandling(t *testing.T) {
	attempt := 0
	var secondAttemptAt time.Time
	firstAttemptAt := time.Time{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt == 1 {
			firstAttemptAt = time.Now()
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		secondAttemptAt = time.Now()
		resp := chronAPIResponse{TotalItems: 0, ItemsPerPage: 20}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := New(logging.New("error"), WithBaseURL(server.URL), WithRateLimit(1000), WithMaxAttempts(3))

	req := domain.SearchRequest{
		DateStart: date(2000, 1, 1),
		DateEnd:   date(2000, 1, 2),
		PageIndex: 1,
	}

	_, err := client.Search(context.Background(), req)
	require.NoError(t, err)
	require.GreaterOrEqual(t, secondAttemptAt.Sub(firstAttemptAt), 2*time.Second)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
