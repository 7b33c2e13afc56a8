package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
)

var (
	searchSource    string
	searchFuzzy     bool
	searchLimit     int
	searchOffset    int
	searchStartDate string
	searchEndDate   string
	searchFacets    []string
	searchFilters   []string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the full-text index across pages, segments, articles, and events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseDate(searchStartDate)
		if err != nil {
			return err
		}
		end, err := parseDate(searchEndDate)
		if err != nil {
			return err
		}
		filters, err := parseFilters(searchFilters)
		if err != nil {
			return err
		}

		a := newApp(cfg)
		defer a.Close()
		index, err := a.SearchIndex()
		if err != nil {
			return err
		}

		resp, err := index.Search(context.Background(), domain.SearchOptions{
			Query:     args[0],
			Source:    domain.DocumentSource(searchSource),
			Limit:     searchLimit,
			Offset:    searchOffset,
			Fuzzy:     searchFuzzy,
			Facets:    searchFacets,
			Filters:   filters,
			DateStart: start,
			DateEnd:   end,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%d result(s) in %s\n", resp.Total, resp.ExecutionTime)
		for _, hit := range resp.Hits {
			marker := ""
			if hit.FuzzyMatch {
				marker = " (fuzzy)"
			}
			fmt.Printf("[%s/%s] %s%s score=%.3f\n", hit.Entry.Source, hit.Entry.Type, hit.Entry.Title, marker, hit.Score)
			if hit.Snippet != "" {
				fmt.Printf("    %s\n", hit.Snippet)
			}
		}
		for facet, values := range resp.Facets {
			fmt.Printf("facet %s:\n", facet)
			for val, count := range values {
				fmt.Printf("    %s: %d\n", val, count)
			}
		}
		return nil
	},
}

// parseFilters turns repeated --filter key=value flags into a map.
func parseFilters(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, entry := range raw {
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, apperr.Newf(apperr.Validation, "invalid --filter %q, want key=value", entry)
		}
		out[kv[0]] = kv[1]
	}
	return out, nil
}

func init() {
	searchCmd.Flags().StringVar(&searchSource, "source", "", "restrict to one document source (repository|main)")
	searchCmd.Flags().BoolVar(&searchFuzzy, "fuzzy", false, "fall back to edit-distance matching when no exact match is found")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum results to return")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "result offset for pagination")
	searchCmd.Flags().StringVar(&searchStartDate, "start-date", "", "restrict to documents dated on or after this date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchEndDate, "end-date", "", "restrict to documents dated on or before this date (YYYY-MM-DD)")
	searchCmd.Flags().StringSliceVar(&searchFacets, "facet", nil, "facet name to return aggregate counts for (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchFilters, "filter", nil, "facet filter as key=value (repeatable)")
}
