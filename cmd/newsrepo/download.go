package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
)

var (
	downloadSource      string
	downloadPublication string
	downloadStartDate   string
	downloadEndDate     string
	downloadMaxItems    int
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Search the archive and store matching pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		if downloadPublication == "" {
			return apperr.New(apperr.Validation, "download requires --publication")
		}
		start, err := parseDate(downloadStartDate)
		if err != nil {
			return err
		}
		end, err := parseDate(downloadEndDate)
		if err != nil {
			return err
		}

		a := newApp(cfg)
		defer a.Close()
		store, err := a.Store()
		if err != nil {
			return err
		}
		client := a.ArchiveClient()

		ctx := context.Background()
		stored := 0
		pageIndex := 1
		for {
			result, err := client.Search(ctx, domain.SearchRequest{
				PublicationID: downloadPublication,
				DateStart:     start,
				DateEnd:       end,
				PageIndex:     pageIndex,
				PageSize:      20,
			})
			if err != nil {
				return err
			}
			if result.Adjustment != nil {
				fmt.Printf("earliest-date adjustment: requested %s, used %s\n",
					result.Adjustment.Original.Format("2006-01-02"), result.Adjustment.Adjusted.Format("2006-01-02"))
			}

			for _, meta := range result.Pages {
				if downloadMaxItems > 0 && stored >= downloadMaxItems {
					break
				}
				dl, err := client.Download(ctx, meta, []string{"jp2"})
				if err != nil {
					return err
				}
				imageBytes, ok := dl.Bytes["jp2"]
				if !ok {
					continue
				}
				sourceSystem := downloadSource
				if sourceSystem == "" {
					sourceSystem = meta.SourceSystem
				}
				_, err = store.AddPage(ctx, sqlstore.AddPageParams{
					PublicationID: meta.LCCN,
					IssueDate:     meta.IssueDate,
					Sequence:      meta.Sequence,
					SourceSystem:  sourceSystem,
					Extension:     "jp2",
					ImageBytes:    imageBytes,
					Metadata:      map[string]string{"publication_title": meta.PublicationTitle},
				})
				if err != nil && apperr.KindOf(err) != apperr.Conflict {
					return err
				}
				stored++
			}

			if downloadMaxItems > 0 && stored >= downloadMaxItems {
				break
			}
			if result.Pagination.CurrentPage >= result.Pagination.TotalPages {
				break
			}
			pageIndex++
		}

		fmt.Printf("stored %d pages\n", stored)
		return nil
	},
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.Validation, "invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func init() {
	downloadCmd.Flags().StringVar(&downloadSource, "source", "", "source system label (defaults to the archive-reported value)")
	downloadCmd.Flags().StringVar(&downloadPublication, "publication", "", "publication LCCN (required)")
	downloadCmd.Flags().StringVar(&downloadStartDate, "start-date", "", "issue date range start (YYYY-MM-DD)")
	downloadCmd.Flags().StringVar(&downloadEndDate, "end-date", "", "issue date range end (YYYY-MM-DD)")
	downloadCmd.Flags().IntVar(&downloadMaxItems, "max-items", 0, "stop after storing this many pages (0 = unlimited)")
}
