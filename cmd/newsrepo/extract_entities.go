package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/queue"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
)

var (
	extractPublication string
	extractStartDate   string
	extractEndDate     string
)

// extractEntitiesCmd enqueues one OpPromote task per reviewed,
// not-yet-promoted segment on the publication's pages — this
// codebase's generalization of "entity extraction" from the original
// system's per-article entity tagging to promoting reviewed segments
// into the main store's events, the closest first-class notion of
// "extracted entity" this domain carries (the GUI's entity *editor*
// remains explicitly out of scope; enqueuing the extraction itself is
// a CLI/queue concern untouched by that exclusion).
var extractEntitiesCmd = &cobra.Command{
	Use:   "extract-entities",
	Short: "Enqueue promotion of reviewed segments into the main events store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if extractPublication == "" {
			return apperr.New(apperr.Validation, "extract-entities requires --publication")
		}
		start, err := parseDate(extractStartDate)
		if err != nil {
			return err
		}
		end, err := parseDate(extractEndDate)
		if err != nil {
			return err
		}

		a := newApp(cfg)
		defer a.Close()
		store, err := a.Store()
		if err != nil {
			return err
		}
		q, err := a.Queue()
		if err != nil {
			return err
		}

		ctx := context.Background()
		pages, err := store.SearchPages(ctx, sqlstore.PageFilter{
			PublicationID: extractPublication,
			Status:        domain.PageStatusSegmented,
			DateStart:     start,
			DateEnd:       end,
		}, 0, 0)
		if err != nil {
			return err
		}

		enqueued := 0
		for _, page := range pages {
			segments, err := store.GetSegmentsForPage(ctx, page.PageID)
			if err != nil {
				return err
			}
			for _, seg := range segments {
				if seg.Status != domain.SegmentStatusReviewed {
					continue
				}
				segmentID := seg.SegmentID
				if _, err := q.Enqueue(ctx, queue.EnqueueParams{
					PageID:      &page.PageID,
					Operation:   domain.OpPromote,
					Parameters:  map[string]string{"segment_id": segmentID},
					MaxAttempts: 3,
				}); err != nil {
					return err
				}
				enqueued++
			}
		}

		fmt.Printf("enqueued %d promote tasks\n", enqueued)
		return nil
	},
}

func init() {
	extractEntitiesCmd.Flags().StringVar(&extractPublication, "publication", "", "publication LCCN (required)")
	extractEntitiesCmd.Flags().StringVar(&extractStartDate, "start-date", "", "issue date range start (YYYY-MM-DD)")
	extractEntitiesCmd.Flags().StringVar(&extractEndDate, "end-date", "", "issue date range end (YYYY-MM-DD)")
}
