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
	processPublication string
	processReprocess   bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Enqueue OCR tasks for a publication's pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		if processPublication == "" {
			return apperr.New(apperr.Validation, "process requires --publication")
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
		statuses := []domain.PageStatus{domain.PageStatusNew}
		if processReprocess {
			statuses = append(statuses, domain.PageStatusOCRDone)
		}

		enqueued := 0
		for _, status := range statuses {
			pages, err := store.SearchPages(ctx, sqlstore.PageFilter{
				PublicationID: processPublication,
				Status:        status,
			}, 0, 0)
			if err != nil {
				return err
			}
			for _, page := range pages {
				pageID := page.PageID
				if _, err := q.Enqueue(ctx, queue.EnqueueParams{
					PageID:      &pageID,
					Operation:   domain.OpOCR,
					MaxAttempts: 5,
				}); err != nil {
					return err
				}
				enqueued++
			}
		}

		fmt.Printf("enqueued %d ocr tasks\n", enqueued)
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processPublication, "publication", "", "publication LCCN (required)")
	processCmd.Flags().BoolVar(&processReprocess, "reprocess", false, "also re-enqueue already ocr_done pages")
}
