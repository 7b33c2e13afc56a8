package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/repository/sqlstore"
)

var (
	listPublication string
	listStatus      string
	listStartDate   string
	listEndDate     string
	listLimit       int
	listOffset      int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored pages, optionally filtered by publication, status, or date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseDate(listStartDate)
		if err != nil {
			return err
		}
		end, err := parseDate(listEndDate)
		if err != nil {
			return err
		}

		a := newApp(cfg)
		defer a.Close()
		store, err := a.Store()
		if err != nil {
			return err
		}

		pages, err := store.SearchPages(context.Background(), sqlstore.PageFilter{
			PublicationID: listPublication,
			Status:        domain.PageStatus(listStatus),
			DateStart:     start,
			DateEnd:       end,
		}, listLimit, listOffset)
		if err != nil {
			return err
		}

		for _, page := range pages {
			fmt.Printf("%s  %s  %s seq=%d  %s\n",
				page.PageID, page.PublicationID, page.IssueDate.Format("2006-01-02"), page.Sequence, page.Status)
		}
		fmt.Printf("%d page(s)\n", len(pages))
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listPublication, "publication", "", "restrict to one publication LCCN")
	listCmd.Flags().StringVar(&listStatus, "status", "", "restrict to one page status")
	listCmd.Flags().StringVar(&listStartDate, "start-date", "", "issue date range start (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listEndDate, "end-date", "", "issue date range end (YYYY-MM-DD)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum pages to list (0 = unlimited)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "pagination offset")
}
