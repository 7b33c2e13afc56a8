package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
	"github.com/nova-repository/newsrepo/internal/queue"
)

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Manage bulk operations: create, add, status, pause, resume, cancel, retry-failed",
}

var (
	bulkDescription string
	bulkOperation   string
	bulkPageIDs     []string
)

var bulkCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a bulk operation and enqueue one task per --page-id",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bulkOperation == "" {
			return apperr.New(apperr.Validation, "bulk create requires --operation")
		}
		a := newApp(cfg)
		defer a.Close()
		q, err := a.Queue()
		if err != nil {
			return err
		}

		params := make([]queue.EnqueueParams, 0, len(bulkPageIDs))
		for _, pageID := range bulkPageIDs {
			pageID := pageID
			params = append(params, queue.EnqueueParams{PageID: &pageID, Operation: domain.Operation(bulkOperation), MaxAttempts: 5})
		}

		bulk, err := q.BulkCreate(context.Background(), bulkDescription, domain.Operation(bulkOperation), params)
		if err != nil {
			return err
		}
		fmt.Printf("created bulk %s (%d tasks)\n", bulk.BulkID, bulk.Counters.Total)
		return nil
	},
}

var bulkAddCmd = &cobra.Command{
	Use:   "add [bulk-id]",
	Short: "Enqueue additional tasks under an existing bulk operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bulkOperation == "" {
			return apperr.New(apperr.Validation, "bulk add requires --operation")
		}
		a := newApp(cfg)
		defer a.Close()
		q, err := a.Queue()
		if err != nil {
			return err
		}

		params := make([]queue.EnqueueParams, 0, len(bulkPageIDs))
		for _, pageID := range bulkPageIDs {
			pageID := pageID
			params = append(params, queue.EnqueueParams{PageID: &pageID, Operation: domain.Operation(bulkOperation), MaxAttempts: 5})
		}

		if err := q.AddToBulk(context.Background(), args[0], params); err != nil {
			return err
		}
		fmt.Printf("added %d tasks to bulk %s\n", len(params), args[0])
		return nil
	},
}

var bulkStatusCmd = &cobra.Command{
	Use:   "status [bulk-id]",
	Short: "Show a bulk operation's status and counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		q, err := a.Queue()
		if err != nil {
			return err
		}

		bulk, err := q.GetBulk(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  status=%s\n", bulk.BulkID, bulk.Description, bulk.Status)
		fmt.Printf("  total=%d pending=%d in_progress=%d succeeded=%d failed=%d\n",
			bulk.Counters.Total, bulk.Counters.Pending, bulk.Counters.InProgress, bulk.Counters.Succeeded, bulk.Counters.Failed)
		return nil
	},
}

var bulkPauseCmd = &cobra.Command{
	Use:   "pause [bulk-id]",
	Short: "Pause a bulk operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		q, err := a.Queue()
		if err != nil {
			return err
		}
		return q.PauseBulk(context.Background(), args[0])
	},
}

var bulkResumeCmd = &cobra.Command{
	Use:   "resume [bulk-id]",
	Short: "Resume a paused bulk operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		q, err := a.Queue()
		if err != nil {
			return err
		}
		return q.ResumeBulk(context.Background(), args[0])
	},
}

var bulkCancelCmd = &cobra.Command{
	Use:   "cancel [bulk-id]",
	Short: "Cancel a bulk operation and every non-terminal child task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		q, err := a.Queue()
		if err != nil {
			return err
		}
		return q.CancelBulk(context.Background(), args[0])
	},
}

var bulkRetryFailedCmd = &cobra.Command{
	Use:   "retry-failed [bulk-id]",
	Short: "Requeue a bulk operation's failed tasks, leaving succeeded ones alone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		q, err := a.Queue()
		if err != nil {
			return err
		}
		n, err := q.RetryFailed(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d failed task(s)\n", n)
		return nil
	},
}

func init() {
	bulkCreateCmd.Flags().StringVar(&bulkDescription, "description", "", "human-readable description")
	bulkCreateCmd.Flags().StringVar(&bulkOperation, "operation", "", "task operation to enqueue (required)")
	bulkCreateCmd.Flags().StringSliceVar(&bulkPageIDs, "page-id", nil, "page id to enqueue a task for (repeatable)")

	bulkAddCmd.Flags().StringVar(&bulkOperation, "operation", "", "task operation to enqueue (required)")
	bulkAddCmd.Flags().StringSliceVar(&bulkPageIDs, "page-id", nil, "page id to enqueue a task for (repeatable)")

	bulkCmd.AddCommand(bulkCreateCmd, bulkAddCmd, bulkStatusCmd, bulkPauseCmd, bulkResumeCmd, bulkCancelCmd, bulkRetryFailedCmd)
}
