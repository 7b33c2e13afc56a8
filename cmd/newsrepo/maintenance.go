package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	maintenanceVacuum       bool
	maintenanceAnalyze      bool
	maintenanceRebuildIndex bool
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run housekeeping: vacuum, analyze, and/or rebuild the search index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()
		store, err := a.Store()
		if err != nil {
			return err
		}

		ctx := context.Background()
		if maintenanceVacuum {
			if err := store.Vacuum(ctx); err != nil {
				return err
			}
			fmt.Println("vacuumed repository database")
		}
		if maintenanceAnalyze {
			if err := store.Analyze(ctx); err != nil {
				return err
			}
			fmt.Println("analyzed repository database")
		}
		if maintenanceRebuildIndex {
			conn, err := a.Connector()
			if err != nil {
				return err
			}
			index, err := a.SearchIndex()
			if err != nil {
				return err
			}
			n, err := index.Reindex(ctx, conn)
			if err != nil {
				return err
			}
			fmt.Printf("rebuilt search index with %d document(s)\n", n)
		}
		return nil
	},
}

func init() {
	maintenanceCmd.Flags().BoolVar(&maintenanceVacuum, "vacuum", false, "run VACUUM on the repository database")
	maintenanceCmd.Flags().BoolVar(&maintenanceAnalyze, "analyze", false, "run ANALYZE on the repository database")
	maintenanceCmd.Flags().BoolVar(&maintenanceRebuildIndex, "rebuild-index", false, "drop and rebuild the search index from both stores")
}
