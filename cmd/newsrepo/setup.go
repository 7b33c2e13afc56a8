package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Initialize the repository, main, and search-index stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := newApp(cfg)
		defer a.Close()

		if _, err := a.Store(); err != nil {
			return err
		}
		if _, err := a.Connector(); err != nil {
			return err
		}
		if _, err := a.SearchIndex(); err != nil {
			return err
		}

		fmt.Printf("initialized repository at %s\n", cfg.RepositoryPath)
		fmt.Printf("initialized database at %s\n", cfg.DatabasePath)
		fmt.Printf("initialized main store at %s\n", cfg.MainDatabasePath)
		fmt.Printf("initialized search index at %s\n", cfg.SearchIndexPath)
		return nil
	},
}
