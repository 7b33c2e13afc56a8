package main

import (
	"github.com/spf13/cobra"

	"github.com/nova-repository/newsrepo/internal/config"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "newsrepo",
	Short: "Acquire, OCR, and index historical newspaper pages",
	Long: `newsrepo manages a local archive of historical newspaper pages:
downloading from Chronicling America, running OCR and layout analysis,
indexing the results for search, and promoting reviewed segments into
a cross-referenced events store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (yaml or json)")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(extractEntitiesCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(maintenanceCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(bulkCmd)
}
