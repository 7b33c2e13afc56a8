package main

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

var backupOutput string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive both SQLite stores and the repository image tree into one zip",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backupOutput == "" {
			return apperr.New(apperr.Validation, "backup requires --output")
		}

		a := newApp(cfg)
		defer a.Close()
		if _, err := a.Store(); err != nil {
			return err
		}

		f, err := os.Create(backupOutput)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "create backup archive", err)
		}
		defer f.Close()

		zw := zip.NewWriter(f)
		defer zw.Close()

		for _, dbPath := range []string{cfg.DatabasePath, cfg.MainDatabasePath, cfg.SearchIndexPath} {
			if _, err := os.Stat(dbPath); err != nil {
				continue
			}
			if err := addFileToZip(zw, dbPath, filepath.Base(dbPath)); err != nil {
				return err
			}
		}

		if err := addDirToZip(zw, cfg.RepositoryPath, "repository"); err != nil {
			return err
		}

		if err := zw.Close(); err != nil {
			return apperr.Wrap(apperr.Internal, "finalize backup archive", err)
		}

		fmt.Printf("wrote backup to %s\n", backupOutput)
		return nil
	},
}

func addFileToZip(zw *zip.Writer, srcPath, zipPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "open file for backup", err)
	}
	defer src.Close()

	dst, err := zw.Create(zipPath)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "create backup zip entry", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return apperr.Wrap(apperr.Internal, "copy file into backup archive", err)
	}
	return nil
}

func addDirToZip(zw *zip.Writer, root, prefix string) error {
	if _, err := os.Stat(root); err != nil {
		return nil
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return apperr.Wrap(apperr.Internal, "walk repository tree for backup", err)
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "compute relative backup path", err)
		}
		return addFileToZip(zw, path, filepath.Join(prefix, rel))
	})
}

func init() {
	backupCmd.Flags().StringVar(&backupOutput, "output", "", "output zip path (required)")
}
