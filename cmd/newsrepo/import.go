package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

var (
	importSourceType string
	importSourcePath string
	importMapping    string
)

// importMappingSpec names which source column (CSV header, or sqlite
// column) carries each target field. Fields left blank in the mapping
// JSON are skipped; segment_id and segment_text are required for a
// row to produce a segment update.
type importMappingSpec struct {
	PageID      string `json:"page_id"`
	SegmentID   string `json:"segment_id"`
	SegmentText string `json:"segment_text"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import segment text corrections from a CSV file or a sibling sqlite database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importSourcePath == "" {
			return apperr.New(apperr.Validation, "import requires --source-path")
		}
		mapping := importMappingSpec{PageID: "page_id", SegmentID: "segment_id", SegmentText: "segment_text"}
		if importMapping != "" {
			if err := json.Unmarshal([]byte(importMapping), &mapping); err != nil {
				return apperr.Wrap(apperr.Validation, "parse --mapping json", err)
			}
		}

		a := newApp(cfg)
		defer a.Close()
		store, err := a.Store()
		if err != nil {
			return err
		}

		var rows []map[string]string
		switch importSourceType {
		case "csv":
			rows, err = readCSVRows(importSourcePath)
		case "sqlite":
			rows, err = readSQLiteRows(importSourcePath, mapping)
		default:
			return apperr.Newf(apperr.Validation, "import --source-type must be csv or sqlite, got %q", importSourceType)
		}
		if err != nil {
			return err
		}

		ctx := context.Background()
		imported := 0
		for _, row := range rows {
			segmentID := row[mapping.SegmentID]
			text := row[mapping.SegmentText]
			if segmentID == "" || text == "" {
				continue
			}
			if err := store.UpdateSegmentText(ctx, segmentID, text); err != nil {
				if apperr.KindOf(err) == apperr.NotFound {
					continue
				}
				return err
			}
			imported++
		}

		cmd.Printf("imported %d segment correction(s)\n", imported)
		return nil
	},
}

func readCSVRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open import csv", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "read import csv header", err)
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.Validation, "read import csv row", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readSQLiteRows(path string, mapping importMappingSpec) ([]map[string]string, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open import sqlite source", err)
	}
	defer db.Close()

	query := "SELECT " + mapping.PageID + ", " + mapping.SegmentID + ", " + mapping.SegmentText + " FROM segment_corrections"
	sqlRows, err := db.Query(query)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query import sqlite source", err)
	}
	defer sqlRows.Close()

	var rows []map[string]string
	for sqlRows.Next() {
		var pageID, segmentID, text string
		if err := sqlRows.Scan(&pageID, &segmentID, &text); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan import sqlite row", err)
		}
		rows = append(rows, map[string]string{
			mapping.PageID:      pageID,
			mapping.SegmentID:   segmentID,
			mapping.SegmentText: text,
		})
	}
	if err := sqlRows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate import sqlite rows", err)
	}
	return rows, nil
}

func init() {
	importCmd.Flags().StringVar(&importSourceType, "source-type", "csv", "source type: csv or sqlite")
	importCmd.Flags().StringVar(&importSourcePath, "source-path", "", "path to the source file (required)")
	importCmd.Flags().StringVar(&importMapping, "mapping", "", "JSON column mapping: {\"page_id\":..,\"segment_id\":..,\"segment_text\":..}")
}
