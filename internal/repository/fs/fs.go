// Package fs implements the repository store's on-disk file layout:
// a deterministic, sharded directory tree for page originals, OCR
// text/hocr, and segment image clips, so every stored path can be
// recomputed from a page's metadata alone.
//
// Grounded on original_source/src/newspaper_repository/file_manager.py's
// generate_path_components/generate_file_path (year/month nesting
// under a source directory), extended with a
// two-character hash shard once a source/year/month bucket holds more
// than shardThreshold entries, to keep any one directory from growing
// unbounded.
package fs

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

const shardThreshold = 10000

type Layout struct {
	baseDir string
}

func New(baseDir string) *Layout {
	return &Layout{baseDir: baseDir}
}

func (l *Layout) BaseDir() string { return l.baseDir }

// EnsureStructure creates the repository's top-level directories, per
// file_manager.py's create_directory_structure.
func (l *Layout) EnsureStructure() error {
	for _, dir := range []string{
		filepath.Join(l.baseDir, "originals"),
		filepath.Join(l.baseDir, "ocr", "text"),
		filepath.Join(l.baseDir, "ocr", "hocr"),
		filepath.Join(l.baseDir, "segments"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.Wrap(apperr.Internal, fmt.Sprintf("create directory %s", dir), err)
		}
	}
	return nil
}

var sanitizeExpr = regexp.MustCompile(`[^\w\s-]`)
var collapseExpr = regexp.MustCompile(`[-\s]+`)

func sanitizeSource(source string) string {
	s := sanitizeExpr.ReplaceAllString(source, "")
	s = strings.TrimSpace(s)
	s = collapseExpr.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}

// shard returns a two-character hex bucket derived from pageID, used
// once a source/year/month directory is expected to exceed
// shardThreshold entries.
func shard(pageID string) string {
	sum := sha1.Sum([]byte(pageID))
	return hex.EncodeToString(sum[:1])
}

// OriginalPath returns the deterministic path for a page's original
// image, given its source system, sequence number within the issue,
// publication LCCN, issue date (YYYY-MM-DD), extension, and an
// estimate of how many pages already exist in that bucket.
func (l *Layout) OriginalPath(pageID, sourceSystem, lccn, issueDate string, sequence int, ext string, bucketSize int) string {
	year, month := splitYearMonth(issueDate)
	source := sanitizeSource(sourceSystem)

	dir := filepath.Join(l.baseDir, "originals", source, year, month)
	if bucketSize > shardThreshold {
		dir = filepath.Join(dir, shard(pageID))
	}

	filename := fmt.Sprintf("%s_%s_%04d.%s", lccn, issueDate, sequence, strings.TrimPrefix(ext, "."))
	return filepath.Join(dir, filename)
}

func (l *Layout) OCRTextPath(pageID string) string {
	return filepath.Join(l.baseDir, "ocr", "text", pageID+".txt")
}

func (l *Layout) OCRHOCRPath(pageID string) string {
	return filepath.Join(l.baseDir, "ocr", "hocr", pageID+".hocr")
}

func (l *Layout) SegmentImagePath(pageID, segmentID, ext string) string {
	return filepath.Join(l.baseDir, "segments", pageID, segmentID+"."+strings.TrimPrefix(ext, "."))
}

func splitYearMonth(issueDate string) (string, string) {
	if len(issueDate) >= 7 {
		return issueDate[:4], issueDate[5:7]
	}
	return "0000", "00"
}

// WriteAtomic writes data to path via a temp file in the same
// directory followed by a rename, so a crash never leaves a partial
// file at the final path.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.Internal, fmt.Sprintf("create directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return apperr.Wrap(apperr.Internal, "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.Wrap(apperr.Internal, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.Internal, "close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.Internal, "rename into place", err)
	}
	return nil
}

// Remove deletes path if present, tolerating a missing file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.Internal, fmt.Sprintf("remove %s", path), err)
	}
	return nil
}
