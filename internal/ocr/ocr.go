// Package ocr defines the narrow OCR capability: run OCR over an
// image, then analyze its HOCR output into layout segments.
// Implementations wrap any OCR tool; the interface itself is
// synchronous — the pipeline supplies concurrency.
package ocr

import (
	"context"

	"github.com/nova-repository/newsrepo/internal/domain"
)

// Engine runs OCR against a page image.
type Engine interface {
	RunOCR(ctx context.Context, imageBytes []byte, languageHint string) (domain.OCRResult, error)
}

// LayoutAnalyzer turns HOCR output into classified bounding-box segments.
type LayoutAnalyzer interface {
	AnalyzeLayout(ctx context.Context, hocr string, imageBytes []byte) ([]domain.LayoutSegment, error)
}

// Default layout-segment thresholds.
const (
	DefaultMinSizePx     = 100
	DefaultMinConfidence = 0.5
)

// Filter drops segments smaller than minSizePx on their shorter side or
// below minConfidence.
func Filter(segments []domain.LayoutSegment, minSizePx int, minConfidence float64) []domain.LayoutSegment {
	out := make([]domain.LayoutSegment, 0, len(segments))
	for _, s := range segments {
		shortSide := s.BBox.W
		if s.BBox.H < shortSide {
			shortSide = s.BBox.H
		}
		if shortSide < minSizePx {
			continue
		}
		if s.Confidence < minConfidence {
			continue
		}
		out = append(out, s)
	}
	return out
}
