// Package layout analyzes HOCR markup into classified bounding-box
// segments (headline, article body, image, ad), the OCR-first
// counterpart to original_source's pre-OCR
// newspaper_structure_analyzer.py column/element analysis — this
// package works from the OCR engine's own area/line geometry instead
// of a separate vision pass, analyzing the HOCR the OCR engine
// already produced.
package layout

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
)

// Thresholds mirror the original's simplified headline/subheadline
// detection in newspaper_structure_analyzer.py's _process_column
// (elements under 60px tall near the top of a block read as
// headlines; narrow image-only blocks read as images).
const (
	headlineMaxHeight = 60
	bodyMinConfidence = 0.3
)

type Analyzer struct{}

func New() *Analyzer { return &Analyzer{} }

var bboxExpr = regexp.MustCompile(`bbox (\d+) (\d+) (\d+) (\d+)`)

type ocrArea struct {
	bbox  domain.BBox
	lines []ocrLine
}

type ocrLine struct {
	bbox  domain.BBox
	words []ocrWord
}

type ocrWord struct {
	text       string
	confidence float64
}

// AnalyzeLayout walks the HOCR tree's ocr_carea (content area) nodes,
// each containing ocr_line nodes of ocrx_word spans, and classifies
// each area as a headline, article body, image, or ad block based on
// its height and word density.
func (a *Analyzer) AnalyzeLayout(ctx context.Context, hocr string, imageBytes []byte) ([]domain.LayoutSegment, error) {
	doc, err := html.Parse(strings.NewReader(hocr))
	if err != nil {
		return nil, apperr.Wrap(apperr.CorruptData, "parse hocr", err)
	}

	areas := collectAreas(doc)
	segments := make([]domain.LayoutSegment, 0, len(areas))
	for _, area := range areas {
		segments = append(segments, classify(area))
	}
	return segments, nil
}

func collectAreas(n *html.Node) []ocrArea {
	var areas []ocrArea
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocr_carea") {
			if bbox, ok := parseBBox(attr(n, "title")); ok {
				areas = append(areas, ocrArea{bbox: bbox, lines: collectLines(n)})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return areas
}

func collectLines(n *html.Node) []ocrLine {
	var lines []ocrLine
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocr_line") {
			if bbox, ok := parseBBox(attr(n, "title")); ok {
				lines = append(lines, ocrLine{bbox: bbox, words: collectWords(n)})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return lines
}

func collectWords(n *html.Node) []ocrWord {
	var words []ocrWord
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "ocrx_word") {
			words = append(words, ocrWord{text: textOf(n), confidence: parseConfidence(attr(n, "title"))})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return words
}

func classify(area ocrArea) domain.LayoutSegment {
	text := areaText(area)
	confidence := areaConfidence(area)
	kind := domain.SegmentKindArticle

	switch {
	case len(area.lines) == 0:
		kind = domain.SegmentKindImage
	case area.bbox.H <= headlineMaxHeight && len(area.lines) <= 2:
		kind = domain.SegmentKindHeadline
	case confidence < bodyMinConfidence && wordCount(area) < 5:
		kind = domain.SegmentKindAd
	}

	return domain.LayoutSegment{
		Kind:       kind,
		BBox:       area.bbox,
		Text:       text,
		Confidence: confidence,
	}
}

func wordCount(area ocrArea) int {
	n := 0
	for _, l := range area.lines {
		n += len(l.words)
	}
	return n
}

func areaText(area ocrArea) string {
	var b strings.Builder
	for _, line := range area.lines {
		for _, w := range line.words {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(w.text)
		}
	}
	return b.String()
}

func areaConfidence(area ocrArea) float64 {
	total, n := 0.0, 0
	for _, line := range area.lines {
		for _, w := range line.words {
			total += w.confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func parseBBox(title string) (domain.BBox, bool) {
	m := bboxExpr.FindStringSubmatch(title)
	if m == nil {
		return domain.BBox{}, false
	}
	x0, _ := strconv.Atoi(m[1])
	y0, _ := strconv.Atoi(m[2])
	x1, _ := strconv.Atoi(m[3])
	y1, _ := strconv.Atoi(m[4])
	return domain.BBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

var confExpr = regexp.MustCompile(`x_wconf (\d+)`)

func parseConfidence(title string) float64 {
	m := confExpr.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return float64(v) / 100.0
}

func hasClass(n *html.Node, class string) bool {
	c := attr(n, "class")
	for _, field := range strings.Fields(c) {
		if field == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
	}
	return strings.TrimSpace(b.String())
}
