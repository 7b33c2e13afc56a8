// Package shellocr implements ocr.Engine by shelling out to a
// command-line OCR tool (tesseract by default), using the same
// exec.CommandContext/dry-run wrapper shape as this codebase's other
// external-process adapters.
//
// Grounded on original_source/src/newspaper_repository/ocr_processor.py
// and src/repository/ocr_processor.py for the tesseract invocation
// (hocr output format, -l language flag, confidence extraction).
package shellocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/nova-repository/newsrepo/internal/apperr"
	"github.com/nova-repository/newsrepo/internal/domain"
)

// Engine shells out to a command-line OCR binary, writing the page
// image to a temp file and reading back HOCR on stdout.
type Engine struct {
	binary  string
	tmpDir  string
	logger  *slog.Logger
	version string
}

type Option func(*Engine)

func WithBinary(path string) Option { return func(e *Engine) { e.binary = path } }
func WithTmpDir(dir string) Option  { return func(e *Engine) { e.tmpDir = dir } }

func New(logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{binary: "tesseract", tmpDir: os.TempDir(), logger: logger, version: "tesseract"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var confidenceExpr = regexp.MustCompile(`x_wconf (\d+)`)

// RunOCR writes imageBytes to a scratch file and runs the OCR binary
// against it with hocr output, per original_source's
// ocr_processor.py process_image (tesseract -l <lang> <img> stdout
// hocr). Per-word confidences embedded in the HOCR's x_wconf
// attributes are averaged into a single page-level confidence score.
func (e *Engine) RunOCR(ctx context.Context, imageBytes []byte, languageHint string) (domain.OCRResult, error) {
	tmp, err := os.CreateTemp(e.tmpDir, "newsrepo-ocr-*.img")
	if err != nil {
		return domain.OCRResult{}, apperr.Wrap(apperr.Internal, "create ocr scratch file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(imageBytes); err != nil {
		tmp.Close()
		return domain.OCRResult{}, apperr.Wrap(apperr.Internal, "write ocr scratch file", err)
	}
	if err := tmp.Close(); err != nil {
		return domain.OCRResult{}, apperr.Wrap(apperr.Internal, "close ocr scratch file", err)
	}

	lang := languageHint
	if lang == "" {
		lang = "eng"
	}

	args := []string{tmp.Name(), "stdout", "-l", lang, "hocr"}
	e.logger.Debug("running ocr", "binary", e.binary, "args", args)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return domain.OCRResult{}, apperr.Wrap(apperr.Internal,
			fmt.Sprintf("ocr command failed: %s", strings.TrimSpace(stderr.String())), err)
	}

	hocr := stdout.String()
	text := stripTags(hocr)
	confidence := averageConfidence(hocr)

	return domain.OCRResult{
		Text:          text,
		HOCR:          hocr,
		Confidence:    confidence,
		EngineVersion: e.version,
	}, nil
}

func averageConfidence(hocr string) float64 {
	matches := confidenceExpr.FindAllStringSubmatch(hocr, -1)
	if len(matches) == 0 {
		return 0
	}
	total := 0
	for _, m := range matches {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += v
	}
	return float64(total) / float64(len(matches)) / 100.0
}

var tagExpr = regexp.MustCompile(`<[^>]+>`)

func stripTags(hocr string) string {
	withoutTags := tagExpr.ReplaceAllString(hocr, " ")
	return strings.Join(strings.Fields(withoutTags), " ")
}

// MockEngine returns a fixed OCRResult, used by tests and dry-run
// pipeline invocations that should not depend on a tesseract binary
// being present.
type MockEngine struct {
	Result domain.OCRResult
	Err    error
}

func (m MockEngine) RunOCR(ctx context.Context, imageBytes []byte, languageHint string) (domain.OCRResult, error) {
	if m.Err != nil {
		return domain.OCRResult{}, m.Err
	}
	return m.Result, nil
}
