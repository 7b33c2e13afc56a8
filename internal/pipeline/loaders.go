package pipeline

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nova-repository/newsrepo/internal/apperr"
)

// DefaultImageLoader reads a page image from disk and decodes its
// bounds. JP2 (the archive's native format) is not among Go's
// standard decoders; a JP2-specific loader is expected to be supplied
// by the caller in that deployment, since this loader only covers the
// formats pages are transcoded to after download.
func DefaultImageLoader(path string) ([]byte, int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, apperr.Wrap(apperr.Internal, "read image file", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, 0, 0, nil
	}
	return data, cfg.Width, cfg.Height, nil
}

// DefaultTextLoader reads a small text file (HOCR, plain OCR text) in
// full.
func DefaultTextLoader(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "read text file", err)
	}
	return string(data), nil
}
