// Package extract converts uploaded document bytes into plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/soilwise/soilwise/internal/log"
)

var (
	// ErrUnsupportedFormat reports an upload whose extension has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument reports a document that yielded no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// SupportedExtensions lists the file extensions Text accepts, lowercase with
// the leading dot.
var SupportedExtensions = []string{".pdf", ".txt", ".md"}

// Text extracts plain text from raw document bytes, dispatching on the
// filename extension. Extension matching is case insensitive.
func Text(filename string, data []byte, logger log.Logger) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return pdfText(filename, data, logger)
	case ".txt", ".md":
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}

// pdfText extracts text from an in-memory PDF. Pages that fail to render are
// logged and skipped so a single damaged page does not sink the whole
// document.
func pdfText(filename string, data []byte, logger log.Logger) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			logger.Warn("empty segment, page text extraction failed",
				"filename", filename, "page", i+1, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			logger.Warn("empty segment, page contains no text",
				"filename", filename, "page", i+1)
			continue
		}
		pages = append(pages, text)
	}

	if len(pages) == 0 {
		return "", ErrEmptyDocument
	}

	return strings.Join(pages, "\n\n"), nil
}
