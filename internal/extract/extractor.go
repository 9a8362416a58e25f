// Package extract provides text extraction from uploaded document formats.
package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsupportedType is returned when a document's MIME type is outside the
// supported set. Ingestion treats it as a validation error: the document
// fails immediately and is never retried.
var ErrUnsupportedType = errors.New("unsupported file type for ingestion")

// Extractor extracts plain text from document files by MIME type.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
// text/* content is returned verbatim (UTF-8 repaired); application/pdf is
// extracted page by page. Any other MIME type returns ErrUnsupportedType.
func (e *Extractor) Extract(path, mimeType string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, mimeType)
}

// ExtractBytes extracts text from content based on the given MIME type.
func (e *Extractor) ExtractBytes(content []byte, mimeType string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case mt == "application/pdf":
		return extractPDF(content)
	case strings.HasPrefix(mt, "text/"):
		return extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
}
