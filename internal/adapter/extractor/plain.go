package extractor

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"docchat/internal/domain"
)

// PlainText decodes the formats the pipeline can handle without an external
// parser. PDF and DOCX extraction belongs to a separate service behind the
// same port; this adapter is the in-process boundary.
type PlainText struct{}

func NewPlainText() *PlainText {
	return &PlainText{}
}

func (*PlainText) Extract(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".text", ".md", ".markdown":
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ext)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrExtraction, filename)
	}

	return string(data), nil
}
