package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

var _ ports.TextExtractor = (*Extractor)(nil)

// Extractor handles UTF-8 payloads: plain text, markdown, csv, json and
// whatever else decodes as text.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, doc *domain.Document, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", domain.WrapError(domain.ErrExtractionFailed, "decode text",
			fmt.Errorf("binary payload is not valid utf-8: %s", doc.FileName))
	}
	return strings.TrimSpace(string(data)), nil
}
