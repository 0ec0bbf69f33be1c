package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

var _ ports.TextExtractor = (*Extractor)(nil)

// minTextChars is the threshold below which a PDF is treated as scanned
// or image-only and handed to the vision fallback.
const minTextChars = 100

// VisionFallback describes a payload no text layer could be read from.
type VisionFallback interface {
	Describe(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Extractor reads the text layer of a PDF page by page. Documents whose
// text layer is effectively empty go through the vision fallback when one
// is configured.
type Extractor struct {
	vision VisionFallback
}

func NewExtractor(vision VisionFallback) *Extractor {
	return &Extractor{vision: vision}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, data []byte) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrExtractionFailed, "parse pdf", fmt.Errorf("parser panic: %v", r))
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "parse pdf", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			// A page without a readable text layer is skipped; the
			// minimum-length check below catches fully scanned files.
			continue
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			pages = append(pages, pageText)
		}
	}

	text = strings.TrimSpace(strings.Join(pages, "\n\n"))
	if len(text) >= minTextChars {
		return text, nil
	}

	if e.vision != nil {
		description, descErr := e.vision.Describe(ctx, data, "application/pdf")
		if descErr == nil && strings.TrimSpace(description) != "" {
			return strings.TrimSpace(description), nil
		}
	}
	return "", domain.WrapError(domain.ErrEmptyExtraction, "extract pdf text",
		fmt.Errorf("text layer below %d chars and no usable fallback: %s", minTextChars, doc.FileName))
}
