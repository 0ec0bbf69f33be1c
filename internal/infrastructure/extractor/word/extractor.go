package word

import (
	"bytes"
	"context"
	"strings"

	"code.sajari.com/docconv"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

var _ ports.TextExtractor = (*Extractor)(nil)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Extractor pulls raw text out of Word documents via docconv.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, doc *domain.Document, data []byte) (string, error) {
	// docconv dispatches on MIME; files routed here by extension may
	// carry a generic one.
	mime := strings.ToLower(strings.TrimSpace(doc.MimeType))
	if mime != "application/msword" && mime != docxMIME {
		mime = docxMIME
	}

	res, err := docconv.Convert(bytes.NewReader(data), mime, false)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "convert word document", err)
	}
	return strings.TrimSpace(res.Body), nil
}
