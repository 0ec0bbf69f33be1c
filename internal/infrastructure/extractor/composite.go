package extractor

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
	imagex "github.com/kirillkom/docstack/internal/infrastructure/extractor/image"
	webx "github.com/kirillkom/docstack/internal/infrastructure/extractor/web"
)

var _ ports.TextExtractor = (*Composite)(nil)

const (
	mimePDF  = "application/pdf"
	mimeDoc  = "application/msword"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Composite routes a payload to the right format extractor. Routing looks
// at the source kind first, then declared MIME, file extension, and
// finally leading magic bytes.
type Composite struct {
	plain ports.TextExtractor
	pdf   ports.TextExtractor
	word  ports.TextExtractor
	sheet ports.TextExtractor
	image ports.TextExtractor
	web   ports.TextExtractor
	html  ports.TextExtractor
}

func NewComposite(plain, pdf, word, sheet, image, web ports.TextExtractor) *Composite {
	return &Composite{
		plain: plain,
		pdf:   pdf,
		word:  word,
		sheet: sheet,
		image: image,
		web:   web,
		html:  localHTML{},
	}
}

func (c *Composite) Extract(ctx context.Context, doc *domain.Document, data []byte) (string, error) {
	return c.route(doc, data).Extract(ctx, doc, data)
}

func (c *Composite) route(doc *domain.Document, data []byte) ports.TextExtractor {
	if doc.Source == domain.SourceURL {
		return c.web
	}

	mime := normalizeMIME(doc.MimeType)
	ext := strings.ToLower(filepath.Ext(doc.FileName))
	switch {
	case mime == mimePDF || ext == ".pdf" || bytes.HasPrefix(data, []byte("%PDF")):
		return c.pdf
	case mime == mimeDocx || mime == mimeDoc || ext == ".docx" || ext == ".doc":
		return c.word
	case mime == mimeXlsx || ext == ".xlsx" || ext == ".xlsm":
		return c.sheet
	case strings.HasPrefix(mime, "image/"):
		return c.image
	case mime == "text/html" || mime == "application/xhtml+xml" || ext == ".html" || ext == ".htm":
		return c.html
	default:
		// Declared types lie often enough that images are also sniffed.
		if _, ok := imagex.DetectMIME(data); ok {
			return c.image
		}
		return c.plain
	}
}

// localHTML strips uploaded html files with the web extractor's
// tokenizer, without any fetching.
type localHTML struct{}

func (localHTML) Extract(_ context.Context, _ *domain.Document, data []byte) (string, error) {
	title, text := webx.Strip(bytes.NewReader(data))
	if title != "" {
		return strings.TrimSpace(title + "\n\n" + text), nil
	}
	return text, nil
}

func normalizeMIME(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
