package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

var _ ports.TextExtractor = (*Extractor)(nil)

const (
	fetchTimeout  = 10 * time.Second
	maxFetchBytes = 10 << 20
	userAgent     = "docstack/1.0 (+document indexing)"
)

// Extractor fetches a url-sourced document and reduces the page to
// readable text. The url lives in the document's storage path; the
// payload argument is always empty for this source.
type Extractor struct {
	client *http.Client
}

func NewExtractor() *Extractor {
	return &Extractor{client: &http.Client{Timeout: fetchTimeout}}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, _ []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.StoragePath, nil)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "build url request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "fetch url", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", domain.WrapError(domain.ErrExtractionFailed, "fetch url",
			fmt.Errorf("status %s for %s", resp.Status, doc.StoragePath))
	}

	body := io.LimitReader(resp.Body, maxFetchBytes)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "html") || contentType == "":
		title, text := Strip(body)
		if title != "" {
			return strings.TrimSpace(title + "\n\n" + text), nil
		}
		return text, nil
	case strings.HasPrefix(contentType, "text/"):
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", domain.WrapError(domain.ErrExtractionFailed, "read url body", err)
		}
		if !utf8.Valid(raw) {
			return "", domain.WrapError(domain.ErrExtractionFailed, "read url body",
				fmt.Errorf("body is not valid utf-8: %s", doc.StoragePath))
		}
		return strings.TrimSpace(string(raw)), nil
	default:
		return "", domain.WrapError(domain.ErrExtractionFailed, "fetch url",
			fmt.Errorf("unsupported content type %q at %s", contentType, doc.StoragePath))
	}
}

// skippedTags hold no user-readable content.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"svg":      true,
	"template": true,
	"iframe":   true,
}

// blockTags end a text block when closed.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "td": true, "th": true,
	"blockquote": true, "pre": true, "table": true,
	"section": true, "article": true, "ul": true, "ol": true,
}

// Strip tokenizes HTML and keeps only readable text. The page title is
// returned separately; comments and the skipped containers are dropped
// entirely. Blocks come back separated by blank lines.
func Strip(r io.Reader) (title, text string) {
	z := html.NewTokenizer(r)

	var (
		b         strings.Builder
		skipDepth int
		inTitle   bool
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return title, collapseBlocks(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = true
				continue
			}
			if skippedTags[tag] {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = false
			}
			if skippedTags[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			// The title sits inside <head>, which is otherwise skipped.
			if inTitle {
				if t := strings.TrimSpace(string(z.Text())); t != "" && title == "" {
					title = t
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			b.Write(z.Text())
		}
	}
}

func collapseBlocks(s string) string {
	lines := strings.Split(s, "\n")
	blocks := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			blocks = append(blocks, line)
		}
	}
	return strings.Join(blocks, "\n\n")
}
