package image

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

var _ ports.TextExtractor = (*Extractor)(nil)

// Describer turns an image into a natural-language description of its
// content, including any embedded text.
type Describer interface {
	Describe(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Extractor indexes images through a vision model. It never fails the
// document: when no description can be produced it substitutes a
// placeholder so the file stays searchable by name.
type Extractor struct {
	vision Describer
}

func NewExtractor(vision Describer) *Extractor {
	return &Extractor{vision: vision}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document, data []byte) (string, error) {
	mime := resolveMIME(doc.MimeType, data)

	if e.vision == nil {
		return placeholder(doc.FileName, mime), nil
	}
	description, err := e.vision.Describe(ctx, data, mime)
	if err != nil || strings.TrimSpace(description) == "" {
		return placeholder(doc.FileName, mime), nil
	}
	return strings.TrimSpace(description), nil
}

func placeholder(fileName, mime string) string {
	return fmt.Sprintf("Image file %s (%s). No description is available.", fileName, mime)
}

func resolveMIME(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if mime, ok := DetectMIME(data); ok {
		return mime
	}
	return "image/png"
}

// DetectMIME sniffs the image format from leading magic bytes.
func DetectMIME(data []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg", true
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png", true
	case bytes.HasPrefix(data, []byte{0x47, 0x49, 0x46}):
		return "image/gif", true
	case bytes.HasPrefix(data, []byte{0x42, 0x4D}):
		return "image/bmp", true
	case bytes.HasPrefix(data, []byte{0x52, 0x49, 0x46, 0x46}):
		return "image/webp", true
	}
	return "", false
}
