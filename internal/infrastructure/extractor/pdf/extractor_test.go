package pdf

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docstack/internal/core/domain"
)

type visionFake struct {
	err error
}

func (f *visionFake) Describe(context.Context, []byte, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "described", nil
}

func TestExtractRejectsCorruptPDF(t *testing.T) {
	e := NewExtractor(nil)
	_, err := e.Extract(context.Background(), &domain.Document{FileName: "bad.pdf"}, []byte("%PDF-1.7 truncated garbage"))
	if !domain.IsKind(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
}

func TestExtractRejectsNonPDFBytes(t *testing.T) {
	e := NewExtractor(&visionFake{err: errors.New("unused")})
	_, err := e.Extract(context.Background(), &domain.Document{FileName: "x.pdf"}, []byte("no header at all"))
	if !domain.IsKind(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected extraction failure, got %v", err)
	}
}
