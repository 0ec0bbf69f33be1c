package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

var _ ports.TextExtractor = (*Extractor)(nil)

// Extractor flattens workbooks into text: every sheet titled, every row
// tab-joined on its own line.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, doc *domain.Document, data []byte) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "open workbook", err)
	}
	defer book.Close()

	var b strings.Builder
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", domain.WrapError(domain.ErrExtractionFailed, "read workbook sheet",
				fmt.Errorf("sheet %q of %s: %w", sheet, doc.FileName, err))
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Sheet: %s", sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			b.WriteByte('\n')
			b.WriteString(line)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
