package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docstack/internal/core/domain"
)

// buildContext renders the reranked fragments into the prompt block and
// the source attributions returned to the caller. Each fragment is headed
// by "[Source i] (From: <folder> / <document name>)"; fragments are
// separated by a blank line.
func buildContext(selected []domain.ScoredChunk) (string, []domain.Source) {
	var b strings.Builder
	sources := make([]domain.Source, 0, len(selected))

	for i, chunk := range selected {
		name, folder := attribution(chunk)
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Source %d] (From: %s / %s)\n%s", i+1, folder, name, chunk.Text)
		sources = append(sources, domain.Source{
			DocumentName: name,
			Folder:       folder,
			Similarity:   chunk.Similarity,
		})
	}

	return b.String(), sources
}

// attribution resolves display name and folder for a fragment. The search
// join provides fresh document data; the chunk's own cached metadata is
// the fallback when that lookup came back empty.
func attribution(chunk domain.ScoredChunk) (string, string) {
	name := chunk.DocumentName
	if name == "" {
		name = chunk.Metadata["file_name"]
	}
	if name == "" {
		name = "Unknown document"
	}

	folder := chunk.Folder
	if folder == "" {
		folder = domain.FolderUncategorized
	}
	return name, folder
}
