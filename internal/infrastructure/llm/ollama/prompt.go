package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docstack/internal/core/domain"
)

// defaultFolderVocabulary is offered when the user has no folders yet.
var defaultFolderVocabulary = []string{
	"Work", "Personal", "Finance", "Legal", "Medical",
	"Education", "Travel", "Receipts", "Research", "Other",
}

func buildClassifyPrompt(in domain.ClassifyInput) string {
	var b strings.Builder
	b.WriteString("You are filing a document into a folder.\n")

	if len(in.ExistingFolders) > 0 {
		b.WriteString("The user already has these folders:\n")
		for _, folder := range in.ExistingFolders {
			fmt.Fprintf(&b, "- %s\n", folder)
		}
		b.WriteString("Strongly prefer reusing one of the folders above. Only invent a new folder name when the document clearly matches none of them.\n")
	} else {
		b.WriteString("Common folder names: " + strings.Join(defaultFolderVocabulary, ", ") + ".\n")
	}

	b.WriteString("Reply with the folder name only: one short label of 1-3 words. No quotes, no explanation, no punctuation.\n\n")
	fmt.Fprintf(&b, "File name: %s\n", in.FileName)
	b.WriteString("Document begins:\n")
	b.WriteString(in.Sample)
	return b.String()
}

func buildAnswerPrompt(question, contextBlock string) string {
	return fmt.Sprintf(`You answer questions strictly from the provided document excerpts.
Rules:
- Use only the information in the excerpts below. Do not use outside knowledge.
- If the excerpts do not contain the answer, say so plainly instead of guessing.
- Cite the excerpts you used as [Source N].

Question:
%s

Excerpts:
%s
`, question, contextBlock)
}

const describeImagePrompt = `Describe this image (%s) for a document search index.
Cover what it shows and transcribe any readable text verbatim. Be factual and complete; no preamble.`
