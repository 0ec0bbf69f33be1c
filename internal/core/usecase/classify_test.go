package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/docstack/internal/core/domain"
)

func TestClassifyTextUsesModelLabel(t *testing.T) {
	classifier := &classifierFake{label: "  Finance  "}
	uc := NewClassifyUseCase(&processRepoFake{doc: pendingDoc()}, classifier, 2000)

	folder, err := uc.ClassifyText(context.Background(), "user-1", "quarterly revenue numbers", "q3.xlsx", []string{"Finance", "Legal"})
	if err != nil {
		t.Fatalf("ClassifyText() error = %v", err)
	}
	if folder != "Finance" {
		t.Fatalf("folder = %q, want trimmed model label", folder)
	}
	if len(classifier.folders) != 2 {
		t.Fatalf("existing folders not forwarded: %v", classifier.folders)
	}
}

func TestClassifyTextLoadsFoldersWhenNotSupplied(t *testing.T) {
	classifier := &classifierFake{label: "Work"}
	uc := NewClassifyUseCase(&processRepoFake{doc: pendingDoc()}, classifier, 2000)

	if _, err := uc.ClassifyText(context.Background(), "user-1", "some text", "doc.txt", nil); err != nil {
		t.Fatalf("ClassifyText() error = %v", err)
	}
	if len(classifier.folders) != 1 || classifier.folders[0] != "Work" {
		t.Fatalf("expected folders from the repository, got %v", classifier.folders)
	}
}

func TestClassifyTextTruncatesSample(t *testing.T) {
	classifier := &classifierFake{label: "Work"}
	uc := NewClassifyUseCase(&processRepoFake{doc: pendingDoc()}, classifier, 5)

	if _, err := uc.ClassifyText(context.Background(), "user-1", "0123456789", "doc.txt", nil); err != nil {
		t.Fatalf("ClassifyText() error = %v", err)
	}
	if classifier.sample != "01234" {
		t.Fatalf("sample = %q, want 5-char sample", classifier.sample)
	}
}

func TestClassifyTextFallsBackOnModelError(t *testing.T) {
	uc := NewClassifyUseCase(&processRepoFake{doc: pendingDoc()}, &classifierFake{err: errors.New("model offline")}, 2000)

	folder, err := uc.ClassifyText(context.Background(), "user-1", "text", "doc.txt", nil)
	if err != nil {
		t.Fatalf("model failure must not surface, got %v", err)
	}
	if folder != domain.FolderUncategorized {
		t.Fatalf("folder = %q, want fallback", folder)
	}
}

func TestClassifyTextFallsBackOnEmptyLabel(t *testing.T) {
	uc := NewClassifyUseCase(&processRepoFake{doc: pendingDoc()}, &classifierFake{label: "   "}, 2000)

	folder, err := uc.ClassifyText(context.Background(), "user-1", "text", "doc.txt", nil)
	if err != nil {
		t.Fatalf("ClassifyText() error = %v", err)
	}
	if folder != domain.FolderUncategorized {
		t.Fatalf("folder = %q, want fallback", folder)
	}
}

func TestClassifyTextRejectsEmptyText(t *testing.T) {
	uc := NewClassifyUseCase(&processRepoFake{doc: pendingDoc()}, &classifierFake{label: "Work"}, 2000)

	_, err := uc.ClassifyText(context.Background(), "user-1", "   ", "doc.txt", nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
