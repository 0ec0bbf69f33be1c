package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

// ClassifyUseCase backs the synchronous classify operation. Model
// failures never surface to the caller; the fallback label does.
type ClassifyUseCase struct {
	repo        ports.DocumentRepository
	classifier  ports.DocumentClassifier
	sampleChars int
}

func NewClassifyUseCase(repo ports.DocumentRepository, classifier ports.DocumentClassifier, sampleChars int) *ClassifyUseCase {
	if sampleChars <= 0 {
		sampleChars = 2000
	}
	return &ClassifyUseCase{
		repo:        repo,
		classifier:  classifier,
		sampleChars: sampleChars,
	}
}

// ClassifyText picks a folder for the given text. Existing folders may be
// supplied by the caller; otherwise they are read from the user's
// documents. Invalid input is the only error this returns.
func (uc *ClassifyUseCase) ClassifyText(ctx context.Context, userID, text, fileName string, existingFolders []string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "classify text", errors.New("text is required"))
	}

	folders := existingFolders
	if folders == nil && strings.TrimSpace(userID) != "" {
		if listed, err := uc.repo.ListFolders(ctx, userID); err == nil {
			folders = listed
		}
	}

	folder, err := uc.classifier.Classify(ctx, domain.ClassifyInput{
		Sample:          truncateChars(text, uc.sampleChars),
		FileName:        fileName,
		ExistingFolders: folders,
	})
	if err != nil || strings.TrimSpace(folder) == "" {
		return domain.FolderUncategorized, nil
	}
	return strings.TrimSpace(folder), nil
}
