package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTemporary            = errors.New("temporary failure")

	ErrExtractionFailed     = errors.New("extraction failed")
	ErrEmptyExtraction      = errors.New("empty extraction")
	ErrClassificationFailed = errors.New("classification failed")
	ErrEmbeddingFailed      = errors.New("embedding failed")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrRateLimited          = errors.New("rate limited")
	ErrNetwork              = errors.New("network failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", operation, kind)
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// UserMessage normalizes pipeline failures into the string stored on the
// document and shown to the owner. Internal detail stays in logs only.
func UserMessage(err error) string {
	switch {
	case IsKind(err, ErrEmptyExtraction), IsKind(err, ErrExtractionFailed):
		return "The file may be empty or corrupted."
	case IsKind(err, ErrInvalidCredentials):
		return "The AI service rejected the configured credentials. Processing cannot continue until they are fixed."
	case IsKind(err, ErrRateLimited):
		return "The AI service is rate limited right now, please try again later."
	case IsKind(err, ErrNetwork), IsKind(err, ErrTemporary):
		return "Could not reach the AI service. Check the connection and try again."
	case IsKind(err, ErrEmbeddingFailed):
		return "The embedding service returned an error. Please retry the document."
	default:
		return "Processing failed due to an internal error."
	}
}
