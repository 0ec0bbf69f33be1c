package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docstack/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document intake.
type DocumentIngestor interface {
	// Create registers a document record without content and returns its
	// identity immediately.
	Create(ctx context.Context, userID, fileName, mimeType, parentFolder string, sizeBytes int64) (*domain.Document, error)
	// AttachContent stores the payload for a pending document and enqueues
	// the processing job.
	AttachContent(ctx context.Context, userID, documentID string, body io.Reader) (*domain.Document, error)
	// Upload is Create plus AttachContent in one call.
	Upload(ctx context.Context, userID, fileName, mimeType, parentFolder string, body io.Reader) (*domain.Document, error)
	// FromURL registers a url-sourced document; the worker fetches it.
	FromURL(ctx context.Context, userID, rawURL, parentFolder string) (*domain.Document, error)
	Retry(ctx context.Context, userID, documentID string) (*domain.Document, error)
	Delete(ctx context.Context, userID, documentID string) error
}

// DocumentQueryService is the inbound contract for retrieval-augmented
// question answering.
type DocumentQueryService interface {
	Ask(ctx context.Context, userID, conversationID, question string) (*domain.Answer, error)
	Search(ctx context.Context, userID, query string) ([]domain.ScoredChunk, error)
	History(ctx context.Context, userID, conversationID string) ([]domain.Message, error)
}

// FolderClassifier is the inbound contract for the synchronous classify
// operation. It never fails on model errors; it falls back instead.
type FolderClassifier interface {
	ClassifyText(ctx context.Context, userID, text, fileName string, existingFolders []string) (string, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, userID, id string) (*domain.Document, error)
	List(ctx context.Context, userID string) ([]domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous processing.
type DocumentProcessor interface {
	ProcessJob(ctx context.Context, job domain.IngestJob) (domain.ProcessOutcome, error)
}
