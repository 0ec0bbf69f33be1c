package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docstack/internal/core/domain"
)

// DocumentRepository persists and reads document state. Every read and
// write is scoped to the owning user; writes against a missing row return
// domain.ErrDocumentNotFound so the pipeline can abort when the owner
// deletes the document mid-run.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, userID, id string) (*domain.Document, error)
	List(ctx context.Context, userID string) ([]domain.Document, error)
	ListFolders(ctx context.Context, userID string) ([]string, error)
	// ClaimForProcessing advances pending -> extracting for exactly one
	// caller. false means the document is gone or already claimed, which
	// deduplicates concurrent triggers for the same document.
	ClaimForProcessing(ctx context.Context, userID, id string) (bool, error)
	UpdateStage(ctx context.Context, userID, id string, stage domain.ProcessingStage, progress int) error
	UpdateProgress(ctx context.Context, userID, id string, progress int) error
	SetFolder(ctx context.Context, userID, id, folder string) error
	MarkReady(ctx context.Context, userID, id string, chunkCount, textLength int) error
	MarkFailed(ctx context.Context, userID, id, message string) error
	ResetForRetry(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
}

// ChunkStore persists embedded chunks and serves similarity search.
type ChunkStore interface {
	InsertBatch(ctx context.Context, chunks []domain.Chunk) error
	DeleteByDocument(ctx context.Context, userID, documentID string) error
	CountByDocument(ctx context.Context, userID, documentID string) (int, error)
	// SearchSimilar returns chunks with similarity (1 - cosine distance)
	// strictly above minSimilarity, best first, never crossing user scope.
	SearchSimilar(ctx context.Context, userID string, embedding []float32, minSimilarity float64, limit int) ([]domain.ScoredChunk, error)
}

// ObjectStorage stores raw source payloads.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion jobs.
type MessageQueue interface {
	PublishIngestJob(ctx context.Context, job domain.IngestJob) error
	SubscribeIngestJobs(ctx context.Context, handler func(context.Context, domain.IngestJob) error) error
}

// TextExtractor extracts plain text from a document payload. URL-sourced
// documents arrive with no payload; the extractor fetches them itself.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document, data []byte) (string, error)
}

// DocumentClassifier picks exactly one folder label for a text sample.
type DocumentClassifier interface {
	Classify(ctx context.Context, in domain.ClassifyInput) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits normalized text into overlapping windows.
type Chunker interface {
	Split(text string) []string
}

// AnswerGenerator creates the final user-facing answer from the built
// context block and the original question.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question, contextBlock string) (string, error)
}

// ConversationStore persists conversations and their transcript rows.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, userID, conversationID, title string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, msg domain.Message) error
	ListMessages(ctx context.Context, userID, conversationID string) ([]domain.Message, error)
}
