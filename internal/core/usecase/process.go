package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

// ProcessConfig bounds one ingestion run. Zero values fall back to the
// documented defaults.
type ProcessConfig struct {
	// MaxDocumentChars caps extracted text before chunking. Default 100000.
	MaxDocumentChars int
	// ClassifySampleChars is how much of the text the classifier sees.
	// Default 2000.
	ClassifySampleChars int
	// EmbedBatchSize is how many chunks go into one embedding call.
	// Default 3.
	EmbedBatchSize int
}

func (c ProcessConfig) normalized() ProcessConfig {
	if c.MaxDocumentChars <= 0 {
		c.MaxDocumentChars = 100000
	}
	if c.ClassifySampleChars <= 0 {
		c.ClassifySampleChars = 2000
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 3
	}
	return c
}

// errDocumentGone signals that the owner deleted the document while the
// pipeline was still writing. The run stops without recording anything.
var errDocumentGone = errors.New("document deleted mid-run")

// ProcessDocumentUseCase is the per-document ingestion state machine:
// pending -> extracting -> chunking -> embedding -> complete, with error
// as the absorbing failure status. Progress moves only forward.
type ProcessDocumentUseCase struct {
	cfg        ProcessConfig
	repo       ports.DocumentRepository
	chunkStore ports.ChunkStore
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	classifier ports.DocumentClassifier
	chunker    ports.Chunker
	embedder   ports.Embedder
}

func NewProcessDocumentUseCase(
	cfg ProcessConfig,
	repo ports.DocumentRepository,
	chunkStore ports.ChunkStore,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	chunker ports.Chunker,
	embedder ports.Embedder,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		cfg:        cfg.normalized(),
		repo:       repo,
		chunkStore: chunkStore,
		storage:    storage,
		extractor:  extractor,
		classifier: classifier,
		chunker:    chunker,
		embedder:   embedder,
	}
}

// ProcessJob runs the full pipeline for one queued document. Duplicate
// triggers lose the claim and are skipped; jobs for deleted documents are
// dropped. Only real pipeline failures come back as errors, after the
// document has been marked failed.
func (uc *ProcessDocumentUseCase) ProcessJob(ctx context.Context, job domain.IngestJob) (domain.ProcessOutcome, error) {
	doc, err := uc.repo.GetByID(ctx, job.UserID, job.DocumentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return domain.OutcomeDroppedMissing, nil
		}
		return domain.OutcomeFailed, fmt.Errorf("load document: %w", err)
	}

	claimed, err := uc.repo.ClaimForProcessing(ctx, doc.UserID, doc.ID)
	if err != nil {
		return domain.OutcomeFailed, fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		return domain.OutcomeSkippedDuplicate, nil
	}
	doc.Status = domain.StatusProcessing
	doc.Stage = domain.StageExtracting
	doc.Progress = domain.ProgressExtracting

	if err := uc.runPipeline(ctx, doc); err != nil {
		if errors.Is(err, errDocumentGone) {
			return domain.OutcomeAbortedDeleted, nil
		}
		if failErr := uc.markFailed(ctx, doc, err); failErr != nil {
			return domain.OutcomeFailed, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return domain.OutcomeFailed, err
	}

	return domain.OutcomeProcessed, nil
}

func (uc *ProcessDocumentUseCase) runPipeline(ctx context.Context, doc *domain.Document) error {
	// Re-runs must not stack chunks on top of a previous run's.
	if err := uc.chunkStore.DeleteByDocument(ctx, doc.UserID, doc.ID); err != nil {
		return fmt.Errorf("clear previous chunks: %w", err)
	}

	text, err := uc.extractText(ctx, doc)
	if err != nil {
		return err
	}

	doc.Folder = uc.classify(ctx, doc, text)
	if err := uc.repo.SetFolder(ctx, doc.UserID, doc.ID, doc.Folder); err != nil {
		return ifGone(fmt.Errorf("persist folder: %w", err))
	}

	if err := uc.repo.UpdateStage(ctx, doc.UserID, doc.ID, domain.StageChunking, domain.ProgressChunking); err != nil {
		return ifGone(fmt.Errorf("enter chunking stage: %w", err))
	}
	parts, err := uc.chunk(text)
	if err != nil {
		return err
	}

	if err := uc.repo.UpdateStage(ctx, doc.UserID, doc.ID, domain.StageEmbedding, domain.ProgressEmbedding); err != nil {
		return ifGone(fmt.Errorf("enter embedding stage: %w", err))
	}
	if err := uc.embedAndPersist(ctx, doc, parts); err != nil {
		return err
	}

	if err := uc.repo.MarkReady(ctx, doc.UserID, doc.ID, len(parts), len(text)); err != nil {
		return ifGone(fmt.Errorf("mark ready: %w", err))
	}
	return nil
}

func (uc *ProcessDocumentUseCase) extractText(ctx context.Context, doc *domain.Document) (string, error) {
	var data []byte
	if doc.Source != domain.SourceURL {
		rc, err := uc.storage.Open(ctx, doc.StoragePath)
		if err != nil {
			return "", domain.WrapError(domain.ErrExtractionFailed, "open stored payload", err)
		}
		data, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", domain.WrapError(domain.ErrExtractionFailed, "read stored payload", err)
		}
	}

	text, err := uc.extractor.Extract(ctx, doc, data)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.WrapError(domain.ErrEmptyExtraction, "extract text", errors.New("no text content"))
	}
	return truncateChars(text, uc.cfg.MaxDocumentChars), nil
}

// classify never fails the run: any error falls back to Uncategorized.
func (uc *ProcessDocumentUseCase) classify(ctx context.Context, doc *domain.Document, text string) string {
	folders, err := uc.repo.ListFolders(ctx, doc.UserID)
	if err != nil {
		return domain.FolderUncategorized
	}
	folder, err := uc.classifier.Classify(ctx, domain.ClassifyInput{
		Sample:          truncateChars(text, uc.cfg.ClassifySampleChars),
		FileName:        doc.FileName,
		ExistingFolders: folders,
	})
	if err != nil || strings.TrimSpace(folder) == "" {
		return domain.FolderUncategorized
	}
	return strings.TrimSpace(folder)
}

func (uc *ProcessDocumentUseCase) chunk(text string) ([]string, error) {
	parts := uc.chunker.Split(text)
	if len(parts) == 0 {
		return nil, domain.WrapError(domain.ErrEmptyExtraction, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return parts, nil
}

// embedAndPersist embeds fixed-size batches and inserts each batch's rows
// before moving on, so partial progress is durable and visible. Progress
// covers [50,95] as 50 + floor(batchStart/total*45).
func (uc *ProcessDocumentUseCase) embedAndPersist(ctx context.Context, doc *domain.Document, parts []string) error {
	total := len(parts)
	for start := 0; start < total; start += uc.cfg.EmbedBatchSize {
		end := start + uc.cfg.EmbedBatchSize
		if end > total {
			end = total
		}
		batch := parts[start:end]

		vectors, err := uc.embedder.Embed(ctx, batch)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return domain.WrapError(
				domain.ErrEmbeddingFailed,
				"embed batch",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)),
			)
		}

		rows := make([]domain.Chunk, len(batch))
		for i, part := range batch {
			rows[i] = domain.Chunk{
				ID:           uuid.NewString(),
				DocumentID:   doc.ID,
				UserID:       doc.UserID,
				Index:        start + i,
				Text:         part,
				TokenCount:   estimateTokens(part),
				Embedding:    vectors[i],
				Folder:       doc.Folder,
				ParentFolder: doc.ParentFolder,
				Metadata: map[string]string{
					"file_name": doc.FileName,
					"mime_type": doc.MimeType,
				},
			}
		}
		if err := uc.chunkStore.InsertBatch(ctx, rows); err != nil {
			return ifGone(fmt.Errorf("insert chunk batch at %d: %w", start, err))
		}

		progress := domain.ProgressEmbedding + start*45/total
		if err := uc.repo.UpdateProgress(ctx, doc.UserID, doc.ID, progress); err != nil {
			return ifGone(fmt.Errorf("update embedding progress: %w", err))
		}
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, doc *domain.Document, processErr error) error {
	err := uc.repo.MarkFailed(ctx, doc.UserID, doc.ID, domain.UserMessage(processErr))
	if err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return err
	}
	return nil
}

// ifGone converts a not-found write failure into the mid-run deletion
// signal; every other error passes through.
func ifGone(err error) error {
	if domain.IsKind(err, domain.ErrDocumentNotFound) {
		return errDocumentGone
	}
	return err
}

func truncateChars(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
