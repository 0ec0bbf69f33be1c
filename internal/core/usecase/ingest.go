package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

// IngestUseCase handles document intake: registering records, storing
// payloads, and enqueueing processing jobs. The pipeline itself runs in
// the worker; every method here returns before any extraction happens.
type IngestUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestUseCase {
	return &IngestUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

// Create registers a content-less document record and returns its
// identity. The storage key is fixed here so AttachContent stays a pure
// payload write.
func (uc *IngestUseCase) Create(ctx context.Context, userID, fileName, mimeType, parentFolder string, sizeBytes int64) (*domain.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create document", errors.New("user id is required"))
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create document", errors.New("file name is required"))
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	doc := &domain.Document{
		ID:           id,
		UserID:       userID,
		FileName:     fileName,
		MimeType:     mimeType,
		SizeBytes:    sizeBytes,
		Source:       domain.SourceFile,
		StoragePath:  fmt.Sprintf("%s_%s", id, sanitizeFilename(fileName)),
		ParentFolder: parentFolder,
		Status:       domain.StatusProcessing,
		Stage:        domain.StagePending,
		Progress:     domain.ProgressPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	return doc, nil
}

// AttachContent stores the payload for a pending document and enqueues
// its processing job. Documents already claimed by a worker are rejected,
// which deduplicates concurrent triggers.
func (uc *IngestUseCase) AttachContent(ctx context.Context, userID, documentID string, body io.Reader) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc.Source == domain.SourceURL {
		return nil, domain.WrapError(domain.ErrInvalidInput, "attach content", errors.New("url documents carry no payload"))
	}
	if doc.Stage != domain.StagePending {
		return nil, domain.WrapError(domain.ErrInvalidInput, "attach content",
			fmt.Errorf("document is already %s in stage %s", doc.Status, doc.Stage))
	}

	if err := uc.storage.Save(ctx, doc.StoragePath, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if err := uc.publish(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Upload is Create plus AttachContent in one call, for clients that send
// metadata and payload together.
func (uc *IngestUseCase) Upload(ctx context.Context, userID, fileName, mimeType, parentFolder string, body io.Reader) (*domain.Document, error) {
	doc, err := uc.Create(ctx, userID, fileName, mimeType, parentFolder, 0)
	if err != nil {
		return nil, err
	}

	counted := &countingReader{r: body}
	if err := uc.storage.Save(ctx, doc.StoragePath, counted); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	doc.SizeBytes = counted.n

	if err := uc.publish(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromURL registers a url-sourced document. The worker fetches and strips
// the page; nothing is downloaded here.
func (uc *IngestUseCase) FromURL(ctx context.Context, userID, rawURL, parentFolder string) (*domain.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest url", errors.New("user id is required"))
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest url", fmt.Errorf("not an http(s) url: %q", rawURL))
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:           uuid.NewString(),
		UserID:       userID,
		FileName:     parsed.String(),
		MimeType:     "text/html",
		Source:       domain.SourceURL,
		StoragePath:  parsed.String(),
		ParentFolder: parentFolder,
		Status:       domain.StatusProcessing,
		Stage:        domain.StagePending,
		Progress:     domain.ProgressPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	if err := uc.publish(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Retry re-enqueues a finished or failed document from the top of the
// state machine. The pipeline clears old chunks itself, so re-runs do not
// stack fragments.
func (uc *IngestUseCase) Retry(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc.Status == domain.StatusProcessing {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retry document",
			fmt.Errorf("document is still processing in stage %s", doc.Stage))
	}

	if err := uc.repo.ResetForRetry(ctx, userID, documentID); err != nil {
		return nil, fmt.Errorf("reset document: %w", err)
	}
	doc.Status = domain.StatusProcessing
	doc.Stage = domain.StagePending
	doc.Progress = domain.ProgressPending
	doc.ErrorMessage = ""

	if err := uc.publish(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the document row (chunks go with it via the schema's
// cascade) and cleans the stored payload best-effort. A pipeline run in
// flight notices the missing row on its next write and aborts.
func (uc *IngestUseCase) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, userID, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if err := uc.repo.Delete(ctx, userID, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if doc.Source != domain.SourceURL {
		_ = uc.storage.Remove(ctx, doc.StoragePath)
	}
	return nil
}

func (uc *IngestUseCase) publish(ctx context.Context, doc *domain.Document) error {
	job := domain.IngestJob{DocumentID: doc.ID, UserID: doc.UserID, EnqueuedAt: time.Now().UTC()}
	if err := uc.queue.PublishIngestJob(ctx, job); err != nil {
		return fmt.Errorf("publish ingest job: %w", err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
