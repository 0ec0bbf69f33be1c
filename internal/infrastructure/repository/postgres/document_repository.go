package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

var _ ports.DocumentRepository = (*DocumentRepository)(nil)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, user_id, file_name, mime_type, size_bytes, source, storage_path,
COALESCE(folder, ''), COALESCE(parent_folder, ''), status, stage, progress, error_message,
chunk_count, text_length, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, user_id, file_name, mime_type, size_bytes, source, storage_path,
	folder, parent_folder, status, stage, progress, error_message,
	chunk_count, text_length, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		doc.ID, doc.UserID, doc.FileName, doc.MimeType, doc.SizeBytes, string(doc.Source), doc.StoragePath,
		nullableString(doc.Folder), nullableString(doc.ParentFolder), string(doc.Status), string(doc.Stage),
		doc.Progress, doc.ErrorMessage, doc.ChunkCount, doc.TextLength, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, userID, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE user_id = $1 AND id = $2
`, userID, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", nil)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) List(ctx context.Context, userID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE user_id = $1
ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) ListFolders(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT folder
FROM documents
WHERE user_id = $1 AND folder IS NOT NULL AND folder <> ''
ORDER BY folder
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var folder string
		if err := rows.Scan(&folder); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return out, nil
}

// ClaimForProcessing advances exactly one pending document into the
// extracting stage. The conditional update is what deduplicates
// concurrent deliveries of the same job.
func (r *DocumentRepository) ClaimForProcessing(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET stage = $3, progress = $4, status = $5, error_message = '', updated_at = $6
WHERE user_id = $1 AND id = $2 AND stage = $7
`, userID, id,
		string(domain.StageExtracting), domain.ProgressExtracting, string(domain.StatusProcessing),
		time.Now().UTC(), string(domain.StagePending))
	if err != nil {
		return false, fmt.Errorf("claim document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim document rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *DocumentRepository) UpdateStage(ctx context.Context, userID, id string, stage domain.ProcessingStage, progress int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET stage = $3, progress = GREATEST(progress, $4), updated_at = $5
WHERE user_id = $1 AND id = $2
`, userID, id, string(stage), progress, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return requireRow(result, "update stage")
}

func (r *DocumentRepository) UpdateProgress(ctx context.Context, userID, id string, progress int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET progress = GREATEST(progress, $3), updated_at = $4
WHERE user_id = $1 AND id = $2
`, userID, id, progress, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return requireRow(result, "update progress")
}

func (r *DocumentRepository) SetFolder(ctx context.Context, userID, id, folder string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET folder = $3, updated_at = $4
WHERE user_id = $1 AND id = $2
`, userID, id, folder, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set folder: %w", err)
	}
	return requireRow(result, "set folder")
}

func (r *DocumentRepository) MarkReady(ctx context.Context, userID, id string, chunkCount, textLength int) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, stage = $4, progress = $5, error_message = '', chunk_count = $6, text_length = $7, updated_at = $8
WHERE user_id = $1 AND id = $2
`, userID, id,
		string(domain.StatusReady), string(domain.StageComplete), domain.ProgressComplete,
		chunkCount, textLength, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return requireRow(result, "mark ready")
}

// MarkFailed keeps the stage the document died in so the owner can see
// how far processing got.
func (r *DocumentRepository) MarkFailed(ctx context.Context, userID, id, message string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, error_message = $4, updated_at = $5
WHERE user_id = $1 AND id = $2
`, userID, id, string(domain.StatusError), message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRow(result, "mark failed")
}

func (r *DocumentRepository) ResetForRetry(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, stage = $4, progress = $5, error_message = '', chunk_count = 0, text_length = 0, updated_at = $6
WHERE user_id = $1 AND id = $2
`, userID, id,
		string(domain.StatusProcessing), string(domain.StagePending), domain.ProgressPending,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset for retry: %w", err)
	}
	return requireRow(result, "reset for retry")
}

func (r *DocumentRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM documents
WHERE user_id = $1 AND id = $2
`, userID, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRow(result, "delete document")
}

func requireRow(result sql.Result, operation string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, nil)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var source, status, stage string

	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.FileName, &doc.MimeType, &doc.SizeBytes, &source, &doc.StoragePath,
		&doc.Folder, &doc.ParentFolder, &status, &stage, &doc.Progress, &doc.ErrorMessage,
		&doc.ChunkCount, &doc.TextLength, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Source = domain.DocumentSource(source)
	doc.Status = domain.DocumentStatus(status)
	doc.Stage = domain.ProcessingStage(stage)
	return &doc, nil
}
