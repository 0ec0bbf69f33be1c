package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
)

var _ ports.ChunkStore = (*ChunkRepository)(nil)

// ChunkRepository keeps embedded chunks in the chunks table and serves
// similarity search through pgvector's cosine distance operator.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, document_id, user_id, chunk_index, chunk_text, token_count, embedding, folder, parent_folder, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		metadata, err := json.Marshal(ch.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.UserID, ch.Index, ch.Text, ch.TokenCount,
			pgvector.NewVector(ch.Embedding), ch.Folder, ch.ParentFolder, metadata,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", ch.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, userID, documentID string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM chunks
WHERE user_id = $1 AND document_id = $2
`, userID, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, userID, documentID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM chunks
WHERE user_id = $1 AND document_id = $2
`, userID, documentID)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// SearchSimilar joins documents so attribution reflects the current file
// name and folder, not what they were at embedding time; the folder
// mirrored at embedding time is the fallback when the document row has
// none. Similarity is 1 - cosine distance; rows at or below
// minSimilarity never leave the database.
func (r *ChunkRepository) SearchSimilar(ctx context.Context, userID string, embedding []float32, minSimilarity float64, limit int) ([]domain.ScoredChunk, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(embedding)
	rows, err := r.db.QueryContext(ctx, `
SELECT c.id, c.document_id, d.file_name,
	COALESCE(NULLIF(d.folder, ''), c.folder, ''),
	c.chunk_index, c.chunk_text,
	1 - (c.embedding <=> $2) AS similarity, c.metadata
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE c.user_id = $1 AND 1 - (c.embedding <=> $2) > $3
ORDER BY c.embedding <=> $2
LIMIT $4
`, userID, vec, minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ScoredChunk, 0, limit)
	for rows.Next() {
		var hit domain.ScoredChunk
		var metadataRaw []byte
		if err := rows.Scan(
			&hit.ID, &hit.DocumentID, &hit.DocumentName, &hit.Folder, &hit.Index, &hit.Text,
			&hit.Similarity, &metadataRaw,
		); err != nil {
			return nil, fmt.Errorf("scan chunk hit: %w", err)
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &hit.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
			}
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk hits: %w", err)
	}
	return out, nil
}
