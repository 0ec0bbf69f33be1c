package domain

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

// ProcessingStage is the orchestrator's position inside one ingestion run.
// Stages advance strictly forward; error is a status, not a stage, so a
// failed document keeps the stage it died in.
type ProcessingStage string

const (
	StagePending    ProcessingStage = "pending"
	StageExtracting ProcessingStage = "extracting"
	StageChunking   ProcessingStage = "chunking"
	StageEmbedding  ProcessingStage = "embedding"
	StageComplete   ProcessingStage = "complete"
)

// Progress checkpoints per stage. Embedding spans [50,95]; 100 is reserved
// for the completed document.
const (
	ProgressPending    = 0
	ProgressExtracting = 10
	ProgressChunking   = 33
	ProgressEmbedding  = 50
	ProgressComplete   = 100
)

type DocumentSource string

const (
	SourceFile DocumentSource = "file"
	SourceURL  DocumentSource = "url"
)

// FolderUncategorized is the fallback label when classification cannot
// produce one.
const FolderUncategorized = "Uncategorized"

// ProcessOutcome tells the worker what one ingestion job amounted to.
type ProcessOutcome string

const (
	OutcomeProcessed        ProcessOutcome = "processed"
	OutcomeSkippedDuplicate ProcessOutcome = "skipped_duplicate"
	OutcomeDroppedMissing   ProcessOutcome = "dropped_missing"
	OutcomeAbortedDeleted   ProcessOutcome = "aborted_deleted"
	OutcomeFailed           ProcessOutcome = "failed"
)

type Document struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	FileName     string          `json:"file_name"`
	MimeType     string          `json:"mime_type"`
	SizeBytes    int64           `json:"size_bytes"`
	Source       DocumentSource  `json:"source"`
	StoragePath  string          `json:"storage_path"`
	Folder       string          `json:"folder,omitempty"`
	ParentFolder string          `json:"parent_folder,omitempty"`
	Status       DocumentStatus  `json:"status"`
	Stage        ProcessingStage `json:"processing_stage"`
	Progress     int             `json:"processing_progress"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ChunkCount   int             `json:"chunk_count"`
	TextLength   int             `json:"text_length"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IngestJob is the queue payload that triggers one processing run.
// EnqueuedAt lets the worker report how long jobs sat in the queue.
type IngestJob struct {
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
