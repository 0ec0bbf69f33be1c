package domain

// Chunk is one embedded window of a document's text. Rows are immutable
// once written; re-ingestion deletes and reinserts the whole set.
type Chunk struct {
	ID           string            `json:"id"`
	DocumentID   string            `json:"document_id"`
	UserID       string            `json:"user_id"`
	Index        int               `json:"chunk_index"`
	Text         string            `json:"chunk_text"`
	TokenCount   int               `json:"token_count"`
	Embedding    []float32         `json:"-"`
	Folder       string            `json:"folder,omitempty"`
	ParentFolder string            `json:"parent_folder,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ScoredChunk is a retrieval hit. Similarity is 1 - cosine distance.
type ScoredChunk struct {
	ID           string            `json:"id"`
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name"`
	Folder       string            `json:"folder,omitempty"`
	Index        int               `json:"chunk_index"`
	Text         string            `json:"chunk_text"`
	Similarity   float64           `json:"similarity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Source is the attribution attached to an assistant message.
type Source struct {
	DocumentName string  `json:"document_name"`
	Folder       string  `json:"folder"`
	Similarity   float64 `json:"similarity"`
}

type Answer struct {
	Text           string   `json:"text"`
	Sources        []Source `json:"sources"`
	ConversationID string   `json:"conversation_id"`
}

// ClassifyInput carries everything the folder classifier may look at.
type ClassifyInput struct {
	Sample          string
	FileName        string
	ExistingFolders []string
}
