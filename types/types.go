package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChunkMeta carries the provenance of a chunk inside the vector index.
// DocumentID is the content hash of the source bytes; ChunkIndex is
// 0-based and contiguous per document.
type ChunkMeta struct {
	DocumentID  string `json:"document_id"`
	Source      string `json:"source"`
	Title       string `json:"title"`
	ChunkIndex  int    `json:"chunk_index"`
	ChunkLength int    `json:"chunk_length"`
}

// Chunk is the unit of indexing and retrieval. Immutable once created.
type Chunk struct {
	Text string    `json:"text"`
	Meta ChunkMeta `json:"metadata"`
}

// ScoredChunk annotates a chunk with a relevance score during ranking.
// The score is transient and never persisted.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"-"`
}

// ConversationTurn is one user message paired with the assistant reply
// that followed it.
type ConversationTurn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Thread groups the messages of one conversation.
type Thread struct {
	ID          string    `json:"thread_id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	Archived    bool      `json:"archived"`
}

// ThreadPreview is a thread plus a short excerpt of its last message,
// used by the chat list.
type ThreadPreview struct {
	ThreadID    string    `json:"thread_id"`
	Title       string    `json:"title"`
	LastMessage string    `json:"last_message"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	Archived    bool      `json:"archived"`
}

// ChatMessage is one stored message of a thread. Role is "user" or
// "assistant".
type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type IngestStatus int

const (
	IngestAdded IngestStatus = iota
	IngestDuplicate
	IngestEmpty
	IngestExtractFailed
	IngestFailed
)

func (s IngestStatus) String() string {
	switch s {
	case IngestAdded:
		return "added"
	case IngestDuplicate:
		return "duplicate"
	case IngestEmpty:
		return "empty"
	case IngestExtractFailed:
		return "extract_failed"
	case IngestFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s IngestStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *IngestStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, status := range []IngestStatus{IngestAdded, IngestDuplicate, IngestEmpty, IngestExtractFailed, IngestFailed} {
		if status.String() == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown ingest status %q", name)
}

// IngestResult reports the outcome of indexing one source. Callers
// branch on Status; ingestion never signals expected failures through
// errors.
type IngestResult struct {
	Source string       `json:"source"`
	Status IngestStatus `json:"status"`
	Chunks int          `json:"chunks"`
}

// ConverterResponse is the payload returned by the document converter
// service for PDF extraction.
type ConverterResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}
