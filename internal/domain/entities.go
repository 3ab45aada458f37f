package domain

import "time"

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	StatusPending  DocumentStatus = "pending"
	StatusIngested DocumentStatus = "ingested"
	StatusFailed   DocumentStatus = "failed"
)

type Document struct {
	ID        string
	Filename  string
	Status    DocumentStatus
	Error     string
	CreatedAt time.Time
	ChunkIDs  []string
}

// CharSpan is the half-open [Start, End) character range a chunk covers in
// its source document.
type CharSpan struct {
	Start int
	End   int
}

// Chunk is the unit of embedding and retrieval. Immutable once created.
type Chunk struct {
	ID            string
	DocumentID    string
	SequenceIndex int
	Text          string
	Vector        []float32
	Span          CharSpan
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a session. Turns are append-only and never
// edited or reordered.
type Turn struct {
	Role          Role
	Text          string
	Timestamp     time.Time
	CitedChunkIDs []string
}

type Session struct {
	ID        string
	CreatedAt time.Time
	Turns     []Turn
}

// RetrievalResult is produced per query and not persisted.
type RetrievalResult struct {
	ChunkID       string
	DocumentID    string
	SequenceIndex int
	Score         float64
}
