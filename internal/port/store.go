package port

import "docchat/internal/domain"

// DocumentStore persists document and chunk records.
type DocumentStore interface {
	PutDocument(doc domain.Document) error

	GetDocument(id string) (domain.Document, error)

	DeleteDocument(id string) error

	// ListDocuments returns documents newest first.
	ListDocuments() ([]domain.Document, error)

	// UpdateStatus sets a document's status and, for failures, the
	// underlying error text.
	UpdateStatus(id string, status domain.DocumentStatus, errText string) error

	PutChunks(chunks []domain.Chunk) error

	GetChunk(id string) (domain.Chunk, error)

	// GetChunksByDocument returns chunks in sequence order.
	GetChunksByDocument(documentID string) ([]domain.Chunk, error)

	DeleteChunksByDocument(documentID string) error

	Close() error
}

// SessionStore persists conversation sessions and their turns.
// Losing it must not affect the document store or vector index.
type SessionStore interface {
	GetSession(id string) (domain.Session, error)

	// AppendTurn appends a turn, creating the session lazily if it does not
	// exist yet.
	AppendTurn(sessionID string, turn domain.Turn) error

	ListSessions() ([]domain.Session, error)
}
