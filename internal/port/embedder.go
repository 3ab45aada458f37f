package port

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension. Fixed for the
	// lifetime of an index.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore stores and searches embedding vectors.
type VectorStore interface {
	// Upsert adds or updates vectors in the store.
	Upsert(items []VectorItem) error

	// Search finds the k nearest vectors to the query. A nil allowedDocs
	// searches the whole index; otherwise only vectors whose document ID is
	// in the set are considered.
	Search(query []float32, k int, allowedDocs map[string]struct{}) ([]VectorResult, error)

	// Delete removes vectors by their IDs.
	Delete(ids []string) error

	// Count returns the number of vectors in the store.
	Count() (int, error)
}

// VectorItem represents a vector to be stored.
type VectorItem struct {
	ID            string // Chunk ID
	DocumentID    string
	SequenceIndex int
	Vector        []float32
}

// VectorResult represents a search result.
type VectorResult struct {
	ID            string // Chunk ID
	DocumentID    string
	SequenceIndex int
	Score         float64 // Cosine similarity (higher is better)
}
