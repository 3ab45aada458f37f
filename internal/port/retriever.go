package port

import (
	"context"

	"docchat/internal/domain"
)

// Retriever defines the interface for searching indexed content.
type Retriever interface {
	// Retrieve embeds the query and returns up to topK results in descending
	// score order. A nil documentFilter searches all ingested documents.
	Retrieve(ctx context.Context, query string, topK int, documentFilter map[string]struct{}) ([]domain.RetrievalResult, error)
}
