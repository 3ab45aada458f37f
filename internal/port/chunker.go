package port

import "docchat/internal/domain"

type Chunker interface {
	// Chunk splits text into ordered segments for the given document.
	// Vectors are not populated; embedding happens downstream.
	Chunk(documentID, text string) ([]domain.Chunk, error)
}
