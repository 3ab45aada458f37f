package memstore

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// MemoryVectorStore is a brute-force cosine index without persistence.
type MemoryVectorStore struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string]port.VectorItem
}

func NewMemoryVectorStore(dimension int) *MemoryVectorStore {
	return &MemoryVectorStore{
		dimension: dimension,
		vectors:   make(map[string]port.VectorItem),
	}
}

func (s *MemoryVectorStore) Upsert(items []port.VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if len(item.Vector) != s.dimension {
			return fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d",
				domain.ErrConsistency, s.dimension, len(item.Vector))
		}
		s.vectors[item.ID] = item
	}
	return nil
}

func (s *MemoryVectorStore) Search(query []float32, k int, allowedDocs map[string]struct{}) ([]port.VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d",
			domain.ErrConsistency, s.dimension, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	results := make([]port.VectorResult, 0, len(s.vectors))
	for id, item := range s.vectors {
		if allowedDocs != nil {
			if _, ok := allowedDocs[item.DocumentID]; !ok {
				continue
			}
		}
		results = append(results, port.VectorResult{
			ID:            id,
			DocumentID:    item.DocumentID,
			SequenceIndex: item.SequenceIndex,
			Score:         cosine(query, item.Vector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].SequenceIndex < results[j].SequenceIndex
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (s *MemoryVectorStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.vectors, id)
	}
	return nil
}

func (s *MemoryVectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
