package store

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"docchat/internal/domain"
	"docchat/internal/port"
)

var bucketVectors = []byte("vectors")

// BoltVectorStore implements VectorStore using BoltDB for persistence.
// Uses brute-force cosine search over an in-memory mirror; adequate for
// per-user document collections, replaceable with HNSW for larger indexes.
type BoltVectorStore struct {
	db        *bbolt.DB
	dimension int
	mu        sync.RWMutex
	vectors   map[string]vectorEntry
}

type vectorEntry struct {
	vector        []float32
	documentID    string
	sequenceIndex int
}

type storedVector struct {
	Vector        []float32 `json:"v"`
	DocumentID    string    `json:"doc"`
	SequenceIndex int       `json:"seq"`
}

// NewBoltVectorStore creates a new BoltDB-backed vector store. The dimension
// is fixed for the lifetime of the index; mismatching vectors are rejected
// as consistency violations.
func NewBoltVectorStore(db *bbolt.DB, dimension int) (*BoltVectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", domain.ErrInvalidArgument, dimension)
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vectors bucket: %w", err)
	}

	store := &BoltVectorStore{
		db:        db,
		dimension: dimension,
		vectors:   make(map[string]vectorEntry),
	}

	if err := store.loadVectors(); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	return store, nil
}

// loadVectors loads all persisted vectors into memory.
func (s *BoltVectorStore) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}
			if len(stored.Vector) != s.dimension {
				return fmt.Errorf("%w: stored vector %s has dimension %d, index expects %d",
					domain.ErrConsistency, string(k), len(stored.Vector), s.dimension)
			}
			s.vectors[string(k)] = vectorEntry{
				vector:        stored.Vector,
				documentID:    stored.DocumentID,
				sequenceIndex: stored.SequenceIndex,
			}
			return nil
		})
	})
}

// Upsert adds or updates vectors in the store.
func (s *BoltVectorStore) Upsert(items []port.VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return fmt.Errorf("vectors bucket not found")
		}

		for _, item := range items {
			if len(item.Vector) != s.dimension {
				return fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d",
					domain.ErrConsistency, s.dimension, len(item.Vector))
			}

			stored := storedVector{
				Vector:        item.Vector,
				DocumentID:    item.DocumentID,
				SequenceIndex: item.SequenceIndex,
			}
			data, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(item.ID), data); err != nil {
				return err
			}

			s.vectors[item.ID] = vectorEntry{
				vector:        item.Vector,
				documentID:    item.DocumentID,
				sequenceIndex: item.SequenceIndex,
			}
		}
		return nil
	})
}

// Search finds the k nearest vectors by cosine similarity, restricted to
// allowedDocs when non-nil.
func (s *BoltVectorStore) Search(query []float32, k int, allowedDocs map[string]struct{}) ([]port.VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: expected %d, got %d",
			domain.ErrConsistency, s.dimension, len(query))
	}
	if k <= 0 || len(s.vectors) == 0 {
		return nil, nil
	}

	scores := make([]port.VectorResult, 0, len(s.vectors))
	for id, entry := range s.vectors {
		if allowedDocs != nil {
			if _, ok := allowedDocs[entry.documentID]; !ok {
				continue
			}
		}
		scores = append(scores, port.VectorResult{
			ID:            id,
			DocumentID:    entry.documentID,
			SequenceIndex: entry.sequenceIndex,
			Score:         cosineSimilarity(query, entry.vector),
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].DocumentID != scores[j].DocumentID {
			return scores[i].DocumentID < scores[j].DocumentID
		}
		return scores[i].SequenceIndex < scores[j].SequenceIndex
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Delete removes vectors by their IDs.
func (s *BoltVectorStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		if b == nil {
			return nil
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
			delete(s.vectors, id)
		}
		return nil
	})
}

// Count returns the number of vectors in the store.
func (s *BoltVectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
