package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"docchat/internal/domain"
)

var (
	bucketDocs      = []byte("docs")
	bucketChunks    = []byte("chunks")
	bucketDocChunks = []byte("doc_chunks")
	bucketSessions  = []byte("sessions")
	bucketTurns     = []byte("session_turns")
)

// BoltStore persists documents, chunks and sessions in a single bbolt file.
// Values are JSON-encoded; chunk order per document is kept in a separate
// doc_chunks bucket so GetChunksByDocument returns sequence order without
// sorting.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocs, bucketChunks, bucketDocChunks, bucketSessions, bucketTurns}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type docMeta struct {
	Filename  string   `json:"filename"`
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
	CreatedAt int64    `json:"created_at"`
	ChunkIDs  []string `json:"chunk_ids,omitempty"`
}

type chunkMeta struct {
	DocumentID    string `json:"document_id"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
	SpanStart     int    `json:"span_start"`
	SpanEnd       int    `json:"span_end"`
}

type sessionMeta struct {
	CreatedAt int64 `json:"created_at"`
}

type turnMeta struct {
	Role          string   `json:"role"`
	Text          string   `json:"text"`
	Timestamp     int64    `json:"timestamp"` // unix nanoseconds
	CitedChunkIDs []string `json:"cited_chunk_ids,omitempty"`
}

func (s *BoltStore) PutDocument(doc domain.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := docMeta{
			Filename:  doc.Filename,
			Status:    string(doc.Status),
			Error:     doc.Error,
			CreatedAt: doc.CreatedAt.UnixNano(),
			ChunkIDs:  doc.ChunkIDs,
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Put([]byte(doc.ID), data)
	})
}

func (s *BoltStore) GetDocument(id string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		doc = documentFromMeta(id, meta)
		return nil
	})
	return doc, err
}

func (s *BoltStore) DeleteDocument(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).Delete([]byte(id))
	})
}

func (s *BoltStore) ListDocuments() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocs)
		return b.ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			docs = append(docs, documentFromMeta(string(k), meta))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *BoltStore) UpdateStatus(id string, status domain.DocumentStatus, errText string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocs)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		meta.Status = string(status)
		meta.Error = errText
		updated, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

func (s *BoltStore) PutChunks(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		chunkBucket := tx.Bucket(bucketChunks)
		docChunks := tx.Bucket(bucketDocChunks)

		byDoc := make(map[string][]string)
		for _, chunk := range chunks {
			meta := chunkMeta{
				DocumentID:    chunk.DocumentID,
				SequenceIndex: chunk.SequenceIndex,
				Text:          chunk.Text,
				SpanStart:     chunk.Span.Start,
				SpanEnd:       chunk.Span.End,
			}
			data, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(chunk.ID), data); err != nil {
				return err
			}
			byDoc[chunk.DocumentID] = append(byDoc[chunk.DocumentID], chunk.ID)
		}

		for docID, ids := range byDoc {
			var existing []string
			if data := docChunks.Get([]byte(docID)); data != nil {
				json.Unmarshal(data, &existing)
			}
			existing = append(existing, ids...)
			data, err := json.Marshal(existing)
			if err != nil {
				return err
			}
			if err := docChunks.Put([]byte(docID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) GetChunk(id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: chunk %s", domain.ErrNotFound, id)
		}
		var meta chunkMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		chunk = chunkFromMeta(id, meta)
		return nil
	})
	return chunk, err
}

func (s *BoltStore) GetChunksByDocument(documentID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		var ids []string
		if data := tx.Bucket(bucketDocChunks).Get([]byte(documentID)); data != nil {
			if err := json.Unmarshal(data, &ids); err != nil {
				return err
			}
		}
		chunkBucket := tx.Bucket(bucketChunks)
		for _, id := range ids {
			data := chunkBucket.Get([]byte(id))
			if data == nil {
				continue
			}
			var meta chunkMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				return err
			}
			chunks = append(chunks, chunkFromMeta(id, meta))
		}
		return nil
	})
	return chunks, err
}

func (s *BoltStore) DeleteChunksByDocument(documentID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		docChunks := tx.Bucket(bucketDocChunks)
		var ids []string
		if data := docChunks.Get([]byte(documentID)); data != nil {
			if err := json.Unmarshal(data, &ids); err != nil {
				return err
			}
		}
		chunkBucket := tx.Bucket(bucketChunks)
		for _, id := range ids {
			if err := chunkBucket.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return docChunks.Delete([]byte(documentID))
	})
}

func (s *BoltStore) GetSession(id string) (domain.Session, error) {
	var session domain.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
		}
		var meta sessionMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		session = domain.Session{
			ID:        id,
			CreatedAt: time.Unix(0, meta.CreatedAt),
		}
		turns, err := readTurns(tx, id)
		if err != nil {
			return err
		}
		session.Turns = turns
		return nil
	})
	return session, err
}

// AppendTurn creates the session on first use; unknown session IDs are not
// an error.
func (s *BoltStore) AppendTurn(sessionID string, turn domain.Turn) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		if sessions.Get([]byte(sessionID)) == nil {
			meta := sessionMeta{CreatedAt: time.Now().UnixNano()}
			data, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			if err := sessions.Put([]byte(sessionID), data); err != nil {
				return err
			}
		}

		b, err := tx.Bucket(bucketTurns).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		meta := turnMeta{
			Role:          string(turn.Role),
			Text:          turn.Text,
			Timestamp:     turn.Timestamp.UnixNano(),
			CitedChunkIDs: turn.CitedChunkIDs,
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

func (s *BoltStore) ListSessions() ([]domain.Session, error) {
	var sessions []domain.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.ForEach(func(k, v []byte) error {
			var meta sessionMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			id := string(k)
			turns, err := readTurns(tx, id)
			if err != nil {
				return err
			}
			sessions = append(sessions, domain.Session{
				ID:        id,
				CreatedAt: time.Unix(0, meta.CreatedAt),
				Turns:     turns,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func readTurns(tx *bbolt.Tx, sessionID string) ([]domain.Turn, error) {
	b := tx.Bucket(bucketTurns).Bucket([]byte(sessionID))
	if b == nil {
		return nil, nil
	}
	var turns []domain.Turn
	err := b.ForEach(func(k, v []byte) error {
		var meta turnMeta
		if err := json.Unmarshal(v, &meta); err != nil {
			return err
		}
		turns = append(turns, domain.Turn{
			Role:          domain.Role(meta.Role),
			Text:          meta.Text,
			Timestamp:     time.Unix(0, meta.Timestamp),
			CitedChunkIDs: meta.CitedChunkIDs,
		})
		return nil
	})
	return turns, err
}

func documentFromMeta(id string, meta docMeta) domain.Document {
	return domain.Document{
		ID:        id,
		Filename:  meta.Filename,
		Status:    domain.DocumentStatus(meta.Status),
		Error:     meta.Error,
		CreatedAt: time.Unix(0, meta.CreatedAt),
		ChunkIDs:  meta.ChunkIDs,
	}
}

func chunkFromMeta(id string, meta chunkMeta) domain.Chunk {
	return domain.Chunk{
		ID:            id,
		DocumentID:    meta.DocumentID,
		SequenceIndex: meta.SequenceIndex,
		Text:          meta.Text,
		Span:          domain.CharSpan{Start: meta.SpanStart, End: meta.SpanEnd},
	}
}
