package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"docchat/internal/domain"
	"docchat/internal/port"
	"docchat/internal/retry"
)

// Ingestor runs the document write path: chunk, embed, index, flip status.
//
// Ingestion is serialized per document by a keyed lock; unrelated documents
// ingest concurrently and queries never take the lock. Embedding calls run
// while holding only the one document's key. The status flip to ingested is
// the last write, so retrieval (which filters on status) never observes a
// partially written document.
type Ingestor struct {
	docs      port.DocumentStore
	vectors   port.VectorStore
	chunker   port.Chunker
	embedder  port.Embedder
	extractor port.TextExtractor
	retry     retry.Policy
	batchSize int

	// Progress, when set, is called after each embedded batch.
	Progress func(done, total int)

	// onWrite is invoked after any successful index mutation, used to
	// invalidate the query cache.
	onWrite func()

	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func NewIngestor(
	docs port.DocumentStore,
	vectors port.VectorStore,
	chunker port.Chunker,
	embedder port.Embedder,
	extractor port.TextExtractor,
	policy retry.Policy,
	batchSize int,
) *Ingestor {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Ingestor{
		docs:      docs,
		vectors:   vectors,
		chunker:   chunker,
		embedder:  embedder,
		extractor: extractor,
		retry:     policy,
		batchSize: batchSize,
		locks:     make(map[string]*docLock),
	}
}

// OnWrite registers a hook called after every successful ingest or delete.
func (g *Ingestor) OnWrite(fn func()) {
	g.onWrite = fn
}

// lockDocument acquires the per-document exclusivity token. The returned
// function releases it.
func (g *Ingestor) lockDocument(id string) func() {
	g.mu.Lock()
	l, ok := g.locks[id]
	if !ok {
		l = &docLock{}
		g.locks[id] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, id)
		}
		g.mu.Unlock()
	}
}

// IngestFile extracts text from uploaded bytes and ingests it under a fresh
// document ID. Extraction failures are recorded as a failed document.
func (g *Ingestor) IngestFile(ctx context.Context, filename string, data []byte) (domain.Document, error) {
	id := uuid.NewString()

	text, err := g.extractor.Extract(data, filename)
	if err != nil {
		doc := domain.Document{
			ID:        id,
			Filename:  filename,
			Status:    domain.StatusFailed,
			Error:     err.Error(),
			CreatedAt: time.Now(),
		}
		if putErr := g.docs.PutDocument(doc); putErr != nil {
			return doc, putErr
		}
		return doc, err
	}

	return g.Ingest(ctx, id, filename, text)
}

// Ingest creates the document, chunks and embeds its text, and indexes the
// vectors. The document becomes visible to retrieval only after every chunk
// is indexed. On failure the document is marked failed and partial writes
// are rolled back.
//
// Concurrent calls for the same document ID serialize on the per-document
// lock; the second caller observes the first one's record and fails with
// ErrDocumentExists.
func (g *Ingestor) Ingest(ctx context.Context, id, filename, text string) (domain.Document, error) {
	unlock := g.lockDocument(id)
	defer unlock()

	if _, err := g.docs.GetDocument(id); err == nil {
		return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentExists, id)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Document{}, err
	}

	doc := domain.Document{
		ID:        id,
		Filename:  filename,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
	if err := g.docs.PutDocument(doc); err != nil {
		return domain.Document{}, fmt.Errorf("failed to create document: %w", err)
	}

	chunks, err := g.chunker.Chunk(id, text)
	if err != nil {
		return doc, g.fail(doc, err)
	}

	indexed, err := g.embedAndIndex(ctx, chunks)
	if err != nil {
		g.rollback(doc, indexed)
		return doc, g.fail(doc, err)
	}

	if err := g.docs.PutChunks(chunks); err != nil {
		g.rollback(doc, indexed)
		return doc, g.fail(doc, err)
	}

	doc.ChunkIDs = make([]string, len(chunks))
	for i, chunk := range chunks {
		doc.ChunkIDs[i] = chunk.ID
	}
	doc.Status = domain.StatusIngested
	if err := g.docs.PutDocument(doc); err != nil {
		g.docs.DeleteChunksByDocument(id)
		g.rollback(doc, indexed)
		return doc, g.fail(doc, err)
	}

	if g.onWrite != nil {
		g.onWrite()
	}
	return doc, nil
}

// embedAndIndex embeds chunks in batches and upserts their vectors,
// returning the IDs written so far for rollback.
func (g *Ingestor) embedAndIndex(ctx context.Context, chunks []domain.Chunk) ([]string, error) {
	var indexed []string

	for start := 0; start < len(chunks); start += g.batchSize {
		end := start + g.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		var vectors [][]float32
		err := g.retry.Do(ctx, func() error {
			var embedErr error
			vectors, embedErr = g.embedder.Embed(ctx, texts)
			return embedErr
		})
		if err != nil {
			if domain.IsTransient(err) {
				err = fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
			}
			return indexed, err
		}
		if len(vectors) != len(batch) {
			return indexed, fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbedding, len(vectors), len(batch))
		}

		items := make([]port.VectorItem, len(batch))
		for i := range batch {
			chunks[start+i].Vector = vectors[i]
			items[i] = port.VectorItem{
				ID:            batch[i].ID,
				DocumentID:    batch[i].DocumentID,
				SequenceIndex: batch[i].SequenceIndex,
				Vector:        vectors[i],
			}
		}
		if err := g.vectors.Upsert(items); err != nil {
			return indexed, err
		}
		for _, item := range items {
			indexed = append(indexed, item.ID)
		}

		if g.Progress != nil {
			g.Progress(end, len(chunks))
		}
	}

	return indexed, nil
}

// fail marks the document failed with the underlying error recorded.
func (g *Ingestor) fail(doc domain.Document, cause error) error {
	if err := g.docs.UpdateStatus(doc.ID, domain.StatusFailed, cause.Error()); err != nil {
		return fmt.Errorf("ingestion failed (%v) and status update failed: %w", cause, err)
	}
	return fmt.Errorf("ingestion of %s failed: %w", doc.ID, cause)
}

// rollback removes partially written vectors and chunks. Best effort: the
// document is already marked failed, so nothing serves from it either way.
func (g *Ingestor) rollback(doc domain.Document, vectorIDs []string) {
	if len(vectorIDs) > 0 {
		g.vectors.Delete(vectorIDs)
	}
	g.docs.DeleteChunksByDocument(doc.ID)
}

// Delete removes a document and its chunks. Vectors go first: if the index
// rejects the removal, nothing is deleted, so the store never points at
// vectors that remain searchable.
func (g *Ingestor) Delete(documentID string) error {
	unlock := g.lockDocument(documentID)
	defer unlock()

	if _, err := g.docs.GetDocument(documentID); err != nil {
		return err
	}

	chunks, err := g.docs.GetChunksByDocument(documentID)
	if err != nil {
		return err
	}
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
	}

	if err := g.vectors.Delete(ids); err != nil {
		return fmt.Errorf("failed to remove vectors for %s, aborting delete: %w", documentID, err)
	}
	if err := g.docs.DeleteChunksByDocument(documentID); err != nil {
		return err
	}
	if err := g.docs.DeleteDocument(documentID); err != nil {
		return err
	}

	if g.onWrite != nil {
		g.onWrite()
	}
	return nil
}
