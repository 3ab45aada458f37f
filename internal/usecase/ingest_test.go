package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/adapter/chunker"
	"docchat/internal/adapter/embedding"
	"docchat/internal/adapter/extractor"
	"docchat/internal/adapter/memstore"
	"docchat/internal/domain"
	"docchat/internal/port"
	"docchat/internal/retry"
)

const testDim = 64

type testEnv struct {
	store    *memstore.MemoryStore
	vectors  *memstore.MemoryVectorStore
	embedder *embedding.MockEmbedder
	ingestor *Ingestor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstore.NewMemoryStore()
	vectors := memstore.NewMemoryVectorStore(testDim)
	embedder := embedding.NewMockEmbedder(testDim)
	ck, err := chunker.New(100, 10)
	require.NoError(t, err)

	ing := NewIngestor(store, vectors, ck, embedder, extractor.NewPlainText(), retry.Policy{MaxAttempts: 1}, 10)
	return &testEnv{store: store, vectors: vectors, embedder: embedder, ingestor: ing}
}

// failEmbedder always reports the embedding service as down.
type failEmbedder struct{}

func (failEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: embedding service down", domain.ErrTransient)
}
func (failEmbedder) Dimension() int    { return testDim }
func (failEmbedder) ModelName() string { return "fail" }

// failDeleteVectors rejects deletions but behaves normally otherwise.
type failDeleteVectors struct {
	port.VectorStore
}

func (failDeleteVectors) Delete(ids []string) error {
	return fmt.Errorf("%w: index unavailable", domain.ErrTransient)
}

func TestIngestSuccess(t *testing.T) {
	env := newTestEnv(t)

	text := "A cat sat on a mat. The mat was red. The cat was black and it liked the red mat very much indeed. Later the cat left."
	doc, err := env.ingestor.Ingest(context.Background(), "d1", "cats.txt", text)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusIngested, doc.Status)
	assert.NotEmpty(t, doc.ChunkIDs)

	stored, err := env.store.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIngested, stored.Status)

	chunks, err := env.store.GetChunksByDocument("d1")
	require.NoError(t, err)
	assert.Len(t, chunks, len(doc.ChunkIDs))
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.SequenceIndex)
	}

	count, err := env.vectors.Count()
	require.NoError(t, err)
	assert.Equal(t, len(chunks), count)
}

func TestIngestFileUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)

	doc, err := env.ingestor.IngestFile(context.Background(), "report.pdf", []byte("%PDF-1.4"))
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	// The failure is recorded so the user can see why the upload died.
	stored, getErr := env.store.GetDocument(doc.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)
}

func TestIngestEmptyText(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ingestor.Ingest(context.Background(), "d1", "empty.txt", "   \n\t  ")
	require.ErrorIs(t, err, domain.ErrEmptyInput)

	stored, getErr := env.store.GetDocument("d1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestIngestEmbeddingFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ck, err := chunker.New(100, 10)
	require.NoError(t, err)
	ing := NewIngestor(env.store, env.vectors, ck, failEmbedder{}, extractor.NewPlainText(), retry.Policy{MaxAttempts: 2}, 10)

	_, err = ing.Ingest(context.Background(), "d1", "doc.txt", "some text that will fail to embed")
	require.ErrorIs(t, err, domain.ErrEmbedding)

	stored, getErr := env.store.GetDocument("d1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusFailed, stored.Status)

	chunks, _ := env.store.GetChunksByDocument("d1")
	assert.Empty(t, chunks)
	count, _ := env.vectors.Count()
	assert.Zero(t, count)
}

func TestIngestDuplicateID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingestor.Ingest(ctx, "d1", "a.txt", "first version of the text")
	require.NoError(t, err)

	_, err = env.ingestor.Ingest(ctx, "d1", "a.txt", "second version of the text")
	require.ErrorIs(t, err, domain.ErrDocumentExists)
}

func TestIngestConcurrentSameID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.ingestor.Ingest(ctx, "d1", "a.txt", "concurrently ingested text")
		}(i)
	}
	wg.Wait()

	// Exactly one wins; the other observes the record and refuses.
	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, domain.ErrDocumentExists):
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)

	stored, err := env.store.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIngested, stored.Status)
}

func TestDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, err := env.ingestor.Ingest(ctx, "d1", "a.txt", "text to be deleted later on")
	require.NoError(t, err)
	require.NotEmpty(t, doc.ChunkIDs)

	require.NoError(t, env.ingestor.Delete("d1"))

	_, err = env.store.GetDocument("d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	chunks, _ := env.store.GetChunksByDocument("d1")
	assert.Empty(t, chunks)
	count, _ := env.vectors.Count()
	assert.Zero(t, count)
}

func TestDeleteUnknownDocument(t *testing.T) {
	env := newTestEnv(t)

	err := env.ingestor.Delete("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteFailClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingestor.Ingest(ctx, "d1", "a.txt", "text whose vectors refuse to go away")
	require.NoError(t, err)

	ck, err := chunker.New(100, 10)
	require.NoError(t, err)
	ing := NewIngestor(env.store, failDeleteVectors{env.vectors}, ck, env.embedder,
		extractor.NewPlainText(), retry.Policy{MaxAttempts: 1}, 10)

	err = ing.Delete("d1")
	require.Error(t, err)

	// Nothing was removed: the store must not point at orphaned vectors.
	stored, getErr := env.store.GetDocument("d1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StatusIngested, stored.Status)
	chunks, _ := env.store.GetChunksByDocument("d1")
	assert.NotEmpty(t, chunks)
}

func TestOnWriteHook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	writes := 0
	env.ingestor.OnWrite(func() { writes++ })

	_, err := env.ingestor.Ingest(ctx, "d1", "a.txt", "hook test text")
	require.NoError(t, err)
	assert.Equal(t, 1, writes)

	require.NoError(t, env.ingestor.Delete("d1"))
	assert.Equal(t, 2, writes)
}
