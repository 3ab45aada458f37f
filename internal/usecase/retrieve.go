package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"docchat/internal/domain"
	"docchat/internal/port"
	"docchat/internal/retry"
)

// dedupPrefixLen is the length in characters of the normalized text prefix
// used as the deduplication key. Overlapping chunks share their boundary
// text, so near-duplicates collapse to one result per query.
const dedupPrefixLen = 80

// Retriever embeds a query and searches the vector index. Only chunks of
// ingested documents are eligible; pending and failed documents are
// invisible to retrieval.
type Retriever struct {
	docs     port.DocumentStore
	vectors  port.VectorStore
	embedder port.Embedder
	retry    retry.Policy
	minScore float64
}

func NewRetriever(
	docs port.DocumentStore,
	vectors port.VectorStore,
	embedder port.Embedder,
	policy retry.Policy,
	minScore float64,
) *Retriever {
	return &Retriever{
		docs:     docs,
		vectors:  vectors,
		embedder: embedder,
		retry:    policy,
		minScore: minScore,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, documentFilter map[string]struct{}) ([]domain.RetrievalResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidArgument, topK)
	}

	vector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	eligible, err := r.eligibleDocuments(documentFilter)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return []domain.RetrievalResult{}, nil
	}

	// Over-fetch so deduplication can still fill topK.
	hits, err := r.vectors.Search(vector, topK*2, eligible)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := r.dedup(hits)

	if r.minScore > 0 {
		filtered := results[:0]
		for _, res := range results {
			if res.Score >= r.minScore {
				filtered = append(filtered, res)
			}
		}
		results = filtered
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

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	var vectors [][]float32
	err := r.retry.Do(ctx, func() error {
		var embedErr error
		vectors, embedErr = r.embedder.Embed(ctx, []string{query})
		return embedErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query vector, got %d", domain.ErrEmbedding, len(vectors))
	}
	if len(vectors[0]) != r.embedder.Dimension() {
		return nil, fmt.Errorf("%w: query vector has dimension %d, expected %d",
			domain.ErrEmbedding, len(vectors[0]), r.embedder.Dimension())
	}
	return vectors[0], nil
}

// eligibleDocuments returns ingested document IDs, intersected with the
// caller's filter when given.
func (r *Retriever) eligibleDocuments(filter map[string]struct{}) (map[string]struct{}, error) {
	docs, err := r.docs.ListDocuments()
	if err != nil {
		return nil, err
	}
	eligible := make(map[string]struct{})
	for _, doc := range docs {
		if doc.Status != domain.StatusIngested {
			continue
		}
		if filter != nil {
			if _, ok := filter[doc.ID]; !ok {
				continue
			}
		}
		eligible[doc.ID] = struct{}{}
	}
	return eligible, nil
}

// dedup keeps at most one result per normalized text prefix. Exact-prefix
// matching rather than a similarity threshold: deterministic, and it is the
// overlap region of adjacent chunks that produces the duplicates we care
// about.
func (r *Retriever) dedup(hits []port.VectorResult) []domain.RetrievalResult {
	seen := make(map[string]struct{}, len(hits))
	results := make([]domain.RetrievalResult, 0, len(hits))

	for _, hit := range hits {
		chunk, err := r.docs.GetChunk(hit.ID)
		if err != nil {
			// The index may briefly lead the store during a delete; skip
			// rather than fail the whole query.
			continue
		}
		key := dedupKey(chunk.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, domain.RetrievalResult{
			ChunkID:       hit.ID,
			DocumentID:    hit.DocumentID,
			SequenceIndex: hit.SequenceIndex,
			Score:         hit.Score,
		})
	}
	return results
}

func dedupKey(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if runes := []rune(normalized); len(runes) > dedupPrefixLen {
		normalized = string(runes[:dedupPrefixLen])
	}
	return normalized
}
