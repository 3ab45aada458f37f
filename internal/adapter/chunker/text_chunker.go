package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"docchat/internal/domain"
)

// boundaryLookback bounds how far back from the window end a split point is
// searched before falling back to a hard cut.
const boundaryLookback = 200

// TextChunker splits document text into overlapping segments. Sizes and
// spans are measured in characters (runes), not bytes or tokens, so a hard
// cut never lands inside a multi-byte rune. Splits prefer sentence or
// paragraph boundaries within the window; a hard cut at maxSize guarantees
// no segment is unbounded. Segmentation is deterministic for a given input
// and parameters, so re-ingesting identical text yields identical chunks.
type TextChunker struct {
	maxSize int
	overlap int
}

func New(maxSize, overlap int) (*TextChunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidArgument, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", domain.ErrInvalidArgument, overlap, maxSize)
	}
	return &TextChunker{maxSize: maxSize, overlap: overlap}, nil
}

func (c *TextChunker) Chunk(documentID, text string) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyInput
	}

	runes := []rune(text)
	var chunks []domain.Chunk
	seq := 0
	start := 0

	for start < len(runes) {
		end := start + c.maxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.boundaryCut(runes, start, end)
		}

		segment := string(runes[start:end])
		if strings.TrimSpace(segment) != "" {
			chunks = append(chunks, domain.Chunk{
				ID:            chunkID(documentID, start, end),
				DocumentID:    documentID,
				SequenceIndex: seq,
				Text:          segment,
				Span:          domain.CharSpan{Start: start, End: end},
			})
			seq++
		}

		if end >= len(runes) {
			break
		}

		next := end - c.overlap
		if next <= start {
			// Overlap would stall the window on degenerate input.
			next = start + 1
		}
		start = next
	}

	return chunks, nil
}

// boundaryCut searches backwards from end for a sentence or paragraph
// boundary. The search never crosses the midpoint of the window, so a
// boundary-free stretch still produces a chunk of at least maxSize/2.
func (c *TextChunker) boundaryCut(runes []rune, start, end int) int {
	floor := start + c.maxSize/2
	if lb := end - boundaryLookback; lb > floor {
		floor = lb
	}
	for i := end - 1; i >= floor; i-- {
		switch runes[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return end
}

func chunkID(documentID string, start, end int) string {
	data := fmt.Sprintf("%s:%d-%d", documentID, start, end)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
