package usecase

import (
	"fmt"
	"strings"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// DefaultPreamble is the static system preamble for grounded answering.
const DefaultPreamble = `You are a helpful assistant that answers questions based on provided documents.
Answer based primarily on the document excerpts below. If they do not contain
the relevant information, clearly say so. Cite the excerpt markers you used.`

// Assembler merges conversation history and retrieved chunks into a single
// bounded prompt. The budget is a hard ceiling in characters. When over
// budget, the oldest conversation turns are dropped first, then the
// lowest-scored chunks; the preamble and current query are never dropped.
type Assembler struct {
	docs     port.DocumentStore
	preamble string
	budget   int
	maxTurns int
}

// AssembledPrompt carries the prompt text plus the chunks actually included,
// for citation tracking on the assistant turn.
type AssembledPrompt struct {
	Text             string
	IncludedChunkIDs []string
	CitedDocumentIDs []string
}

func NewAssembler(docs port.DocumentStore, preamble string, budget, maxTurns int) *Assembler {
	if preamble == "" {
		preamble = DefaultPreamble
	}
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Assembler{
		docs:     docs,
		preamble: preamble,
		budget:   budget,
		maxTurns: maxTurns,
	}
}

type excerpt struct {
	chunkID    string
	documentID string
	filename   string
	text       string
}

func (a *Assembler) Assemble(history []domain.Turn, query string, results []domain.RetrievalResult) (AssembledPrompt, error) {
	excerpts := a.loadExcerpts(results)

	// Bounded window of recent turns.
	turns := history
	if len(turns) > a.maxTurns {
		turns = turns[len(turns)-a.maxTurns:]
	}

	for {
		text := a.render(turns, excerpts, query)
		if len(text) <= a.budget {
			return assembled(text, excerpts), nil
		}
		switch {
		case len(turns) > 0:
			turns = turns[1:] // Drop the oldest turn first.
		case len(excerpts) > 0:
			excerpts = excerpts[:len(excerpts)-1] // Then the lowest-scored chunk.
		default:
			return AssembledPrompt{}, fmt.Errorf("%w: preamble and query need %d chars, budget is %d",
				domain.ErrBudgetTooSmall, len(text), a.budget)
		}
	}
}

// loadExcerpts hydrates retrieval results, preserving their score order.
// Results whose chunk vanished mid-query are skipped.
func (a *Assembler) loadExcerpts(results []domain.RetrievalResult) []excerpt {
	excerpts := make([]excerpt, 0, len(results))
	for _, res := range results {
		chunk, err := a.docs.GetChunk(res.ChunkID)
		if err != nil {
			continue
		}
		filename := res.DocumentID
		if doc, err := a.docs.GetDocument(res.DocumentID); err == nil {
			filename = doc.Filename
		}
		excerpts = append(excerpts, excerpt{
			chunkID:    res.ChunkID,
			documentID: res.DocumentID,
			filename:   filename,
			text:       chunk.Text,
		})
	}
	return excerpts
}

// render produces the prompt in fixed order: preamble, history, excerpts,
// current query.
func (a *Assembler) render(turns []domain.Turn, excerpts []excerpt, query string) string {
	var sb strings.Builder
	sb.WriteString(a.preamble)
	sb.WriteString("\n")

	if len(turns) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, turn := range turns {
			sb.WriteString(string(turn.Role))
			sb.WriteString(": ")
			sb.WriteString(turn.Text)
			sb.WriteString("\n")
		}
	}

	if len(excerpts) > 0 {
		sb.WriteString("\nDocument excerpts:\n")
		for _, ex := range excerpts {
			sb.WriteString(fmt.Sprintf("[chunk:%s] (from %s)\n", ex.chunkID, ex.filename))
			sb.WriteString(ex.text)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\nAnswer:")
	return sb.String()
}

func assembled(text string, excerpts []excerpt) AssembledPrompt {
	prompt := AssembledPrompt{Text: text}
	seenDocs := make(map[string]struct{}, len(excerpts))
	for _, ex := range excerpts {
		prompt.IncludedChunkIDs = append(prompt.IncludedChunkIDs, ex.chunkID)
		if _, ok := seenDocs[ex.documentID]; !ok {
			seenDocs[ex.documentID] = struct{}{}
			prompt.CitedDocumentIDs = append(prompt.CitedDocumentIDs, ex.documentID)
		}
	}
	return prompt
}
