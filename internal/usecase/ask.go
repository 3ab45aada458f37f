package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docchat/internal/domain"
	"docchat/internal/port"
	"docchat/internal/retry"
)

// AskState names a stage of the query flow. FAILED is terminal and reachable
// from any non-terminal state.
type AskState string

const (
	StateReceived       AskState = "received"
	StateEmbeddingQuery AskState = "embedding_query"
	StateRetrieving     AskState = "retrieving"
	StateAssembling     AskState = "assembling"
	StateGenerating     AskState = "generating"
	StateCompleted      AskState = "completed"
	StateFailed         AskState = "failed"
)

// AskResult is the outcome of a completed query.
type AskResult struct {
	Answer           string
	CitedChunkIDs    []string
	CitedDocumentIDs []string
	State            AskState
}

// AskService runs the end-to-end query flow: read history, retrieve context,
// assemble a bounded prompt, generate, and record both turns.
type AskService struct {
	retriever     port.Retriever
	generator     port.Generator
	assembler     *Assembler
	conversations *Conversations
	docs          port.DocumentStore
	retry         retry.Policy
	topK          int
	maxTurns      int

	// fallbackAnswers controls behavior when generation retries are
	// exhausted: instead of surfacing the failure, answer from the top
	// retrieved excerpts directly.
	fallbackAnswers bool
}

func NewAskService(
	retriever port.Retriever,
	generator port.Generator,
	assembler *Assembler,
	conversations *Conversations,
	docs port.DocumentStore,
	policy retry.Policy,
	topK, maxTurns int,
	fallbackAnswers bool,
) *AskService {
	if topK <= 0 {
		topK = 3
	}
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &AskService{
		retriever:       retriever,
		generator:       generator,
		assembler:       assembler,
		conversations:   conversations,
		docs:            docs,
		retry:           policy,
		topK:            topK,
		maxTurns:        maxTurns,
		fallbackAnswers: fallbackAnswers,
	}
}

// Ask answers a query grounded in the indexed documents. Zero retrieval
// results is not a failure: the model answers from history alone and may
// say no relevant documents exist. If ctx is cancelled the generation call
// is aborted and no turn is appended.
func (s *AskService) Ask(ctx context.Context, sessionID, query string) (AskResult, error) {
	if strings.TrimSpace(query) == "" {
		return AskResult{State: StateFailed}, fmt.Errorf("%w: query is empty", domain.ErrEmptyInput)
	}

	history, err := s.conversations.GetRecent(sessionID, s.maxTurns)
	if err != nil {
		return AskResult{State: StateFailed}, err
	}

	// EMBEDDING_QUERY and RETRIEVING: the retriever embeds the query itself,
	// so both transitions happen inside Retrieve. An EmbeddingError here is
	// the EMBEDDING_QUERY -> FAILED edge.
	results, err := s.retriever.Retrieve(ctx, query, s.topK, nil)
	if err != nil {
		return AskResult{State: StateFailed}, err
	}

	// ASSEMBLING
	prompt, err := s.assembler.Assemble(history, query, results)
	if err != nil {
		return AskResult{State: StateFailed}, err
	}

	// GENERATING
	answer, err := s.generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled: discard any partial generation, append nothing.
			return AskResult{State: StateFailed}, ctx.Err()
		}
		if !s.fallbackAnswers {
			return AskResult{State: StateFailed}, err
		}
		answer = s.fallbackAnswer(prompt)
	}

	// COMPLETED: record both turns, citing the chunks that were actually in
	// the assembled prompt.
	now := time.Now()
	userTurn := domain.Turn{
		Role:      domain.RoleUser,
		Text:      query,
		Timestamp: now,
	}
	assistantTurn := domain.Turn{
		Role:          domain.RoleAssistant,
		Text:          answer,
		CitedChunkIDs: prompt.IncludedChunkIDs,
	}
	if err := s.conversations.Append(sessionID, userTurn); err != nil {
		return AskResult{State: StateFailed}, err
	}
	if err := s.conversations.Append(sessionID, assistantTurn); err != nil {
		return AskResult{State: StateFailed}, err
	}

	return AskResult{
		Answer:           answer,
		CitedChunkIDs:    prompt.IncludedChunkIDs,
		CitedDocumentIDs: prompt.CitedDocumentIDs,
		State:            StateCompleted,
	}, nil
}

func (s *AskService) generate(ctx context.Context, prompt AssembledPrompt) (string, error) {
	var answer string
	err := s.retry.Do(ctx, func() error {
		var genErr error
		answer, genErr = s.generator.Generate(ctx, prompt.Text)
		return genErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if domain.IsTransient(err) {
			err = fmt.Errorf("%w: %v", domain.ErrGeneration, err)
		}
		return "", err
	}
	return answer, nil
}

// fallbackAnswer quotes the top included excerpts when the generation
// service is unavailable.
func (s *AskService) fallbackAnswer(prompt AssembledPrompt) string {
	if len(prompt.IncludedChunkIDs) == 0 {
		return "I couldn't find relevant information in the uploaded documents to answer your question. Try rephrasing, or upload more relevant documents."
	}

	var sb strings.Builder
	sb.WriteString("The answer service is currently unavailable, but these document excerpts look relevant:\n\n")
	quoted := 0
	for _, chunkID := range prompt.IncludedChunkIDs {
		if quoted == 2 {
			break
		}
		chunk, err := s.docs.GetChunk(chunkID)
		if err != nil {
			continue
		}
		name := chunk.DocumentID
		if doc, err := s.docs.GetDocument(chunk.DocumentID); err == nil {
			name = doc.Filename
		}
		sb.WriteString(fmt.Sprintf("From %s:\n%s\n\n", name, strings.TrimSpace(chunk.Text)))
		quoted++
	}
	sb.WriteString("Please try your question again later.")
	return sb.String()
}
