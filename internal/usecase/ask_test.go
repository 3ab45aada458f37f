package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
	"docchat/internal/port"
	"docchat/internal/retry"
)

type fakeGenerator struct {
	answer     string
	err        error
	calls      int
	lastPrompt string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	g.lastPrompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *fakeGenerator) ModelName() string { return "fake" }

// cancellingGenerator cancels the request context and reports the
// cancellation, simulating a client that went away mid-generation.
type cancellingGenerator struct {
	cancel context.CancelFunc
}

func (g *cancellingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.cancel()
	return "partial answ", ctx.Err()
}

func (g *cancellingGenerator) ModelName() string { return "cancelling" }

func newAskService(env *testEnv, gen port.Generator, fallback bool) (*AskService, *Conversations) {
	conversations := NewConversations(env.store)
	assembler := NewAssembler(env.store, "", 12000, 10)
	svc := NewAskService(
		NewRetriever(env.store, env.vectors, env.embedder, retry.Policy{MaxAttempts: 1}, 0),
		gen, assembler, conversations, env.store,
		retry.Policy{MaxAttempts: 1}, 3, 10, fallback,
	)
	return svc, conversations
}

func TestAskEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingestor.Ingest(ctx, "d1", "cats.txt", "Cats sleep for most of the day and hunt at dawn.")
	require.NoError(t, err)

	gen := &fakeGenerator{answer: "Cats sleep most of the day."}
	svc, conversations := newAskService(env, gen, true)

	result, err := svc.Ask(ctx, "s1", "When do cats sleep?")
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, "Cats sleep most of the day.", result.Answer)
	assert.Contains(t, result.CitedDocumentIDs, "d1")
	assert.NotEmpty(t, result.CitedChunkIDs)

	// The prompt carried the excerpt and the question.
	assert.Contains(t, gen.lastPrompt, "Cats sleep for most of the day")
	assert.Contains(t, gen.lastPrompt, "Question: When do cats sleep?")

	// Both turns recorded, assistant turn cites what the prompt included.
	turns, err := conversations.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, "When do cats sleep?", turns[0].Text)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
	assert.Equal(t, result.CitedChunkIDs, turns[1].CitedChunkIDs)
}

func TestAskEmptyQuery(t *testing.T) {
	env := newTestEnv(t)
	svc, conversations := newAskService(env, &fakeGenerator{answer: "x"}, true)

	result, err := svc.Ask(context.Background(), "s1", "   ")
	require.ErrorIs(t, err, domain.ErrEmptyInput)
	assert.Equal(t, StateFailed, result.State)

	turns, _ := conversations.History("s1")
	assert.Empty(t, turns)
}

func TestAskEmptyIndexStillAnswers(t *testing.T) {
	env := newTestEnv(t)
	gen := &fakeGenerator{answer: "I have no documents to draw on."}
	svc, conversations := newAskService(env, gen, true)

	result, err := svc.Ask(context.Background(), "s1", "what do you know?")
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, result.State)
	assert.Empty(t, result.CitedChunkIDs)
	assert.NotContains(t, gen.lastPrompt, "Document excerpts:")

	turns, _ := conversations.History("s1")
	assert.Len(t, turns, 2)
}

func TestAskHistoryCarriedIntoPrompt(t *testing.T) {
	env := newTestEnv(t)
	gen := &fakeGenerator{answer: "ok"}
	svc, conversations := newAskService(env, gen, true)

	require.NoError(t, conversations.Append("s1", domain.Turn{Role: domain.RoleUser, Text: "earlier question about parrots"}))
	require.NoError(t, conversations.Append("s1", domain.Turn{Role: domain.RoleAssistant, Text: "earlier answer about parrots"}))

	_, err := svc.Ask(context.Background(), "s1", "and what else?")
	require.NoError(t, err)

	assert.Contains(t, gen.lastPrompt, "earlier question about parrots")
	assert.Contains(t, gen.lastPrompt, "earlier answer about parrots")
}

func TestAskFallbackOnGenerationFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingestor.Ingest(ctx, "d1", "cats.txt", "Cats sleep for most of the day and hunt at dawn.")
	require.NoError(t, err)

	gen := &fakeGenerator{err: errors.New("model exploded")}
	svc, conversations := newAskService(env, gen, true)

	result, err := svc.Ask(ctx, "s1", "When do cats sleep?")
	require.NoError(t, err)

	// Degraded answer quoting the retrieved excerpt.
	assert.Equal(t, StateCompleted, result.State)
	assert.Contains(t, result.Answer, "Cats sleep for most of the day")
	assert.Contains(t, result.Answer, "cats.txt")

	turns, _ := conversations.History("s1")
	assert.Len(t, turns, 2)
}

func TestAskFallbackDisabledSurfacesError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingestor.Ingest(ctx, "d1", "cats.txt", "Cats sleep for most of the day.")
	require.NoError(t, err)

	svc, conversations := newAskService(env, &fakeGenerator{err: errors.New("model exploded")}, false)

	result, err := svc.Ask(ctx, "s1", "When do cats sleep?")
	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)

	turns, _ := conversations.History("s1")
	assert.Empty(t, turns)
}

func TestAskFallbackWithNoExcerpts(t *testing.T) {
	env := newTestEnv(t)
	svc, _ := newAskService(env, &fakeGenerator{err: errors.New("model exploded")}, true)

	result, err := svc.Ask(context.Background(), "s1", "anything?")
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "couldn't find relevant information")
}

func TestAskCancellationAppendsNothing(t *testing.T) {
	env := newTestEnv(t)
	bg := context.Background()

	_, err := env.ingestor.Ingest(bg, "d1", "cats.txt", "Cats sleep for most of the day.")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(bg)
	defer cancel()
	svc, conversations := newAskService(env, &cancellingGenerator{cancel: cancel}, true)

	result, err := svc.Ask(ctx, "s1", "When do cats sleep?")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, result.State)
	assert.Empty(t, result.Answer)

	// Partial generation is discarded, no turn is written.
	turns, _ := conversations.History("s1")
	assert.Empty(t, turns)
}
