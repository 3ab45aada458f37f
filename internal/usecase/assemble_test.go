package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/adapter/memstore"
	"docchat/internal/domain"
)

func assembleFixture(t *testing.T) (*memstore.MemoryStore, []domain.RetrievalResult) {
	t.Helper()
	store := memstore.NewMemoryStore()

	require.NoError(t, store.PutDocument(domain.Document{ID: "d1", Filename: "guide.txt", Status: domain.StatusIngested}))
	require.NoError(t, store.PutDocument(domain.Document{ID: "d2", Filename: "notes.txt", Status: domain.StatusIngested}))
	require.NoError(t, store.PutChunks([]domain.Chunk{
		{ID: "c1", DocumentID: "d1", SequenceIndex: 0, Text: "The first excerpt talks about installation steps."},
		{ID: "c2", DocumentID: "d1", SequenceIndex: 1, Text: "The second excerpt covers configuration options."},
		{ID: "c3", DocumentID: "d2", SequenceIndex: 0, Text: "The third excerpt is from a different document."},
	}))

	// Score order: c1 highest, c3 lowest.
	results := []domain.RetrievalResult{
		{ChunkID: "c1", DocumentID: "d1", SequenceIndex: 0, Score: 0.9},
		{ChunkID: "c2", DocumentID: "d1", SequenceIndex: 1, Score: 0.8},
		{ChunkID: "c3", DocumentID: "d2", SequenceIndex: 0, Score: 0.7},
	}
	return store, results
}

func TestAssembleIncludesEverythingUnderBudget(t *testing.T) {
	store, results := assembleFixture(t)
	asm := NewAssembler(store, "", 100000, 10)

	history := []domain.Turn{
		{Role: domain.RoleUser, Text: "what is this about?"},
		{Role: domain.RoleAssistant, Text: "it is a setup guide"},
	}

	prompt, err := asm.Assemble(history, "how do I configure it?", results)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt.Text, DefaultPreamble))
	assert.Contains(t, prompt.Text, "what is this about?")
	assert.Contains(t, prompt.Text, "[chunk:c1] (from guide.txt)")
	assert.Contains(t, prompt.Text, "[chunk:c3] (from notes.txt)")
	assert.True(t, strings.HasSuffix(prompt.Text, "Question: how do I configure it?\nAnswer:"))

	assert.Equal(t, []string{"c1", "c2", "c3"}, prompt.IncludedChunkIDs)
	assert.Equal(t, []string{"d1", "d2"}, prompt.CitedDocumentIDs)
}

func TestAssembleDropsOldestTurnsFirst(t *testing.T) {
	store, results := assembleFixture(t)

	history := []domain.Turn{
		{Role: domain.RoleUser, Text: "OLDEST turn that should be dropped"},
		{Role: domain.RoleAssistant, Text: "newer turn that should survive"},
	}
	query := "how do I configure it?"

	full, err := NewAssembler(store, "", 100000, 10).Assemble(history, query, results)
	require.NoError(t, err)

	// One character short of fitting everything: the oldest turn goes,
	// excerpts stay.
	prompt, err := NewAssembler(store, "", len(full.Text)-1, 10).Assemble(history, query, results)
	require.NoError(t, err)

	assert.NotContains(t, prompt.Text, "OLDEST turn")
	assert.Contains(t, prompt.Text, "newer turn that should survive")
	assert.Equal(t, []string{"c1", "c2", "c3"}, prompt.IncludedChunkIDs)
	assert.LessOrEqual(t, len(prompt.Text), len(full.Text)-1)
}

func TestAssembleDropsLowestScoredExcerptAfterTurns(t *testing.T) {
	store, results := assembleFixture(t)
	query := "how do I configure it?"

	full, err := NewAssembler(store, "", 100000, 10).Assemble(nil, query, results)
	require.NoError(t, err)

	prompt, err := NewAssembler(store, "", len(full.Text)-1, 10).Assemble(nil, query, results)
	require.NoError(t, err)

	// No history to shed, so the lowest-scored chunk is cut.
	assert.Equal(t, []string{"c1", "c2"}, prompt.IncludedChunkIDs)
	assert.NotContains(t, prompt.Text, "[chunk:c3]")
	assert.Equal(t, []string{"d1"}, prompt.CitedDocumentIDs)
}

func TestAssembleBudgetTooSmall(t *testing.T) {
	store, results := assembleFixture(t)
	asm := NewAssembler(store, "", 10, 10)

	_, err := asm.Assemble(nil, "a question longer than ten characters", results)
	assert.ErrorIs(t, err, domain.ErrBudgetTooSmall)
}

func TestAssembleCapsHistoryWindow(t *testing.T) {
	store, _ := assembleFixture(t)
	asm := NewAssembler(store, "", 100000, 2)

	history := []domain.Turn{
		{Role: domain.RoleUser, Text: "turn-one"},
		{Role: domain.RoleAssistant, Text: "turn-two"},
		{Role: domain.RoleUser, Text: "turn-three"},
	}
	prompt, err := asm.Assemble(history, "q", nil)
	require.NoError(t, err)

	assert.NotContains(t, prompt.Text, "turn-one")
	assert.Contains(t, prompt.Text, "turn-two")
	assert.Contains(t, prompt.Text, "turn-three")
}

func TestAssembleSkipsMissingChunks(t *testing.T) {
	store, results := assembleFixture(t)
	asm := NewAssembler(store, "", 100000, 10)

	results = append(results, domain.RetrievalResult{ChunkID: "gone", DocumentID: "d9", Score: 0.5})
	prompt, err := asm.Assemble(nil, "q", results)
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2", "c3"}, prompt.IncludedChunkIDs)
	assert.NotContains(t, prompt.CitedDocumentIDs, "d9")
}

func TestAssembleNoResults(t *testing.T) {
	store, _ := assembleFixture(t)
	asm := NewAssembler(store, "", 100000, 10)

	prompt, err := asm.Assemble(nil, "anything indexed?", nil)
	require.NoError(t, err)

	assert.NotContains(t, prompt.Text, "Document excerpts:")
	assert.Empty(t, prompt.IncludedChunkIDs)
	assert.Empty(t, prompt.CitedDocumentIDs)
}
