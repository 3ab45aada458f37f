package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/adapter/memstore"
	"docchat/internal/domain"
)

func TestConversationsUnknownSessionReadsEmpty(t *testing.T) {
	c := NewConversations(memstore.NewMemoryStore())

	turns, err := c.GetRecent("never-seen", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)

	// Reading must not create the session.
	sessions, err := c.Sessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestConversationsLazyCreateOnAppend(t *testing.T) {
	c := NewConversations(memstore.NewMemoryStore())

	require.NoError(t, c.Append("s1", domain.Turn{Role: domain.RoleUser, Text: "hello"}))

	sessions, err := c.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
}

func TestConversationsGetRecentTail(t *testing.T) {
	c := NewConversations(memstore.NewMemoryStore())

	texts := []string{"one", "two", "three", "four", "five"}
	for _, text := range texts {
		require.NoError(t, c.Append("s1", domain.Turn{Role: domain.RoleUser, Text: text}))
	}

	turns, err := c.GetRecent("s1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "three", turns[0].Text)
	assert.Equal(t, "five", turns[2].Text)

	all, err := c.History("s1")
	require.NoError(t, err)
	assert.Len(t, all, len(texts))
}

func TestConversationsTimestampsStrictlyIncrease(t *testing.T) {
	c := NewConversations(memstore.NewMemoryStore())

	// Same explicit timestamp on every turn; stored order must still be
	// strictly increasing.
	ts := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Append("s1", domain.Turn{Role: domain.RoleUser, Text: "t", Timestamp: ts}))
	}

	turns, err := c.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, 5)
	for i := 1; i < len(turns); i++ {
		assert.True(t, turns[i].Timestamp.After(turns[i-1].Timestamp),
			"turn %d not strictly after turn %d", i, i-1)
	}
}

func TestConversationsTimestampGuardSurvivesRestart(t *testing.T) {
	store := memstore.NewMemoryStore()

	// One process writes a turn with a clock that runs ahead.
	ahead := time.Now().Add(time.Hour)
	first := NewConversations(store)
	require.NoError(t, first.Append("s1", domain.Turn{Role: domain.RoleUser, Text: "a", Timestamp: ahead}))

	// A fresh process (empty lastTS map) appends with the real clock, which
	// is now behind the persisted history.
	second := NewConversations(store)
	require.NoError(t, second.Append("s1", domain.Turn{Role: domain.RoleAssistant, Text: "b"}))

	turns, err := second.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.True(t, turns[1].Timestamp.After(turns[0].Timestamp),
		"second turn %v not strictly after persisted turn %v", turns[1].Timestamp, turns[0].Timestamp)
}

func TestConversationsZeroTimestampFilled(t *testing.T) {
	c := NewConversations(memstore.NewMemoryStore())

	require.NoError(t, c.Append("s1", domain.Turn{Role: domain.RoleUser, Text: "hello"}))

	turns, err := c.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.False(t, turns[0].Timestamp.IsZero())
}

func TestConversationsIndependentSessions(t *testing.T) {
	c := NewConversations(memstore.NewMemoryStore())

	require.NoError(t, c.Append("s1", domain.Turn{Role: domain.RoleUser, Text: "in s1"}))
	require.NoError(t, c.Append("s2", domain.Turn{Role: domain.RoleUser, Text: "in s2"}))

	turns, err := c.History("s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "in s1", turns[0].Text)
}
