package usecase

import (
	"errors"
	"sync"
	"time"

	"docchat/internal/domain"
	"docchat/internal/port"
)

// Conversations manages session history. Sessions are created lazily on
// first append; turns are append-only and their timestamps strictly
// increase within a session.
type Conversations struct {
	store port.SessionStore

	mu     sync.Mutex
	lastTS map[string]time.Time
}

func NewConversations(store port.SessionStore) *Conversations {
	return &Conversations{
		store:  store,
		lastTS: make(map[string]time.Time),
	}
}

// Append adds a turn to the session, creating it if needed. A zero
// timestamp is filled with the current time; either way the stored
// timestamp is strictly after the session's previous turn, including turns
// persisted by earlier processes.
func (c *Conversations) Append(sessionID string, turn domain.Turn) error {
	c.mu.Lock()
	last, known := c.lastTS[sessionID]
	if !known {
		// First touch of this session in this process: the previous turn
		// may predate us, and the clock may have stepped backwards since.
		if session, err := c.store.GetSession(sessionID); err == nil && len(session.Turns) > 0 {
			last = session.Turns[len(session.Turns)-1].Timestamp
			known = true
		}
	}

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if known && !ts.After(last) {
		ts = last.Add(time.Nanosecond)
	}
	c.lastTS[sessionID] = ts
	c.mu.Unlock()

	turn.Timestamp = ts
	return c.store.AppendTurn(sessionID, turn)
}

// GetRecent returns the most recent maxTurns turns in chronological order.
// An unknown session reads as empty; it is created on first append, not
// first read.
func (c *Conversations) GetRecent(sessionID string, maxTurns int) ([]domain.Turn, error) {
	session, err := c.store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	turns := session.Turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	return turns, nil
}

// History returns the session's full turn sequence.
func (c *Conversations) History(sessionID string) ([]domain.Turn, error) {
	session, err := c.store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return session.Turns, nil
}

// Sessions lists all sessions, oldest first.
func (c *Conversations) Sessions() ([]domain.Session, error) {
	return c.store.ListSessions()
}
