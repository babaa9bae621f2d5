// internal/store/memory.go
//
// In-memory implementation of the Journal interface.
// Used in tests and when no database path is configured.
//
// Characteristics:
//   - Stores Match records in insertion order.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Outcome is how a match ended.
type Outcome string

const (
	OutcomeWon     Outcome = "won"
	OutcomeAborted Outcome = "aborted"
)

// Match is one archived game.
type Match struct {
	ID         string    `json:"id"`
	Players    int       `json:"players"`
	Winner     *int      `json:"winner,omitempty"` // slot, nil when aborted
	Rounds     int       `json:"rounds"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// ErrInvalidMatch is returned for records missing an id or outcome.
var ErrInvalidMatch = errors.New("invalid match record")

// Journal archives finished matches. It is never read back into game state.
type Journal interface {
	// RecordMatch stores a finished or aborted match. Re-recording an id is ignored.
	RecordMatch(ctx context.Context, m Match) error

	// RecentMatches returns up to limit matches, newest first.
	RecentMatches(ctx context.Context, limit int) ([]Match, error)
}

// memory is an in-memory slice-based Journal implementation.
type memory struct {
	mu      sync.RWMutex // guards matches
	matches []Match
	seen    map[string]bool
}

// NewMemoryJournal constructs a new in-memory Journal.
func NewMemoryJournal() Journal {
	return &memory{seen: make(map[string]bool)}
}

// RecordMatch appends m unless its id was already recorded.
func (m *memory) RecordMatch(ctx context.Context, match Match) error {
	if err := validate(match); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[match.ID] {
		return nil
	}
	m.seen[match.ID] = true
	m.matches = append(m.matches, match)
	return nil
}

// RecentMatches returns the newest matches first.
func (m *memory) RecentMatches(ctx context.Context, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Match, 0, min(limit, len(m.matches)))
	for i := len(m.matches) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.matches[i])
	}
	return out, nil
}

// DefaultLimit applies when RecentMatches is called without a positive limit.
const DefaultLimit = 20

func validate(m Match) error {
	if m.ID == "" || (m.Outcome != OutcomeWon && m.Outcome != OutcomeAborted) {
		return ErrInvalidMatch
	}
	return nil
}
