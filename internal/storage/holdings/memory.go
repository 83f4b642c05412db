package holdings

import (
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

// Memory in-process holdings store. Used by tests and the demo binary.
type Memory struct {
	mu    sync.RWMutex
	users map[int64][]domain.Holding
}

// NewMemory creates a store seeded with holdings.
func NewMemory(seed ...domain.Holding) *Memory {
	m := &Memory{users: make(map[int64][]domain.Holding)}
	for _, h := range seed {
		m.users[h.UserID] = append(m.users[h.UserID], h)
	}
	return m
}

// Add appends a holding to the user's portfolio.
func (m *Memory) Add(_ context.Context, h domain.Holding) error {
	if h.UserID == 0 {
		return errors.New("holding user id is required")
	}
	if h.Symbol == "" {
		return errors.New("holding symbol is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[h.UserID] = append(m.users[h.UserID], h)
	return nil
}

// UserIDs returns every user with at least one holding, ascending.
func (m *Memory) UserIDs(_ context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Holdings returns a copy of the user's holdings in insertion order.
func (m *Memory) Holdings(_ context.Context, userID int64) ([]domain.Holding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.users[userID]), nil
}
