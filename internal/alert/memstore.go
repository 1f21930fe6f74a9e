package alert

import (
	"context"
	"sync"
)

// MemoryStore is a map-backed StateStore. It is the store used in tests
// and in single-process setups without persistence; the SQLite-backed
// store in internal/storage is the production one.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[Key]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Key]State)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[key]
	return state, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key Key, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
