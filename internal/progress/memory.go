package progress

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a task state is kept after its last update.
	DefaultTTL = 24 * time.Hour

	// DefaultMaxEntries caps the number of tracked tasks.
	DefaultMaxEntries = 10000
)

// MemoryStore keeps task states in process memory. Entries expire ttl after
// their last update, and when the store is full the least recently updated
// entry is evicted.
type MemoryStore struct {
	mu         sync.RWMutex
	states     map[string]State
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore creates a store. Non-positive arguments use the defaults.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		states:     make(map[string]State),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = m.now()
	}
	if _, exists := m.states[state.TaskID]; !exists {
		m.evictLocked()
	}
	m.states[state.TaskID] = state
	return nil
}

func (m *MemoryStore) Get(_ context.Context, taskID string) (State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[taskID]
	if !ok || m.expired(state) {
		return State{}, false, nil
	}
	return state, true, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

func (m *MemoryStore) expired(state State) bool {
	return m.now().Sub(state.UpdatedAt) > m.ttl
}

// evictLocked drops expired entries, then the oldest entry while the store is full.
func (m *MemoryStore) evictLocked() {
	for id, state := range m.states {
		if m.expired(state) {
			delete(m.states, id)
		}
	}
	for len(m.states) >= m.maxEntries {
		var oldestID string
		var oldest time.Time
		for id, state := range m.states {
			if oldestID == "" || state.UpdatedAt.Before(oldest) {
				oldestID, oldest = id, state.UpdatedAt
			}
		}
		delete(m.states, oldestID)
	}
}
