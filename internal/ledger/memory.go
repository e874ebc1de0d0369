package ledger

import (
	"context"
	"sync"
)

// MemoryMarkers is a MarkerStore that lives as long as the process.
type MemoryMarkers struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{keys: make(map[string]struct{})}
}

func (m *MemoryMarkers) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *MemoryMarkers) Set(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = struct{}{}
	return nil
}
