package store

import (
	"context"
	"sync"
)

// Memory is an in-process Storage for tests and ephemeral runs.
// Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Storage = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get returns the bytes stored under id, or found=false if absent.
func (m *Memory) Get(_ context.Context, id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[id]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Set stores data under id, replacing any previous value.
func (m *Memory) Set(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[id] = cp
	return nil
}

// Seed stores data under id without error plumbing. Test helper.
func (m *Memory) Seed(id string, data []byte) {
	_ = m.Set(context.Background(), id, data)
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
