package prefs

import (
	"context"
	"sync"
)

// MemoryBackend keeps the blob in memory (preferences.backend = "memory").
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryBackend returns a backend seeded with initial (may be nil).
func NewMemoryBackend(initial []byte) *MemoryBackend {
	return &MemoryBackend{data: append([]byte(nil), initial...)}
}

func (m *MemoryBackend) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBackend) Update(_ context.Context, fn func(old []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.data)
	if err != nil {
		return err
	}
	m.data = append([]byte(nil), next...)
	return nil
}

// Raw overwrites the stored blob as-is.
func (m *MemoryBackend) Raw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
}

func (m *MemoryBackend) Close() error { return nil }
