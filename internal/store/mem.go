package store

import (
	"context"
	"sync"
)

// Mem is an in-memory implementation of the [Store] interface, used in tests.
type Mem struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMem creates a new [Mem] store.
func NewMem() *Mem {
	return &Mem{data: make(map[string][]byte)}
}

// Get retrieves a value for a given key.
func (s *Mem) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	// Return a copy to prevent the caller from mutating the store.
	return append([]byte(nil), v...), nil
}

// Set stores a value for a given key.
func (s *Mem) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Close is a no-op for Mem.
func (s *Mem) Close() error { return nil }
