// Package storage provides the key-value persistence contract for the
// pattern list, with file, SQLite, and in-memory backends.
package storage

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when the key has never been saved.
var ErrNotFound = errors.New("storage: key not found")

// KV persists ordered string lists under well-known keys. Implementations
// must be safe for concurrent use.
type KV interface {
	// Load returns the list stored under key, or ErrNotFound.
	Load(key string) ([]string, error)

	// Save stores the list under key, replacing any previous value.
	Save(key string, values []string) error
}

// Memory is an in-process KV for tests and library embedding.
type Memory struct {
	mu   sync.Mutex
	data map[string][]string
}

// NewMemory creates an empty in-memory KV.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]string)}
}

// Load implements the KV interface.
func (m *Memory) Load(key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	values, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]string, len(values))
	copy(out, values)
	return out, nil
}

// Save implements the KV interface.
func (m *Memory) Save(key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]string, len(values))
	copy(stored, values)
	m.data[key] = stored
	return nil
}
