package storage

import (
	"context"
	"slices"
	"sync"
)

var _ ObjectStore = (*Memory)(nil)

// Object is a stored payload.
type Object struct {
	Data        []byte
	ContentType string
}

// Memory is an in-process ObjectStore for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string]Object
	puts    int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

// Upload stores a copy of data at key.
func (m *Memory) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: slices.Clone(data), ContentType: contentType}
	m.puts++
	return nil
}

// Get returns the object at key.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys returns all stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Puts returns the number of Upload calls that succeeded.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
