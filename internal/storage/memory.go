package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Memory implements Storage in memory.
// This implementation is for testing and development only - data is lost on restart.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Storage = (*Memory)(nil)

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data
	return int64(len(data)), nil
}

func (m *Memory) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.objects[key]
	if !exists {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
