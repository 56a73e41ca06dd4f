package strata

import (
	"context"
	"iter"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Memory backend
// -----------------------------------------------------------------------------

// memoryBackend implements Backend using an in-memory map.
type memoryBackend struct {
	BackendBase

	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an in-memory backend.
//
// Consistency: Immediate.
// Memory is safe for concurrent use.
func NewMemory() Backend {
	return &memoryBackend{
		data: make(map[string][]byte),
	}
}

func (m *memoryBackend) Capabilities() Capabilities {
	return Capabilities{Writes: true, Deletes: true, PartialWrites: false, Listing: true}
}

func (m *memoryBackend) Get(_ context.Context, key string, rng ByteRange) ([]byte, error) {
	m.mu.RLock()
	data, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	start, length, err := Resolve(rng, int64(len(data)))
	if err != nil {
		return nil, err
	}
	if start+length > int64(len(data)) {
		return nil, ErrInvalidRange
	}

	out := make([]byte, length)
	copy(out, data[start:start+length])
	return out, nil
}

func (m *memoryBackend) GetRanges(_ context.Context, key string, ranges []BoundedRange) ([][]byte, error) {
	m.mu.RLock()
	data, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	out := make([][]byte, len(ranges))
	for i, rng := range ranges {
		start, length, err := Resolve(rng, int64(len(data)))
		if err != nil {
			return nil, err
		}
		if start+length > int64(len(data)) {
			return nil, ErrInvalidRange
		}
		buf := make([]byte, length)
		copy(buf, data[start:start+length])
		out[i] = buf
	}
	return out, nil
}

func (m *memoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, exists := m.data[key]
	m.mu.RUnlock()

	return exists, nil
}

func (m *memoryBackend) Put(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()

	return nil
}

func (m *memoryBackend) PutIfAbsent(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; exists {
		return ErrPathExists
	}

	m.data[key] = stored
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()

	return nil
}

func (m *memoryBackend) List(_ context.Context, prefix string) iter.Seq2[string, error] {
	// Snapshot under the read lock; iteration itself holds no lock.
	m.mu.RLock()
	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.RUnlock()

	return func(yield func(string, error) bool) {
		for _, key := range keys {
			if !yield(key, nil) {
				return
			}
		}
	}
}
