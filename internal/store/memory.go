package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-process persistence adapter.
//
// It records how many times each key was written, which lets tests assert
// that a burst of commits collapsed into a single write.
//
// Thread-safety: All methods are safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	data    map[string][]byte
	writes  map[string]int
	failErr error
}

// NewMemory creates an empty adapter.
func NewMemory() *Memory {
	return &Memory{
		data:   make(map[string][]byte),
		writes: make(map[string]int),
	}
}

// Read returns the stored bytes for key.
func (m *Memory) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, false, m.failErr
	}
	data, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(data), true, nil
}

// Write replaces the stored bytes for key.
func (m *Memory) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return m.failErr
	}
	m.data[key] = slices.Clone(data)
	m.writes[key]++
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys returns the stored keys with the given prefix, sorted.
func (m *Memory) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Writes returns how many times key was written.
func (m *Memory) Writes(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}

// Fail makes every subsequent Read and Write return err.
// A nil err restores normal operation.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}
