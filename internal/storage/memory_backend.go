package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend keeps snapshots in process memory.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[Key][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[Key][]byte)}
}

func (m *MemoryBackend) EnsureLayout(ctx context.Context) error { return nil }

func (m *MemoryBackend) Put(ctx context.Context, key Key, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.items[key] = buf
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (m *MemoryBackend) Exists(ctx context.Context, key Key) (bool, error) {
	m.mu.RLock()
	_, ok := m.items[key]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0)
	for k := range m.items {
		if k.Kind == kind {
			names = append(names, k.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryBackend) GetInfo() *BackendInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var size int64
	for _, v := range m.items {
		size += int64(len(v))
	}
	return &BackendInfo{
		Name:         "Memory",
		Type:         TypeMemory,
		Capabilities: []string{"ephemeral"},
		Status:       "active",
		Statistics: &BackendStats{
			TotalFiles: int64(len(m.items)),
			TotalSize:  size,
		},
	}
}

func (m *MemoryBackend) HealthCheck(ctx context.Context) error { return nil }
