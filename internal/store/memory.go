package store

import (
	"context"
	"sort"

	"github.com/sasha-s/go-deadlock"
)

// MemoryBackend keeps documents in process memory. Documents are copied on
// the way in and out so callers never share buffers with the store.
type MemoryBackend struct {
	mu     deadlock.RWMutex
	tables map[string]map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string]map[string][]byte)}
}

func (m *MemoryBackend) Create(_ context.Context, table, id string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.tables[table]
	if !ok {
		docs = make(map[string][]byte)
		m.tables[table] = docs
	}
	if _, exists := docs[id]; exists {
		return ErrAlreadyExists
	}
	docs[id] = append([]byte(nil), doc...)
	return nil
}

func (m *MemoryBackend) Update(_ context.Context, table, id string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.tables[table]
	if _, exists := docs[id]; !exists {
		return ErrNotFound
	}
	docs[id] = append([]byte(nil), doc...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.tables[table]
	if _, exists := docs[id]; !exists {
		return ErrNotFound
	}
	delete(docs, id)
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, table, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.tables[table][id]
	if !exists {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// All returns documents ordered by id so iteration is stable.
func (m *MemoryBackend) All(_ context.Context, table string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.tables[table]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, append([]byte(nil), docs[id]...))
	}
	return out, nil
}
