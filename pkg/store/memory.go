package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a Manager backed by a map. It keeps no history and
// UpdateConfig merges top-level fields into the stored document instead of
// replacing it. Intended for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: make(map[string]Document),
	}
}

// SaveConfig stores a copy of doc under key, replacing any previous value.
func (m *MemoryStore) SaveConfig(_ context.Context, key string, doc Document) error {
	if err := validateDocument("save", key, doc); err != nil {
		return err
	}
	cp, err := Clone(doc)
	if err != nil {
		return newError(KindInvalidArgument, "save", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[key] = cp
	return nil
}

// GetConfig returns a copy of the document under key, or nil.
func (m *MemoryStore) GetConfig(_ context.Context, key string) (Document, error) {
	if err := validateKey("get", key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	doc, ok := m.configs[key]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return Clone(doc)
}

// DeleteConfig removes key.
func (m *MemoryStore) DeleteConfig(_ context.Context, key string) error {
	if err := validateKey("delete", key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.configs, key)
	return nil
}

// UpdateConfig shallow-merges doc into the stored document. Top-level keys
// of doc overwrite existing ones; other keys are kept.
func (m *MemoryStore) UpdateConfig(_ context.Context, key string, doc Document) error {
	if err := validateDocument("update", key, doc); err != nil {
		return err
	}
	cp, err := Clone(doc)
	if err != nil {
		return newError(KindInvalidArgument, "update", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.configs[key]
	if !ok {
		m.configs[key] = cp
		return nil
	}
	for k, v := range cp {
		existing[k] = v
	}
	return nil
}

// Exists reports whether key is stored.
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey("exists", key); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.configs[key]
	return ok, nil
}

// GetAllKeys returns the stored keys in ascending order.
func (m *MemoryStore) GetAllKeys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.configs))
	for k := range m.configs {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Kind returns KindMemory.
func (m *MemoryStore) Kind() Kind {
	return KindMemory
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

var _ Manager = (*MemoryStore)(nil)
