package archive

import (
	"sort"
	"sync"
)

// MemoryStore is a map-backed Store.
type MemoryStore struct {
	db map[string][]byte
	sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		db: make(map[string][]byte),
	}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.RLock()
	defer m.RUnlock()
	val, ok := m.db[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, nil
}

func (m *MemoryStore) Put(key string, value []byte) error {
	m.Lock()
	defer m.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.db[key] = cp
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.Lock()
	defer m.Unlock()
	if _, ok := m.db[key]; !ok {
		return ErrNotFound
	}
	delete(m.db, key)
	return nil
}

func (m *MemoryStore) Keys() ([]string, error) {
	m.RLock()
	defer m.RUnlock()
	keys := make([]string, 0, len(m.db))
	for k := range m.db {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
