package store

import (
	"strconv"
	"sync"
)

// MemorySettingsStore implements SettingsStore using an in-memory map.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySettingsStore creates a new in-memory settings store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{values: make(map[string]string)}
}

func (m *MemorySettingsStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok
}

func (m *MemorySettingsStore) Lookup(key string) (string, bool, error) {
	value, ok := m.Get(key)
	return value, ok, nil
}

func (m *MemorySettingsStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemorySettingsStore) SetIfAbsent(key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.values[key]; exists {
		return false, nil
	}
	m.values[key] = value
	return true, nil
}

func (m *MemorySettingsStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemorySettingsStore) GetInt(key string, defaultVal int) int {
	value, ok := m.Get(key)
	return intOr(value, ok, defaultVal)
}

func (m *MemorySettingsStore) SetInt(key string, value int) error {
	return m.Set(key, strconv.Itoa(value))
}

func (m *MemorySettingsStore) GetBool(key string, defaultVal bool) bool {
	value, ok := m.Get(key)
	return boolOr(value, ok, defaultVal)
}

func (m *MemorySettingsStore) SetBool(key string, value bool) error {
	return m.Set(key, strconv.FormatBool(value))
}

var _ SettingsStore = (*MemorySettingsStore)(nil)
