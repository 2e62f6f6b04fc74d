// Package store persists the client's durable records as JSON blobs keyed by
// slot name. Two slots exist: the device configuration and the schedule cache.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Slot names.
const (
	KeyConfig    = "config"
	KeySchedules = "schedules"
)

// Store is a key/value store of JSON values.
type Store interface {
	// Get decodes the value under key into v. It reports false if the key is absent.
	Get(key string, v any) (bool, error)
	// Set encodes v as JSON and stores it under key.
	Set(key string, v any) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	Close() error
}

// ErrCorrupt is returned when a stored value cannot be decoded.
var ErrCorrupt = errors.New("store: corrupt value")

func decode(key string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w for %q: %v", ErrCorrupt, key, err)
	}
	return nil
}

// MemoryStore is an in-memory Store used by tests and by commands that
// run without a database file.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte

	// SetError, if set, is returned by Set.
	SetError error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string, v any) (bool, error) {
	m.mu.Lock()
	data, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, decode(key, data, v)
}

func (m *MemoryStore) Set(key string, v any) error {
	if m.SetError != nil {
		return m.SetError
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	m.mu.Lock()
	m.data[key] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Raw returns the stored bytes for key, for assertions.
func (m *MemoryStore) Raw(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}
