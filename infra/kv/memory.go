package kv

import (
	"sort"
	"sync"
)

// MemStore is an in-memory Store used by tests.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *MemStore) Apply(writes map[string][]byte, deletes map[string]struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range writes {
		cp := make([]byte, len(v))
		copy(cp, v)
		s.data[k] = cp
	}
	for k := range deletes {
		delete(s.data, k)
	}
	return nil
}

func (s *MemStore) Scan(lo, hi string, fn func(key string, val []byte) error) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if k >= lo && k < hi {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		val, err := s.Get(k)
		if err != nil {
			continue // deleted between snapshot and visit
		}
		if err := fn(k, val); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) Close() error {
	return nil
}

// Len reports the number of stored records.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
