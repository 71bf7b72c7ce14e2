// Package memkv is a process-local key/value backend for tests and
// single-node development. It has no batch delete.
package memkv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// DefaultPageLimit mirrors the list page size of the hosted backend
const DefaultPageLimit = 1000

// Store keeps values in a map
type Store struct {
	mu        sync.RWMutex
	data      map[string][]byte
	pageLimit int
}

// New creates an empty store
func New() *Store {
	return &Store{data: make(map[string][]byte), pageLimit: DefaultPageLimit}
}

// WithPageLimit changes how many keys ListKeys returns at most
func (s *Store) WithPageLimit(n int) *Store {
	s.pageLimit = n
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// ListKeys returns matching keys in lexical order, capped at the page limit
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	if s.pageLimit > 0 && len(keys) > s.pageLimit {
		keys = keys[:s.pageLimit]
	}
	return keys, nil
}

// Len returns the number of stored keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
