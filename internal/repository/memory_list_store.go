package repository

import (
	"context"
	"encoding/json"
	"sync"

	domrepo "ChainSignal/internal/domain/repository"
)

// MemoryListStore keeps lists in process memory. Used when no Redis is
// configured and in tests.
type MemoryListStore struct {
	mu    sync.RWMutex
	lists map[string][]json.RawMessage
}

func NewMemoryListStore() *MemoryListStore {
	return &MemoryListStore{lists: make(map[string][]json.RawMessage)}
}

func (s *MemoryListStore) LoadList(_ context.Context, key string) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.lists[key]
	out := make([]json.RawMessage, len(src))
	for i, r := range src {
		out[i] = append(json.RawMessage(nil), r...)
	}
	return out, nil
}

func (s *MemoryListStore) SaveList(_ context.Context, key string, records []json.RawMessage, cap int) error {
	if cap > 0 && len(records) > cap {
		records = records[:cap]
	}
	cp := make([]json.RawMessage, len(records))
	for i, r := range records {
		cp[i] = append(json.RawMessage(nil), r...)
	}
	s.mu.Lock()
	s.lists[key] = cp
	s.mu.Unlock()
	return nil
}

var _ domrepo.ListStore = (*MemoryListStore)(nil)
