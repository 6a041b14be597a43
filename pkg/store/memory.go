package store

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Used in tests and as a
// fallback when no durable backend is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ SnapshotStore = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string][]byte{}}
}

func (s *MemoryStore) Load(ctx context.Context, roomID string) ([]byte, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[roomID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (s *MemoryStore) Save(ctx context.Context, roomID string, data []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[roomID] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// SaveCount returns the number of rooms with a stored snapshot.
func (s *MemoryStore) SaveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
