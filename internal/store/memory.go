package store

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory, suitable for development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]string)}
}

// Load returns the snapshot of userID.
func (s *MemoryStore) Load(_ context.Context, userID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads, ok := s.records[ThreadsKey(userID)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return Record{Threads: threads, ActiveThreadID: s.records[ActiveKey(userID)]}, nil
}

// Save overwrites both records of userID.
func (s *MemoryStore) Save(_ context.Context, userID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[ThreadsKey(userID)] = rec.Threads
	s.records[ActiveKey(userID)] = rec.ActiveThreadID
	return nil
}

// Delete drops both records of userID.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, ThreadsKey(userID))
	delete(s.records, ActiveKey(userID))
	return nil
}

// Put writes a raw record value, used to seed fixtures.
func (s *MemoryStore) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = value
}

// Get reads a raw record value.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.records[key]
	return value, ok
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
