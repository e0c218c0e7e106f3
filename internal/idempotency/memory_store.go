package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a Store implementation backed by a mutex-guarded map. It
// honors the same conditional-write semantics as the DynamoDB-backed store —
// including the lease-expiry takeover clause — making it suitable both for
// unit tests and for a standalone/offline deployment of the middleware, not
// just as a test double.
type InMemoryStore struct {
	mu    sync.Mutex
	table map[string]DataRecord
}

// NewInMemoryStore returns an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{table: map[string]DataRecord{}}
}

// Put implements Store.Put.
func (s *InMemoryStore) Put(ctx context.Context, record DataRecord, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.table[record.IdempotencyKey]
	if ok && !existing.Expired(now) {
		return ErrItemAlreadyExists
	}
	s.table[record.IdempotencyKey] = record
	return nil
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(ctx context.Context, key string) (DataRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table[key]
	if !ok {
		return DataRecord{}, ErrItemNotFound
	}
	return rec, nil
}

// Update implements Store.Update.
func (s *InMemoryStore) Update(ctx context.Context, record DataRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table[record.IdempotencyKey] = record
	return nil
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.table, key)
	return nil
}
