package otp

import (
	"context"
	"sync"
	"time"
)

// Record is the pending code for one phone. Only the hash is kept.
type Record struct {
	Hash      string
	ExpiresAt time.Time
}

// ConsumeResult is the outcome of an atomic Store.Consume.
type ConsumeResult int

const (
	ConsumeNotFound ConsumeResult = iota
	ConsumeExpired
	ConsumeMismatch
	ConsumeMatched
)

func (r ConsumeResult) String() string {
	switch r {
	case ConsumeExpired:
		return "expired"
	case ConsumeMismatch:
		return "mismatch"
	case ConsumeMatched:
		return "matched"
	default:
		return "not_found"
	}
}

// Store keeps at most one Record per phone. Every method is atomic per key.
type Store interface {
	// Put inserts rec for phone, replacing any previous record.
	Put(ctx context.Context, phone string, rec Record) error
	Get(ctx context.Context, phone string) (Record, bool, error)
	Delete(ctx context.Context, phone string) error
	// CompareAndDelete removes the record only while it still carries hash.
	CompareAndDelete(ctx context.Context, phone, hash string) (bool, error)
	// Consume looks up the record for phone and, in the same step, deletes it
	// when it is expired at now or when its hash equals hash. A mismatching
	// record is left in place.
	Consume(ctx context.Context, phone, hash string, now time.Time) (ConsumeResult, error)
}

// InMemoryStore is a process-local Store backed by a mutex guarded map.
// Records are only removed on verify, dispatch failure or replacement.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]Record),
	}
}

func (s *InMemoryStore) Put(ctx context.Context, phone string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[phone] = rec
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, phone string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[phone]
	return rec, ok, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, phone)
	return nil
}

func (s *InMemoryStore) CompareAndDelete(ctx context.Context, phone, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[phone]
	if !ok || !hashesEqual(rec.Hash, hash) {
		return false, nil
	}
	delete(s.records, phone)
	return true, nil
}

func (s *InMemoryStore) Consume(ctx context.Context, phone, hash string, now time.Time) (ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[phone]
	if !ok {
		return ConsumeNotFound, nil
	}
	if now.After(rec.ExpiresAt) {
		delete(s.records, phone)
		return ConsumeExpired, nil
	}
	if !hashesEqual(rec.Hash, hash) {
		return ConsumeMismatch, nil
	}
	delete(s.records, phone)
	return ConsumeMatched, nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
