package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store holds fixed-window counters. Implementations must make Increment atomic
// with respect to concurrent callers and to SweepExpired.
type Store interface {
	// Increment bumps the counter for key, creating it with resetAt if absent,
	// and returns the post-increment count.
	Increment(ctx context.Context, key string, resetAt time.Time) (int64, error)

	// SweepExpired drops every record whose window ended before now and
	// returns how many were removed.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Record is one counter for an (identity, window bucket) pair.
type Record struct {
	Key     string
	Count   int64
	ResetAt time.Time
}

// MemoryStore is a process-local Store guarded by a single mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Increment(_ context.Context, key string, resetAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		rec = &Record{Key: key, ResetAt: resetAt}
		s.records[key] = rec
	}
	rec.Count++
	return rec.Count, nil
}

func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if now.After(rec.ResetAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns a copy of the record for key.
func (s *MemoryStore) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}
