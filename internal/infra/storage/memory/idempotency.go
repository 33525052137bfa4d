package memory

import (
	"context"
	"sync"
	"time"

	"rentalspot/internal/app/middleware"
	"rentalspot/internal/pkg/clock"
)

// IdempotencyStore keeps replayable command results in process. Entries older
// than ttl, measured from OccurredAt, read as absent; zero ttl keeps them forever.
type IdempotencyStore struct {
	mu    sync.RWMutex
	items map[string]middleware.IdempotencyRecord
	ttl   time.Duration
	clock clock.Clock
}

func NewIdempotencyStore(ttl time.Duration, clk clock.Clock) *IdempotencyStore {
	return &IdempotencyStore{
		items: make(map[string]middleware.IdempotencyRecord),
		ttl:   ttl,
		clock: clock.OrReal(clk),
	}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	rec, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || !s.expired(rec) {
		return rec, ok, nil
	}
	s.mu.Lock()
	if cur, still := s.items[key]; still && s.expired(cur) {
		delete(s.items, key)
	}
	s.mu.Unlock()
	return middleware.IdempotencyRecord{}, false, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[rec.Key] = rec
	return nil
}

func (s *IdempotencyStore) expired(rec middleware.IdempotencyRecord) bool {
	return s.ttl > 0 && s.clock.Now().Sub(rec.OccurredAt) >= s.ttl
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
