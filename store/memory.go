package store

import (
	"context"
	"sync"
	"time"

	"github.com/pyandcpp-coder/User-Validation-Scoring/middleware"
)

// MemoryStore is an in-process Store backed by plain maps, guarded by a
// KeyedMutex per user_id the same way the Redis-backed store is — so tests
// exercise the exact same row-locking contract as production. Used directly
// in unit tests and as the fallback when the Redis client cannot be built
// or does not answer a ping at startup.
type MemoryStore struct {
	locks *middleware.KeyedMutex

	mu      sync.RWMutex
	records map[string]*Record
	awards  map[string]PostAward
}

// NewMemoryStore creates an empty in-memory Score Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:   middleware.NewKeyedMutex(),
		records: make(map[string]*Record),
		awards:  make(map[string]PostAward),
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[userID]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (s *MemoryStore) UpsertAtomic(_ context.Context, userID string, now time.Time, mutate Mutator) (*Record, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	s.mu.Lock()
	r, ok := s.records[userID]
	if !ok {
		r = NewRecord(userID, now)
	}
	s.mu.Unlock()

	r.MaybeMonthReset(now)

	if err := mutate(r); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.records[userID] = r
	s.mu.Unlock()

	return r.Clone(), nil
}

func (s *MemoryStore) ScanAll(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *MemoryStore) RecordPostAward(_ context.Context, postID string, award PostAward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awards[postID] = award
	return nil
}

func (s *MemoryStore) GetPostAward(_ context.Context, postID string) (PostAward, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.awards[postID]
	return a, ok, nil
}

func (s *MemoryStore) DeletePostAward(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.awards, postID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
