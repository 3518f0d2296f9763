// Package middleware provides the chi-compatible HTTP middleware chain and
// the in-process concurrency primitives the engine's components build on.
package middleware

import (
	"sync"
	"sync/atomic"
	"time"
)

// ──────────────────────────────────────────────────────────────
// 1. Per-Key Mutex — serialize score-ledger mutations for the same user
// ──────────────────────────────────────────────────────────────

// KeyedMutex provides per-key locking to serialize access to shared
// resources without a global lock. The Score Store uses one of these,
// keyed by user_id, to make upsert_atomic a real row lock.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu      sync.Mutex
	waiters int32
}

// NewKeyedMutex creates a new per-key mutex manager.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyEntry),
	}
}

// Lock acquires a lock for the given key. Returns an unlock function.
func (km *KeyedMutex) Lock(key string) func() {
	km.mu.Lock()
	entry, ok := km.locks[key]
	if !ok {
		entry = &keyEntry{}
		km.locks[key] = entry
	}
	atomic.AddInt32(&entry.waiters, 1)
	km.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		km.mu.Lock()
		if atomic.AddInt32(&entry.waiters, -1) == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

// ──────────────────────────────────────────────────────────────
// 2. Semaphore — bounded concurrency per key
// ──────────────────────────────────────────────────────────────

// Semaphore provides bounded concurrency control per key. The Quality
// Scorer uses one keyed by provider endpoint to cap concurrent upstream
// calls independently of the task queue's worker count.
type Semaphore struct {
	mu    sync.Mutex
	semas map[string]chan struct{}
	limit int
}

// NewSemaphore creates a new per-key semaphore with the given concurrency limit.
func NewSemaphore(limit int) *Semaphore {
	if limit <= 0 {
		limit = 100 // default
	}
	return &Semaphore{
		semas: make(map[string]chan struct{}),
		limit: limit,
	}
}

// Acquire attempts to acquire a slot for the given key.
// Returns true if acquired, false if the timeout elapses first.
// The caller must call Release when done.
func (s *Semaphore) Acquire(key string, timeout time.Duration) bool {
	s.mu.Lock()
	ch, ok := s.semas[key]
	if !ok {
		ch = make(chan struct{}, s.limit)
		s.semas[key] = ch
	}
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Release releases a slot for the given key.
func (s *Semaphore) Release(key string) {
	s.mu.Lock()
	ch, ok := s.semas[key]
	s.mu.Unlock()

	if ok {
		select {
		case <-ch:
		default:
		}
	}
}

// ActiveCount returns the number of active requests for a key.
func (s *Semaphore) ActiveCount(key string) int {
	s.mu.Lock()
	ch, ok := s.semas[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return len(ch)
}

// ──────────────────────────────────────────────────────────────
// 3. In-flight deduplication — collapse duplicate redeliveries
// ──────────────────────────────────────────────────────────────

// Deduplicator prevents a redelivered task-queue job from running the
// validator twice concurrently for the same post_id. The queue's visibility
// timeout can make the same job visible to two workers briefly; this
// collapses the second into a no-op wait on the first's result.
type Deduplicator struct {
	mu       sync.Mutex
	inflight map[string]*InflightEntry
}

// InflightEntry tracks one in-flight job's eventual result.
type InflightEntry struct {
	Done chan struct{}
	Err  error
}

// NewDeduplicator creates a new in-flight job deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		inflight: make(map[string]*InflightEntry),
	}
}

// TryStart checks if an identical job is already in-flight.
// Returns (entry, isNew). If isNew is false, wait on entry.Done.
func (d *Deduplicator) TryStart(key string) (*InflightEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, exists := d.inflight[key]; exists {
		return entry, false
	}

	entry := &InflightEntry{Done: make(chan struct{})}
	d.inflight[key] = entry
	return entry, true
}

// Complete marks a job as finished and removes it from tracking.
func (d *Deduplicator) Complete(key string, err error) {
	d.mu.Lock()
	entry, exists := d.inflight[key]
	delete(d.inflight, key)
	d.mu.Unlock()

	if exists {
		entry.Err = err
		close(entry.Done)
	}
}

// InFlightCount returns the number of in-flight deduplicated jobs.
func (d *Deduplicator) InFlightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// ──────────────────────────────────────────────────────────────
// 4. Atomic Counters — thread-safe request/job tracking
// ──────────────────────────────────────────────────────────────

// AtomicCounter provides a thread-safe counter using atomic operations.
type AtomicCounter struct {
	value int64
}

// Inc increments the counter by 1 and returns the new value.
func (c *AtomicCounter) Inc() int64 {
	return atomic.AddInt64(&c.value, 1)
}

// Add increments the counter by n and returns the new value.
func (c *AtomicCounter) Add(n int64) int64 {
	return atomic.AddInt64(&c.value, n)
}

// Get returns the current value.
func (c *AtomicCounter) Get() int64 {
	return atomic.LoadInt64(&c.value)
}

// Reset sets the counter to 0 and returns the old value.
func (c *AtomicCounter) Reset() int64 {
	return atomic.SwapInt64(&c.value, 0)
}
