// Package store implements the Score Store: the durable per-user ledger of
// category point totals, interaction timestamps, one-time events, streak,
// and historical engagement score. All mutation goes through UpsertAtomic,
// which serializes per user_id and evaluates month-reset before the caller's
// mutator runs.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
)

// Record is one user's full ledger state.
type Record struct {
	UserID string

	// Points holds the current per-category point total.
	Points map[config.Category]float64

	// Timestamps holds, per category, the ordered sequence of accepted
	// interaction times. Used both for the 24h daily-limit window and for
	// lifetime counts consumed by the Cohort Engine.
	Timestamps map[config.Category][]time.Time

	OneTimePoints float64
	OneTimeEvents map[string]struct{}

	// LastResetDate marks the month boundary. Comparisons are by
	// (Year, Month) only; the day-of-month is not meaningful.
	LastResetDate time.Time

	LastActiveDate time.Time

	ConsecutiveActivityDays int

	HistoricalEngagementScore float64
}

// NewRecord returns a freshly initialized record for a first-seen user.
func NewRecord(userID string, now time.Time) *Record {
	r := &Record{
		UserID:         userID,
		Points:         make(map[config.Category]float64, len(config.Categories)),
		Timestamps:     make(map[config.Category][]time.Time, len(config.Categories)),
		OneTimeEvents:  make(map[string]struct{}),
		LastResetDate:  now,
		LastActiveDate: time.Time{},
	}
	for _, cat := range config.Categories {
		r.Points[cat] = 0
		r.Timestamps[cat] = nil
	}
	return r
}

// Clone returns a deep copy so callers (notably the cohort engine, which
// reads every record while the scoring engine may be concurrently
// mutating others) never observe a half-written record.
func (r *Record) Clone() *Record {
	out := &Record{
		UserID:                    r.UserID,
		OneTimePoints:             r.OneTimePoints,
		LastResetDate:             r.LastResetDate,
		LastActiveDate:            r.LastActiveDate,
		ConsecutiveActivityDays:   r.ConsecutiveActivityDays,
		HistoricalEngagementScore: r.HistoricalEngagementScore,
	}
	out.Points = make(map[config.Category]float64, len(r.Points))
	for k, v := range r.Points {
		out.Points[k] = v
	}
	out.Timestamps = make(map[config.Category][]time.Time, len(r.Timestamps))
	for k, v := range r.Timestamps {
		cp := make([]time.Time, len(v))
		copy(cp, v)
		out.Timestamps[k] = cp
	}
	out.OneTimeEvents = make(map[string]struct{}, len(r.OneTimeEvents))
	for k := range r.OneTimeEvents {
		out.OneTimeEvents[k] = struct{}{}
	}
	return out
}

// MaybeMonthReset zeroes the six point totals and one-time fields if
// `now` falls in a different calendar month than LastResetDate. Timestamp
// sequences and streak survive a reset untouched. The reset is tied to
// the record, not a global timer, so an offline user is still reset
// correctly on their next interaction.
func (r *Record) MaybeMonthReset(now time.Time) {
	if sameMonth(r.LastResetDate, now) {
		return
	}
	for _, cat := range config.Categories {
		r.Points[cat] = 0
	}
	r.OneTimePoints = 0
	r.OneTimeEvents = make(map[string]struct{})
	r.LastResetDate = now
}

func sameMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}

// CountSince returns the number of timestamps in cat strictly younger than
// `window` relative to `now`.
func (r *Record) CountSince(cat config.Category, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, ts := range r.Timestamps[cat] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// LifetimeCount returns the total number of accepted interactions ever
// recorded for a category.
func (r *Record) LifetimeCount(cat config.Category) int {
	return len(r.Timestamps[cat])
}

// SumPoints returns the sum of the six category totals.
func (r *Record) SumPoints() float64 {
	var total float64
	for _, cat := range config.Categories {
		total += r.Points[cat]
	}
	return total
}

// NormalizedScore returns (SumPoints / capTotal) * 100, clamped to [0,100].
func (r *Record) NormalizedScore(capTotal float64) float64 {
	if capTotal <= 0 {
		return 0
	}
	score := (r.SumPoints() / capTotal) * 100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// AppendTimestamp records an accepted interaction at `at`, keeping the
// sequence in sorted order (callers always append "now", but sorting keeps
// the invariant explicit and cheap for the common case).
func (r *Record) AppendTimestamp(cat config.Category, at time.Time) {
	r.Timestamps[cat] = append(r.Timestamps[cat], at)
	seq := r.Timestamps[cat]
	if len(seq) > 1 && seq[len(seq)-1].Before(seq[len(seq)-2]) {
		sort.Slice(seq, func(i, j int) bool { return seq[i].Before(seq[j]) })
	}
}

// RemoveLatestTimestamp removes the most recent timestamp in cat, used when
// a post delete refunds its award. It is a best-effort operation: if the
// sequence is empty it is a no-op.
func (r *Record) RemoveLatestTimestamp(cat config.Category) {
	seq := r.Timestamps[cat]
	if len(seq) == 0 {
		return
	}
	r.Timestamps[cat] = seq[:len(seq)-1]
}

// PostAward is the sidecar record mapping a post_id to the user and delta
// it was awarded, so a later delete can refund exactly.
type PostAward struct {
	UserID       string
	AwardedDelta float64
}

// Mutator mutates a record in place under the store's row lock. Returning
// an error aborts the upsert without persisting any change.
type Mutator func(r *Record) error

// Store is the Score Store contract. Every mutation is funneled through
// UpsertAtomic so month-reset and row-level serialization are never
// bypassed.
type Store interface {
	// Get returns the record for userID, or ok=false if none exists yet.
	Get(ctx context.Context, userID string) (*Record, bool, error)

	// UpsertAtomic reads the record (creating one if absent), applies
	// month-reset if due, runs mutator, and persists the result — all
	// under a per-user_id lock. Returns the record as persisted.
	UpsertAtomic(ctx context.Context, userID string, now time.Time, mutate Mutator) (*Record, error)

	// ScanAll returns every known record, for the Cohort Engine's daily
	// sweep. Each record is a Clone, safe to read without further locking.
	ScanAll(ctx context.Context) ([]*Record, error)

	// RecordPostAward persists the (post_id -> user_id, delta) sidecar
	// entry used to refund exactly on delete.
	RecordPostAward(ctx context.Context, postID string, award PostAward) error

	// GetPostAward looks up a previously recorded award.
	GetPostAward(ctx context.Context, postID string) (PostAward, bool, error)

	// DeletePostAward removes the sidecar entry after a refund.
	DeletePostAward(ctx context.Context, postID string) error
}

type storeError string

func (e storeError) Error() string { return string(e) }

const (
	// ErrNotFound indicates no record exists for the requested key.
	ErrNotFound = storeError("score store: record not found")
)
