// Package cohort implements the cohort engine: the once-per-day batch
// pass that partitions every user into qualified / non-qualified per
// category, maintains streaks, recomputes historical engagement for
// non-qualified users, and selects the empathy cohort. Scheduling is a
// ticker-driven background goroutine with Start/Stop, plus an atomic
// single-flight guard so a manual trigger and the scheduled tick never
// overlap.
package cohort

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/store"
	"github.com/rs/zerolog"
)

const dailyWindow = 24 * time.Hour

type cohortError string

func (e cohortError) Error() string { return string(e) }

// ErrAlreadyRunning is returned when Run is invoked while a previous run
// (manual or scheduled) is still in flight.
const ErrAlreadyRunning = cohortError("cohort engine: a run is already in progress")

// Result is one category's qualified and empathy sets for a run.
type Result struct {
	Qualified map[string]struct{}
	Empathy   map[string]struct{}
}

// Summary is the full output of one Run: every category's Result plus
// bookkeeping for the admin surfaces.
type Summary struct {
	GeneratedAt time.Time
	UsersSeen   int
	PerCategory map[config.Category]Result
}

// Engine runs the daily qualification and empathy-cohort pass over the
// Score Store.
type Engine struct {
	cfg    *config.Config
	store  store.Store
	logger zerolog.Logger

	running atomic.Bool

	mu     sync.RWMutex
	latest *Summary

	ticker *time.Ticker
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Cohort Engine over store.
func New(cfg *config.Config, s store.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  s,
		logger: logger.With().Str("component", "cohort_engine").Logger(),
	}
}

type perUser struct {
	userID          string
	qualifies       map[config.Category]bool
	historicalScore float64
}

// Run performs one full cohort pass: for every user, it determines
// per-category qualification, updates the streak (two-phase: capture the
// pre-reset streak before zeroing it), recomputes historical engagement
// for non-qualified users, and builds the qualified/empathy sets per
// category. It returns ErrAlreadyRunning if invoked concurrently with
// itself or with a scheduled tick.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	records, err := e.store.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("cohort engine: scan all: %w", err)
	}

	now := time.Now()
	users := make([]perUser, 0, len(records))

	for _, rec := range records {
		pu := perUser{userID: rec.UserID, qualifies: make(map[config.Category]bool, len(config.Categories))}

		_, err := e.store.UpsertAtomic(ctx, rec.UserID, now, func(r *store.Record) error {
			globallyActive := false
			for _, cat := range config.Categories {
				count := r.CountSince(cat, now, dailyWindow)
				pu.qualifies[cat] = count >= e.cfg.DailyLimit[cat]
				if count > 0 {
					globallyActive = true
				}
			}

			// Two-phase update: the pre-reset streak value must be
			// captured before any zeroing, since an inactive user's
			// empathy score depends on the streak they are about to lose.
			preResetStreak := r.ConsecutiveActivityDays

			if globallyActive {
				r.ConsecutiveActivityDays = preResetStreak + 1
				r.HistoricalEngagementScore = 0
				pu.historicalScore = 0
				return nil
			}

			var activity float64
			for _, cat := range config.Categories {
				activity += float64(r.LifetimeCount(cat)) * e.cfg.EmpathyWeight[cat]
			}
			historical := float64(preResetStreak)*e.cfg.StreakWeight + activity

			r.HistoricalEngagementScore = historical
			r.ConsecutiveActivityDays = 0
			pu.historicalScore = historical
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("cohort engine: update %s: %w", rec.UserID, err)
		}

		users = append(users, pu)
	}

	summary := &Summary{
		GeneratedAt: now,
		UsersSeen:   len(users),
		PerCategory: make(map[config.Category]Result, len(config.Categories)),
	}

	for _, cat := range config.Categories {
		summary.PerCategory[cat] = buildCategoryResult(cat, users, e.cfg.EmpathyFraction)
	}

	e.mu.Lock()
	e.latest = summary
	e.mu.Unlock()

	e.logger.Info().Int("users", len(users)).Time("generated_at", now).Msg("cohort run complete")

	return summary, nil
}

// buildCategoryResult partitions users into qualified/non-qualified for
// cat, ranks the non-qualified by historical engagement score (ties broken
// lexicographically by user_id), and selects the top EmpathyFraction of
// the *score-eligible* non-qualified users (score > 0) as the empathy
// cohort. Never-active users are excluded from both the denominator and
// numerator of the empathy fraction.
func buildCategoryResult(cat config.Category, users []perUser, fraction float64) Result {
	qualified := make(map[string]struct{})
	eligible := make([]perUser, 0, len(users))

	for _, u := range users {
		if u.qualifies[cat] {
			qualified[u.userID] = struct{}{}
			continue
		}
		if u.historicalScore > 0 {
			eligible = append(eligible, u)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].historicalScore != eligible[j].historicalScore {
			return eligible[i].historicalScore > eligible[j].historicalScore
		}
		return eligible[i].userID < eligible[j].userID
	})

	n := int(math.Ceil(fraction * float64(len(eligible))))
	if n > len(eligible) {
		n = len(eligible)
	}

	empathy := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		empathy[eligible[i].userID] = struct{}{}
	}

	return Result{Qualified: qualified, Empathy: empathy}
}

// Latest returns the most recently completed Summary, or nil if no run has
// completed yet.
func (e *Engine) Latest() *Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Start begins the ticker-driven background schedule at the configured
// cadence. Call Stop to shut it down gracefully.
func (e *Engine) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.ticker = time.NewTicker(interval)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-e.ticker.C:
				if _, err := e.Run(runCtx); err != nil {
					e.logger.Warn().Err(err).Msg("scheduled cohort run skipped")
				}
			}
		}
	}()
}

// Stop cancels the background schedule and waits for its goroutine to
// return. An in-flight Run is allowed to finish.
func (e *Engine) Stop() {
	if e.ticker != nil {
		e.ticker.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
}
