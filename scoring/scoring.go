// Package scoring implements the scoring engine: the single path by
// which interactions turn into ledger mutations. Every apply runs under
// the score store's row lock via UpsertAtomic, so daily-limit checks,
// monthly-cap clamping, and timestamp appends are never racy for a given
// user.
package scoring

import (
	"context"
	"time"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/store"
)

const dailyWindow = 24 * time.Hour

// Status is the outcome tag for an Apply call.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusLimited  Status = "limited"
	StatusCapped   Status = "capped"
)

// Result is what the scoring engine returns to its caller.
type Result struct {
	Status          Status
	Delta           float64
	NormalizedScore float64
}

// Engine applies interactions to the Score Store.
type Engine struct {
	cfg   *config.Config
	store store.Store
}

// New builds a Scoring Engine over store.
func New(cfg *config.Config, s store.Store) *Engine {
	return &Engine{cfg: cfg, store: s}
}

// PostContext carries the quality/originality inputs the post formula
// needs; zero value is appropriate for every fixed-point category.
type PostContext struct {
	Quality     int
	Originality float64
}

// Apply applies one interaction of category cat for userID, returning the
// daily-limit/monthly-cap/accepted outcome. ctx is only used for the
// underlying store call's cancellation, not any network round-trip here.
func (e *Engine) Apply(ctx context.Context, userID string, cat config.Category, now time.Time, pc PostContext) (Result, error) {
	var result Result

	_, err := e.store.UpsertAtomic(ctx, userID, now, func(r *store.Record) error {
		if r.CountSince(cat, now, dailyWindow) >= e.cfg.DailyLimit[cat] {
			result = Result{Status: StatusLimited, NormalizedScore: r.NormalizedScore(e.cfg.MonthlyCapTotal())}
			return nil
		}

		delta := pointDelta(e.cfg, cat, pc)

		monthlyCap := e.cfg.MonthlyCap[cat]
		remaining := monthlyCap - r.Points[cat]
		if delta > remaining {
			delta = remaining
		}
		if delta < 0 {
			delta = 0
		}

		if delta == 0 {
			result = Result{Status: StatusCapped, NormalizedScore: r.NormalizedScore(e.cfg.MonthlyCapTotal())}
			return nil
		}

		r.Points[cat] += delta
		r.AppendTimestamp(cat, now)
		r.LastActiveDate = now

		result = Result{
			Status:          StatusAccepted,
			Delta:           delta,
			NormalizedScore: r.NormalizedScore(e.cfg.MonthlyCapTotal()),
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// ApplyOneTime credits userID with points for eventID, at most once per
// its lifetime. A repeat call with the same eventID is a no-op returning
// delta=0, status=accepted — the event is already applied, and a replay
// is harmless rather than an error.
func (e *Engine) ApplyOneTime(ctx context.Context, userID, eventID string, points float64, now time.Time) (Result, error) {
	var result Result

	_, err := e.store.UpsertAtomic(ctx, userID, now, func(r *store.Record) error {
		if _, already := r.OneTimeEvents[eventID]; already {
			result = Result{Status: StatusAccepted, Delta: 0, NormalizedScore: r.NormalizedScore(e.cfg.MonthlyCapTotal())}
			return nil
		}

		r.OneTimeEvents[eventID] = struct{}{}
		r.OneTimePoints += points

		result = Result{
			Status:          StatusAccepted,
			Delta:           points,
			NormalizedScore: r.NormalizedScore(e.cfg.MonthlyCapTotal()),
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Refund reverses a previously-awarded post delta: subtracts it from the
// posts category total (never going negative) and removes the most recent
// posts timestamp. That timestamp is not necessarily the deleted post's
// own: if the user posted again afterwards, the later post's timestamp is
// the one removed. Used by the Intake Router on delete_post.
func (e *Engine) Refund(ctx context.Context, userID string, delta float64, now time.Time) error {
	_, err := e.store.UpsertAtomic(ctx, userID, now, func(r *store.Record) error {
		r.Points[config.CategoryPost] -= delta
		if r.Points[config.CategoryPost] < 0 {
			r.Points[config.CategoryPost] = 0
		}
		r.RemoveLatestTimestamp(config.CategoryPost)
		return nil
	})
	return err
}

// pointDelta computes the raw (pre-cap) delta for one interaction.
func pointDelta(cfg *config.Config, cat config.Category, pc PostContext) float64 {
	if cat != config.CategoryPost {
		return cfg.PointValue[cat]
	}
	return cfg.PointValue[config.CategoryPost] +
		(float64(pc.Quality)/10)*cfg.QualityBonusMax +
		pc.Originality*cfg.OriginalityBonusMax
}
