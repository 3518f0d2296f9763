package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pyandcpp-coder/User-Validation-Scoring/cohort"
	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/store"
)

// AdminHandler exposes the manual cohort-run trigger and the read-only
// views over the score store and the latest cohort run.
type AdminHandler struct {
	logger zerolog.Logger
	cfg    *config.Config
	cohort *cohort.Engine
	store  store.Store
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(logger zerolog.Logger, cfg *config.Config, c *cohort.Engine, s store.Store) *AdminHandler {
	return &AdminHandler{logger: logger, cfg: cfg, cohort: c, store: s}
}

type cohortCategorySummary struct {
	Qualified int `json:"qualified"`
	Empathy   int `json:"empathy"`
}

type cohortSummaryResponse struct {
	GeneratedAt time.Time                                `json:"generatedAt"`
	UsersSeen   int                                      `json:"usersSeen"`
	PerCategory map[config.Category]cohortCategorySummary `json:"perCategory"`
}

func toSummaryResponse(s *cohort.Summary) cohortSummaryResponse {
	resp := cohortSummaryResponse{
		GeneratedAt: s.GeneratedAt,
		UsersSeen:   s.UsersSeen,
		PerCategory: make(map[config.Category]cohortCategorySummary, len(s.PerCategory)),
	}
	for cat, r := range s.PerCategory {
		resp.PerCategory[cat] = cohortCategorySummary{Qualified: len(r.Qualified), Empathy: len(r.Empathy)}
	}
	return resp
}

// RunDailyAnalysis handles POST /admin/run-daily-analysis: triggers a
// cohort run out of schedule. Returns 409 if a run (manual or scheduled)
// is already in flight.
func (h *AdminHandler) RunDailyAnalysis(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cohort.Run(r.Context())
	if err != nil {
		if err == cohort.ErrAlreadyRunning {
			writeError(w, http.StatusConflict, "already_running", err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("cohort run failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "cohort run failed")
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

// DailySummary handles GET /admin/daily-summary: the most recently
// completed cohort run, if any.
func (h *AdminHandler) DailySummary(w http.ResponseWriter, r *http.Request) {
	summary := h.cohort.Latest()
	if summary == nil {
		writeError(w, http.StatusNotFound, "not_found", "no cohort run has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

type userActivityResponse struct {
	UserID                    string                       `json:"userId"`
	Points                    map[config.Category]float64   `json:"points"`
	LifetimeCounts            map[config.Category]int       `json:"lifetimeCounts"`
	NormalizedScore           float64                      `json:"normalizedScore"`
	ConsecutiveActivityDays   int                          `json:"consecutiveActivityDays"`
	HistoricalEngagementScore float64                      `json:"historicalEngagementScore"`
	LastActiveDate            *time.Time                   `json:"lastActiveDate,omitempty"`
}

// UserActivity handles GET /admin/user-activity/{id}: a read-only view of
// one user's Score Store record.
func (h *AdminHandler) UserActivity(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	rec, ok, err := h.store.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to read score store")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read user record")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no record for user")
		return
	}

	lifetime := make(map[config.Category]int, len(config.Categories))
	for _, cat := range config.Categories {
		lifetime[cat] = rec.LifetimeCount(cat)
	}

	resp := userActivityResponse{
		UserID:                    rec.UserID,
		Points:                    rec.Points,
		LifetimeCounts:            lifetime,
		NormalizedScore:           rec.NormalizedScore(h.cfg.MonthlyCapTotal()),
		ConsecutiveActivityDays:   rec.ConsecutiveActivityDays,
		HistoricalEngagementScore: rec.HistoricalEngagementScore,
	}
	if !rec.LastActiveDate.IsZero() {
		t := rec.LastActiveDate
		resp.LastActiveDate = &t
	}

	writeJSON(w, http.StatusOK, resp)
}

type rewardsCategoryResponse struct {
	Category  config.Category `json:"category"`
	Qualified []string        `json:"qualified"`
	Empathy   []string        `json:"empathy"`
}

// RewardsCategory handles GET /api/rewards/{category}: the latest cohort
// run's qualified/empathy sets for one category.
func (h *AdminHandler) RewardsCategory(w http.ResponseWriter, r *http.Request) {
	cat := config.Category(chi.URLParam(r, "category"))

	summary := h.cohort.Latest()
	if summary == nil {
		writeError(w, http.StatusNotFound, "not_found", "no cohort run has completed yet")
		return
	}

	result, ok := summary.PerCategory[cat]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown category")
		return
	}

	writeJSON(w, http.StatusOK, rewardsCategoryResponse{
		Category:  cat,
		Qualified: setToSlice(result.Qualified),
		Empathy:   setToSlice(result.Empathy),
	})
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
