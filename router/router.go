package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/handler"
	enginemw "github.com/pyandcpp-coder/User-Validation-Scoring/middleware"
)

// NewRouter returns a configured chi Router with the full middleware chain
// and every route of the scoring engine's HTTP surface mounted: the
// synchronous and asynchronous intake endpoints plus the administrative
// read/trigger endpoints over the cohort engine and score store.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, intakeHandler *handler.IntakeHandler, adminHandler *handler.AdminHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(enginemw.CORSMiddleware([]string{"*"}))
	r.Use(enginemw.SecurityHeadersMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(mwRequestLogger(appLogger))
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"scoring-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"scoring-engine"}`))
	})

	asyncTimeout := enginemw.NewTimeoutMiddleware(appLogger, cfg.QualityModelTimeout+cfg.WebhookTimeout+30*time.Second)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/submit_action", intakeHandler.SubmitAction)

		r.Group(func(r chi.Router) {
			r.Use(asyncTimeout.Handler)
			r.Post("/submit_post", intakeHandler.SubmitPost)
		})

		r.Delete("/delete/{post_id}", intakeHandler.DeletePost)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/run-daily-analysis", adminHandler.RunDailyAnalysis)
		r.Get("/daily-summary", adminHandler.DailySummary)
		r.Get("/user-activity/{id}", adminHandler.UserActivity)
	})

	r.Get("/api/rewards/{category}", adminHandler.RewardsCategory)

	return r
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"error":"request_too_large","message":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			reqID := chimw.GetReqID(r.Context())
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", reqID).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
