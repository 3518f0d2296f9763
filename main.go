package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pyandcpp-coder/User-Validation-Scoring/cohort"
	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/gibberish"
	"github.com/pyandcpp-coder/User-Validation-Scoring/handler"
	"github.com/pyandcpp-coder/User-Validation-Scoring/index"
	"github.com/pyandcpp-coder/User-Validation-Scoring/intake"
	"github.com/pyandcpp-coder/User-Validation-Scoring/logger"
	"github.com/pyandcpp-coder/User-Validation-Scoring/queue"
	"github.com/pyandcpp-coder/User-Validation-Scoring/redisclient"
	"github.com/pyandcpp-coder/User-Validation-Scoring/router"
	"github.com/pyandcpp-coder/User-Validation-Scoring/scorer"
	"github.com/pyandcpp-coder/User-Validation-Scoring/scoring"
	"github.com/pyandcpp-coder/User-Validation-Scoring/store"
	"github.com/pyandcpp-coder/User-Validation-Scoring/validator"
	"github.com/pyandcpp-coder/User-Validation-Scoring/webhook"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("scoring engine starting")

	var scoreStore store.Store
	rc, err := redisclient.New(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis init failed — falling back to in-memory score store")
		scoreStore = store.NewMemoryStore()
	} else if pingErr := rc.Ping(); pingErr != nil {
		log.Warn().Err(pingErr).Msg("redis ping failed — falling back to in-memory score store")
		scoreStore = store.NewMemoryStore()
	} else {
		log.Info().Msg("redis connected")
		scoreStore = store.NewRedisStore(rc.Raw())
	}

	contentIndex := index.NewEngine(log, index.NewShingleEmbedder(256))
	classifier := gibberish.New(cfg, nil)
	qualityScorer := scorer.NewRemoteScorer(cfg, log)
	postValidator := validator.New(cfg, classifier, contentIndex, qualityScorer)
	scoringEngine := scoring.New(cfg, scoreStore)

	taskQueue := queue.New(queue.Config{
		Workers:           cfg.QueueWorkers,
		Capacity:          cfg.QueueCapacity,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
	}, log)

	hooks := webhook.New(webhook.Config{
		Timeout:    cfg.WebhookTimeout,
		MaxRetries: cfg.WebhookMaxRetries,
		RetryBase:  cfg.WebhookRetryBase,
		RetryCap:   cfg.WebhookRetryCap,
	}, log)

	intakeRouter := intake.New(cfg, scoringEngine, scoreStore, contentIndex, postValidator, taskQueue, hooks, log)
	cohortEngine := cohort.New(cfg, scoreStore, log)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	taskQueue.Start(rootCtx, intakeRouter.HandlePostJob)
	cohortEngine.Start(rootCtx, time.Duration(cfg.CohortIntervalSec)*time.Second)

	intakeHandler := handler.NewIntakeHandler(log, intakeRouter)
	adminHandler := handler.NewAdminHandler(log, cfg, cohortEngine, scoreStore)

	r := router.NewRouter(cfg, log, intakeHandler, adminHandler)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.QualityModelTimeout + cfg.WebhookTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("scoring engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	cohortEngine.Stop()
	taskQueue.Stop()
	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("scoring engine stopped gracefully")
	}
}
