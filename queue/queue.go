// Package queue implements the task queue: a FIFO of pending post and
// comment validation jobs drained by a worker pool, with
// visibility-timeout redelivery so a worker crash mid-job does not lose
// the job — it becomes visible again after VisibilityTimeout and a
// different worker picks it up.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pyandcpp-coder/User-Validation-Scoring/middleware"
)

// Job carries everything a worker needs to validate and score a post or
// comment, plus the webhook to notify on completion.
type Job struct {
	JobID        string
	PostID       string
	CreatorID    string
	InteractorID string
	Content      string
	Image        []byte
	WebhookURL   string
	EnqueuedAt   time.Time
}

// Handler processes one job. A normal return acknowledges the job; a panic
// leaves it unacknowledged, so it is redelivered once its visibility
// timeout elapses.
type Handler func(ctx context.Context, job Job)

type inFlightEntry struct {
	job      Job
	deadline time.Time
}

// Queue is the Task Queue: a buffered channel of jobs plus a worker pool,
// with a tracking map and sweeper providing at-least-once, idempotent
// (by PostID) redelivery semantics.
type Queue struct {
	cfg    Config
	logger zerolog.Logger

	jobs chan Job

	mu       sync.Mutex
	inFlight map[string]inFlightEntry

	// dedup collapses a redelivered job whose original attempt is still
	// running (visibility timeout elapsed before completion) into a no-op,
	// so the validator and scoring engine never run the same post twice
	// concurrently.
	dedup     *middleware.Deduplicator
	processed middleware.AtomicCounter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds the tunables the Task Queue needs from the engine's config.
type Config struct {
	Workers           int
	Capacity          int
	VisibilityTimeout time.Duration
}

// New creates a Task Queue. Call Start to begin processing.
func New(cfg Config, logger zerolog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	return &Queue{
		cfg:      cfg,
		logger:   logger.With().Str("component", "task_queue").Logger(),
		jobs:     make(chan Job, cfg.Capacity),
		inFlight: make(map[string]inFlightEntry),
		dedup:    middleware.NewDeduplicator(),
	}
}

// Enqueue queues a job for processing, minting a JobID if the caller left
// it blank. It blocks while the channel's buffer is full; a full queue is a
// signal to scale worker count or capacity, not something callers retry
// around here.
func (q *Queue) Enqueue(job Job) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	q.jobs <- job
}

// Start launches the worker pool and the visibility-timeout sweeper.
func (q *Queue) Start(ctx context.Context, handler Handler) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i, handler)
	}

	q.wg.Add(1)
	go q.sweep(ctx)
}

// Stop cancels the worker pool and sweeper and waits for in-flight jobs'
// goroutines to return. It does not wait for redelivery of jobs that were
// mid-flight at shutdown; those remain in inFlight and would be picked up
// by a fresh Queue restored from durable state in a multi-process
// deployment.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context, id int, handler Handler) {
	defer q.wg.Done()
	log := q.logger.With().Int("worker", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.markInFlight(job)
			if q.dispatch(ctx, log, handler, job) {
				q.ack(job.JobID)
			}
		}
	}
}

// dispatch runs job through the Deduplicator: if a redelivery arrives while
// the original attempt for the same post_id is still in flight, it waits
// for that attempt's result instead of running the handler a second time.
// The returned bool reports whether the job should be acknowledged; a
// panicked job is left unacknowledged so the sweeper redelivers it once
// its visibility timeout elapses.
func (q *Queue) dispatch(ctx context.Context, log zerolog.Logger, handler Handler, job Job) bool {
	entry, isNew := q.dedup.TryStart(job.PostID)
	if !isNew {
		log.Warn().Str("job_id", job.JobID).Str("post_id", job.PostID).
			Msg("duplicate delivery observed while original attempt in flight; waiting instead of re-running")
		<-entry.Done
		return true
	}

	ok := q.runJob(ctx, log, handler, job)
	q.processed.Inc()
	q.dedup.Complete(job.PostID, nil)
	return ok
}

// runJob invokes the handler with a per-job panic recovery, so one bad
// job cannot kill the worker pool.
func (q *Queue) runJob(ctx context.Context, log zerolog.Logger, handler Handler, job Job) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job_id", job.JobID).Str("post_id", job.PostID).
				Interface("panic", r).Msg("task queue job panicked; will be redelivered")
			ok = false
		}
	}()
	handler(ctx, job)
	return true
}

func (q *Queue) markInFlight(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight[job.JobID] = inFlightEntry{job: job, deadline: time.Now().Add(q.cfg.VisibilityTimeout)}
}

func (q *Queue) ack(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, jobID)
}

// sweep periodically requeues jobs whose visibility timeout elapsed without
// an ack, so a crashed worker's job becomes visible again.
func (q *Queue) sweep(ctx context.Context) {
	defer q.wg.Done()
	interval := q.cfg.VisibilityTimeout / 5
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			q.requeueExpired(now)
		}
	}
}

func (q *Queue) requeueExpired(now time.Time) {
	q.mu.Lock()
	var expired []Job
	for id, entry := range q.inFlight {
		if now.After(entry.deadline) {
			expired = append(expired, entry.job)
			delete(q.inFlight, id)
		}
	}
	q.mu.Unlock()

	for _, job := range expired {
		q.logger.Warn().Str("job_id", job.JobID).Str("post_id", job.PostID).
			Msg("visibility timeout elapsed; redelivering job")
		q.jobs <- job
	}
}

// Depth returns the number of jobs currently buffered (not counting
// in-flight jobs), useful for admin/health surfaces.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

// Processed returns the number of jobs whose handler has run to completion
// (panics included), for admin/health surfaces.
func (q *Queue) Processed() int64 {
	return q.processed.Get()
}
