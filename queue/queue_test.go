package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestProcessesEnqueuedJobs(t *testing.T) {
	q := New(Config{Workers: 2, Capacity: 16, VisibilityTimeout: time.Minute}, zerolog.Nop())

	var mu sync.Mutex
	seen := make(map[string]bool)
	done := make(chan struct{}, 3)

	q.Start(context.Background(), func(_ context.Context, job Job) {
		mu.Lock()
		seen[job.PostID] = true
		mu.Unlock()
		done <- struct{}{}
	})
	defer q.Stop()

	q.Enqueue(Job{PostID: "a"})
	q.Enqueue(Job{PostID: "b"})
	q.Enqueue(Job{PostID: "c"})

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs to process")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"a", "b", "c"} {
		if !seen[id] {
			t.Errorf("job %s never processed", id)
		}
	}
}

func TestEnqueueMintsJobID(t *testing.T) {
	q := New(Config{}, zerolog.Nop())

	got := make(chan Job, 1)
	q.Start(context.Background(), func(_ context.Context, job Job) {
		got <- job
	})
	defer q.Stop()

	q.Enqueue(Job{PostID: "p"})

	select {
	case job := <-got:
		if job.JobID == "" {
			t.Error("expected a minted JobID")
		}
		if job.EnqueuedAt.IsZero() {
			t.Error("expected EnqueuedAt stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job")
	}
}

// A panicking handler must not ack: the job is redelivered after the
// visibility timeout and succeeds on the second attempt.
func TestPanickedJobIsRedelivered(t *testing.T) {
	q := New(Config{Workers: 1, Capacity: 4, VisibilityTimeout: 100 * time.Millisecond}, zerolog.Nop())

	var attempts int32
	done := make(chan struct{})

	q.Start(context.Background(), func(_ context.Context, job Job) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			panic("worker crash")
		}
		close(done)
	})
	defer q.Stop()

	q.Enqueue(Job{PostID: "crashy"})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was never redelivered after the panic")
	}

	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", n)
	}
}

func TestStopDrainsWorkers(t *testing.T) {
	q := New(Config{Workers: 2}, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})
	q.Start(context.Background(), func(_ context.Context, job Job) {
		close(started)
		<-release
	})

	q.Enqueue(Job{PostID: "slow"})
	<-started

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop never returned after the job finished")
	}

	if q.Processed() != 1 {
		t.Errorf("expected 1 processed job, got %d", q.Processed())
	}
}
