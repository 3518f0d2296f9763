package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newDispatcher(maxRetries int) *Dispatcher {
	return New(Config{
		Timeout:    2 * time.Second,
		MaxRetries: maxRetries,
		RetryBase:  5 * time.Millisecond,
		RetryCap:   20 * time.Millisecond,
	}, zerolog.Nop())
}

func TestDeliverPostsJSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json content type, got %q", ct)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Errorf("body did not parse: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	newDispatcher(2).Deliver(context.Background(), srv.URL, map[string]string{"status": "ok"})

	if got["status"] != "ok" {
		t.Errorf("unexpected payload delivered: %v", got)
	}
}

func TestDeliverRetriesTransientFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	newDispatcher(5).Deliver(context.Background(), srv.URL, map[string]string{"k": "v"})

	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("expected 3 attempts (two 503s, then success), got %d", n)
	}
}

func TestDeliverDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	newDispatcher(5).Deliver(context.Background(), srv.URL, map[string]string{"k": "v"})

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("a 400 is not transient; expected 1 attempt, got %d", n)
	}
}

func TestDeliverGivesUpAfterMaxRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	newDispatcher(2).Deliver(context.Background(), srv.URL, map[string]string{"k": "v"})

	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("expected initial attempt plus 2 retries, got %d", n)
	}
}

func TestDeliverSkipsEmptyURL(t *testing.T) {
	// Must simply return; a panic or network dial here would fail the test.
	newDispatcher(1).Deliver(context.Background(), "", map[string]string{"k": "v"})
}
