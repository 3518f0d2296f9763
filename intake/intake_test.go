package intake

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/gibberish"
	"github.com/pyandcpp-coder/User-Validation-Scoring/index"
	"github.com/pyandcpp-coder/User-Validation-Scoring/queue"
	"github.com/pyandcpp-coder/User-Validation-Scoring/scorer"
	"github.com/pyandcpp-coder/User-Validation-Scoring/scoring"
	"github.com/pyandcpp-coder/User-Validation-Scoring/store"
	"github.com/pyandcpp-coder/User-Validation-Scoring/validator"
	"github.com/pyandcpp-coder/User-Validation-Scoring/webhook"
)

type stubScorer struct {
	quality int
}

func (s stubScorer) Score(_ context.Context, _ string, _ []byte) (scorer.Result, error) {
	return scorer.Result{Quality: s.quality}, nil
}

// hookRecorder is an httptest endpoint capturing every webhook body.
type hookRecorder struct {
	mu     sync.Mutex
	bodies []WebhookBody
	srv    *httptest.Server
}

func newHookRecorder(t *testing.T) *hookRecorder {
	t.Helper()
	rec := &hookRecorder{}
	rec.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body WebhookBody
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("webhook body did not parse: %v", err)
		}
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, body)
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rec.srv.Close)
	return rec
}

func (h *hookRecorder) last(t *testing.T) WebhookBody {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.bodies) == 0 {
		t.Fatal("no webhook delivery recorded")
	}
	return h.bodies[len(h.bodies)-1]
}

func newTestRouter(t *testing.T, quality int) (*Router, store.Store, *index.Engine) {
	t.Helper()
	cfg := config.Load()
	log := zerolog.Nop()

	s := store.NewMemoryStore()
	content := index.NewEngine(log, index.NewShingleEmbedder(64))
	classifier := gibberish.New(cfg, nil)
	v := validator.New(cfg, classifier, content, stubScorer{quality: quality})
	engine := scoring.New(cfg, s)
	jobs := queue.New(queue.Config{}, log)
	hooks := webhook.New(webhook.Config{
		Timeout:    2 * time.Second,
		MaxRetries: 1,
		RetryBase:  10 * time.Millisecond,
		RetryCap:   10 * time.Millisecond,
	}, log)

	return New(cfg, engine, s, content, v, jobs, hooks, log), s, content
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestSubmitActionDailyLimit(t *testing.T) {
	router, _, _ := newTestRouter(t, 5)
	ctx := context.Background()

	var last ActionResult
	for i := 0; i < 5; i++ {
		r, err := router.SubmitAction(ctx, "U1", config.CategoryLike)
		if err != nil {
			t.Fatalf("like %d failed: %v", i+1, err)
		}
		if !r.Approved {
			t.Fatalf("like %d should be approved, got reason %q", i+1, r.Reason)
		}
		if !approx(r.Significance, 0.1) {
			t.Fatalf("like %d expected significance 0.1, got %v", i+1, r.Significance)
		}
		last = r
	}

	if want := (0.5 / 110) * 100; !approx(last.FinalScore, want) {
		t.Errorf("expected final score %v after five likes, got %v", want, last.FinalScore)
	}

	sixth, err := router.SubmitAction(ctx, "U1", config.CategoryLike)
	if err != nil {
		t.Fatalf("sixth like errored: %v", err)
	}
	if sixth.Approved || sixth.Reason != "daily limit" {
		t.Errorf("sixth like should hit the daily limit, got approved=%v reason=%q", sixth.Approved, sixth.Reason)
	}
}

func TestHandlePostJobAwardsQualityAndOriginality(t *testing.T) {
	router, s, _ := newTestRouter(t, 8)
	rec := newHookRecorder(t)
	ctx := context.Background()

	router.HandlePostJob(ctx, queue.Job{
		PostID:       "P1",
		CreatorID:    "creator",
		InteractorID: "U2",
		Content:      "Thoughtful essay about consensus algorithms.",
		WebhookURL:   rec.srv.URL,
	})

	body := rec.last(t)
	if !body.Validation.Approved {
		t.Fatalf("expected approval, got reason %q", body.Validation.Reason)
	}
	// 0.5 base + 8/10 quality bonus + 1.0 originality * 0.25 on an empty index.
	if !approx(body.Validation.Significance, 1.55) {
		t.Errorf("expected delta 1.55, got %v", body.Validation.Significance)
	}
	if body.Validation.PostID != "P1" {
		t.Errorf("webhook must echo post_id, got %q", body.Validation.PostID)
	}
	if body.InteractorAddress != "U2" || body.CreatorAddress != "creator" {
		t.Errorf("webhook addresses wrong: %+v", body)
	}

	award, ok, err := s.GetPostAward(ctx, "P1")
	if err != nil || !ok {
		t.Fatalf("expected sidecar award for P1, ok=%v err=%v", ok, err)
	}
	if award.UserID != "U2" || !approx(award.AwardedDelta, 1.55) {
		t.Errorf("unexpected sidecar award: %+v", award)
	}
}

func TestHandlePostJobRejectsDuplicate(t *testing.T) {
	router, s, content := newTestRouter(t, 8)
	rec := newHookRecorder(t)
	ctx := context.Background()
	essay := "Thoughtful essay about consensus algorithms."

	router.HandlePostJob(ctx, queue.Job{
		PostID: "P1", InteractorID: "U2", Content: essay, WebhookURL: rec.srv.URL,
	})
	before, _, err := s.Get(ctx, "U2")
	if err != nil {
		t.Fatalf("get before: %v", err)
	}

	router.HandlePostJob(ctx, queue.Job{
		PostID: "P2", InteractorID: "U2", Content: essay, WebhookURL: rec.srv.URL,
	})

	body := rec.last(t)
	if body.Validation.Approved {
		t.Fatal("identical content must be rejected as a duplicate")
	}
	if body.Validation.Reason != "duplicate of P1" {
		t.Errorf("expected reason %q, got %q", "duplicate of P1", body.Validation.Reason)
	}

	after, _, err := s.Get(ctx, "U2")
	if err != nil {
		t.Fatalf("get after: %v", err)
	}
	if after.Points[config.CategoryPost] != before.Points[config.CategoryPost] {
		t.Errorf("rejected post mutated the ledger: %v -> %v",
			before.Points[config.CategoryPost], after.Points[config.CategoryPost])
	}
	if content.Count() != 1 {
		t.Errorf("rejected post must not be indexed, index has %d entries", content.Count())
	}
}

func TestHandlePostJobRejectsGibberish(t *testing.T) {
	router, s, content := newTestRouter(t, 8)
	rec := newHookRecorder(t)
	ctx := context.Background()

	router.HandlePostJob(ctx, queue.Job{
		PostID: "P3", InteractorID: "U3", Content: "asdfghjkl qwerty zxcvbn", WebhookURL: rec.srv.URL,
	})

	body := rec.last(t)
	if body.Validation.Approved {
		t.Fatal("keyboard-mash content must be rejected")
	}
	if content.Count() != 0 {
		t.Errorf("gibberish must not be indexed, index has %d entries", content.Count())
	}
	if _, ok, _ := s.Get(ctx, "U3"); ok {
		t.Error("gibberish rejection must leave no ledger trace")
	}
}

// Redelivery after a crash between index insert and ledger commit must not
// double-award: the post_id conflict from the first attempt's insert turns
// the retry into a rejection.
func TestHandlePostJobRedeliveryConflict(t *testing.T) {
	router, s, content := newTestRouter(t, 8)
	rec := newHookRecorder(t)
	ctx := context.Background()

	if err := content.Insert(ctx, index.Post{
		PostID: "P4", UserID: "U4", Content: "A meditation on distributed clocks.",
	}); err != nil {
		t.Fatalf("pre-insert failed: %v", err)
	}

	router.HandlePostJob(ctx, queue.Job{
		PostID: "P4", InteractorID: "U4", Content: "A fresh draft, different words entirely.", WebhookURL: rec.srv.URL,
	})

	body := rec.last(t)
	if body.Validation.Approved {
		t.Fatal("redelivered job with an already-used post_id must be rejected")
	}
	if body.Validation.Reason != "post_id conflict" {
		t.Errorf("expected reason %q, got %q", "post_id conflict", body.Validation.Reason)
	}
	if rec2, ok, _ := s.Get(ctx, "U4"); ok && rec2.Points[config.CategoryPost] != 0 {
		t.Errorf("conflict rejection must not award points, got %v", rec2.Points[config.CategoryPost])
	}
}

func TestDeletePostRefundsExactly(t *testing.T) {
	router, s, content := newTestRouter(t, 8)
	rec := newHookRecorder(t)
	ctx := context.Background()

	router.HandlePostJob(ctx, queue.Job{
		PostID: "P5", InteractorID: "U5", Content: "Thoughtful essay about consensus algorithms.", WebhookURL: rec.srv.URL,
	})

	mid, _, err := s.Get(ctx, "U5")
	if err != nil {
		t.Fatalf("get mid: %v", err)
	}
	if !approx(mid.Points[config.CategoryPost], 1.55) {
		t.Fatalf("setup award expected 1.55, got %v", mid.Points[config.CategoryPost])
	}

	result, err := router.DeletePost(ctx, "P5", "U5")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if result.PostID != "P5" || result.UserID != "U5" {
		t.Errorf("unexpected delete result: %+v", result)
	}

	after, _, err := s.Get(ctx, "U5")
	if err != nil {
		t.Fatalf("get after: %v", err)
	}
	if after.Points[config.CategoryPost] != 0 {
		t.Errorf("expected post points refunded to 0, got %v", after.Points[config.CategoryPost])
	}
	if len(after.Timestamps[config.CategoryPost]) != 0 {
		t.Errorf("expected post timestamp removed, %d remain", len(after.Timestamps[config.CategoryPost]))
	}
	if content.Count() != 0 {
		t.Errorf("expected post removed from index, %d remain", content.Count())
	}
	if _, ok, _ := s.GetPostAward(ctx, "P5"); ok {
		t.Error("sidecar award must be cleared after refund")
	}

	if _, err := router.DeletePost(ctx, "P5", "U5"); err != ErrNotFound {
		t.Errorf("second delete should report not found, got %v", err)
	}
}

func TestDeletePostWrongUser(t *testing.T) {
	router, _, content := newTestRouter(t, 8)
	ctx := context.Background()

	if err := content.Insert(ctx, index.Post{PostID: "P6", UserID: "owner", Content: "mine"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if _, err := router.DeletePost(ctx, "P6", "impostor"); err != ErrNotFound {
		t.Fatalf("delete under the wrong user must look like not-found, got %v", err)
	}
	if content.Count() != 1 {
		t.Error("post must survive a mismatched delete")
	}
}

func TestSubmitOneTimeAwardsOnce(t *testing.T) {
	router, s, _ := newTestRouter(t, 5)
	ctx := context.Background()

	first, err := router.SubmitOneTime(ctx, "U6", "SIGNUP_BONUS", 2.5)
	if err != nil {
		t.Fatalf("first one-time failed: %v", err)
	}
	if first.Significance != 2.5 {
		t.Errorf("expected first award of 2.5, got %v", first.Significance)
	}

	second, err := router.SubmitOneTime(ctx, "U6", "SIGNUP_BONUS", 2.5)
	if err != nil {
		t.Fatalf("second one-time failed: %v", err)
	}
	if second.Significance != 0 {
		t.Errorf("replayed one-time event must award 0, got %v", second.Significance)
	}

	rec, _, err := s.Get(ctx, "U6")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.OneTimePoints != 2.5 {
		t.Errorf("expected one-time points 2.5, got %v", rec.OneTimePoints)
	}
	if len(rec.OneTimeEvents) != 1 {
		t.Errorf("expected one recorded event, got %d", len(rec.OneTimeEvents))
	}
}
