package validator

import (
	"context"
	"testing"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/gibberish"
	"github.com/pyandcpp-coder/User-Validation-Scoring/index"
	"github.com/pyandcpp-coder/User-Validation-Scoring/scorer"
	"github.com/rs/zerolog"
)

type stubScorer struct {
	quality  int
	degraded bool
}

func (s stubScorer) Score(_ context.Context, _ string, _ []byte) (scorer.Result, error) {
	return scorer.Result{Quality: s.quality, Degraded: s.degraded}, nil
}

var _ scorer.Scorer = stubScorer{}

func newTestValidator(t *testing.T) (*Validator, *index.Engine) {
	t.Helper()
	cfg := config.Load()
	logger := zerolog.Nop()
	embedder := index.NewShingleEmbedder(32)
	content := index.NewEngine(logger, embedder)
	classifier := gibberish.New(cfg, nil)
	return New(cfg, classifier, content, stubScorer{quality: 7}), content
}

func TestValidateAcceptsFirstPost(t *testing.T) {
	v, _ := newTestValidator(t)
	out, err := v.Validate(context.Background(), Post{
		PostID:  "p1",
		UserID:  "u1",
		Content: "A thoughtful essay about distributed consensus algorithms and their tradeoffs.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("expected acceptance, got rejection: %q", out.Reason)
	}
	if out.Originality != 1.0 {
		t.Fatalf("expected originality 1.0 for first post, got %v", out.Originality)
	}
	if out.Quality != 7 {
		t.Fatalf("expected quality 7, got %d", out.Quality)
	}
}

func TestValidateRejectsGibberish(t *testing.T) {
	v, _ := newTestValidator(t)
	out, err := v.Validate(context.Background(), Post{
		PostID:  "p1",
		UserID:  "u1",
		Content: "asdfghjkl qwerty zxcvbn",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Rejected {
		t.Fatalf("expected rejection for gibberish content")
	}
}

func TestValidateRejectsDuplicate(t *testing.T) {
	v, _ := newTestValidator(t)
	ctx := context.Background()
	first := "A thoughtful essay about distributed consensus algorithms and their tradeoffs."

	if _, err := v.Validate(ctx, Post{PostID: "p1", UserID: "u1", Content: first}); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}

	out, err := v.Validate(ctx, Post{PostID: "p2", UserID: "u2", Content: first})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Rejected {
		t.Fatalf("expected rejection for duplicate content")
	}
}

func TestValidateRejectsPostIDConflict(t *testing.T) {
	v, content := newTestValidator(t)
	ctx := context.Background()

	if err := content.Insert(ctx, index.Post{PostID: "p1", UserID: "u1", Content: "unrelated seed content about gardening"}); err != nil {
		t.Fatalf("unexpected seed error: %v", err)
	}

	out, err := v.Validate(ctx, Post{
		PostID:  "p1",
		UserID:  "u2",
		Content: "A thoughtful essay about distributed consensus algorithms and their tradeoffs.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Rejected || out.Reason != "post_id conflict" {
		t.Fatalf("expected post_id conflict rejection, got %+v", out)
	}
}
