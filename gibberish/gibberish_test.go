package gibberish

import (
	"context"
	"testing"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
)

func testClassifier() *Classifier {
	cfg := config.Load()
	return New(cfg, nil)
}

func TestClassifyRejectsKeyboardRowGibberish(t *testing.T) {
	c := testClassifier()
	got := c.Classify(context.Background(), "asdfghjkl qwerty zxcvbn")
	if got.OK {
		t.Fatalf("expected gibberish rejection, got OK")
	}
	if got.Reason == "" {
		t.Fatalf("expected a reason string")
	}
}

func TestClassifyAcceptsNaturalLanguage(t *testing.T) {
	c := testClassifier()
	got := c.Classify(context.Background(), "Thoughtful essay about consensus algorithms.")
	if !got.OK {
		t.Fatalf("expected natural-language text to pass, got reason=%q", got.Reason)
	}
}

func TestClassifyMLStageFailsOpenOnError(t *testing.T) {
	cfg := config.Load()
	c := New(cfg, erroringClassifier{})
	got := c.Classify(context.Background(), "a perfectly reasonable sentence about go modules")
	if !got.OK {
		t.Fatalf("expected fail-open behavior, got rejection: %q", got.Reason)
	}
}

type erroringClassifier struct{}

func (erroringClassifier) Classify(_ context.Context, _ string) (float64, error) {
	return 0, errFake
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFake = fakeErr("ml classifier unavailable")

func TestClassifyMLStageRejectsHighConfidence(t *testing.T) {
	cfg := config.Load()
	c := New(cfg, confidentClassifier{confidence: 0.99})
	got := c.Classify(context.Background(), "a perfectly reasonable sentence about go modules")
	if got.OK {
		t.Fatalf("expected ML stage rejection")
	}
}

type confidentClassifier struct{ confidence float64 }

func (c confidentClassifier) Classify(_ context.Context, _ string) (float64, error) {
	return c.confidence, nil
}
