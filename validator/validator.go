// Package validator composes the gibberish classifier, content index,
// and quality scorer into a single accept-or-reject decision for a post:
// accepted content carries a quality rating and an originality score,
// rejected content carries a reason.
package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/gibberish"
	"github.com/pyandcpp-coder/User-Validation-Scoring/index"
	"github.com/pyandcpp-coder/User-Validation-Scoring/scorer"
)

// Post is the content submitted for validation.
type Post struct {
	PostID  string
	UserID  string
	Content string
	Image   []byte
}

// Outcome is the result of validating a post.
type Outcome struct {
	Accepted    bool
	Quality     int
	Degraded    bool
	Originality float64
	MatchedID   string
	Rejected    bool
	Reason      string
}

// Validator runs the gibberish check, duplicate detection, and quality
// scoring for submitted content.
type Validator struct {
	cfg        *config.Config
	classifier *gibberish.Classifier
	content    *index.Engine
	scorer     scorer.Scorer
}

// New builds a Validator from its three collaborators.
func New(cfg *config.Config, classifier *gibberish.Classifier, content *index.Engine, qs scorer.Scorer) *Validator {
	return &Validator{cfg: cfg, classifier: classifier, content: content, scorer: qs}
}

// Validate runs classify -> nearest-neighbour -> quality -> insert.
func (v *Validator) Validate(ctx context.Context, post Post) (Outcome, error) {
	if gr := v.classifier.Classify(ctx, post.Content); !gr.OK {
		return Outcome{Rejected: true, Reason: gr.Reason}, nil
	}

	nearest, err := v.content.Nearest(ctx, post.Content, post.Image)
	if err != nil {
		return Outcome{}, fmt.Errorf("validation unavailable: %w", err)
	}

	originality := 1.0
	if nearest.Found {
		if nearest.Distance <= v.cfg.DuplicateDistanceThreshold {
			return Outcome{Rejected: true, Reason: "duplicate of " + nearest.MatchedID}, nil
		}
		originality = nearest.Distance
		if originality > 1.0 {
			originality = 1.0
		}
	}

	qr, err := v.scorer.Score(ctx, post.Content, post.Image)
	if err != nil {
		return Outcome{}, fmt.Errorf("validation unavailable: %w", err)
	}

	if err := v.content.Insert(ctx, index.Post{
		PostID:  post.PostID,
		UserID:  post.UserID,
		Content: post.Content,
		Image:   post.Image,
	}); err != nil {
		if errors.Is(err, index.ErrConflict) {
			return Outcome{Rejected: true, Reason: "post_id conflict"}, nil
		}
		return Outcome{}, fmt.Errorf("validation unavailable: %w", err)
	}

	return Outcome{
		Accepted:    true,
		Quality:     qr.Quality,
		Degraded:    qr.Degraded,
		Originality: originality,
	}, nil
}
