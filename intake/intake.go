// Package intake implements the intake router: it classifies each
// incoming interaction as the synchronous fast path (like, comment, tip,
// crypto, referral — applied directly against the scoring engine) or the
// asynchronous content path (post — enqueued onto the task queue), and
// handles post deletion by reversing a previously-recorded award. Request
// decoding happens in the handler package, not here, so this package
// stays transport-agnostic and testable without net/http.
package intake

import (
	"context"
	"errors"
	"time"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/index"
	"github.com/pyandcpp-coder/User-Validation-Scoring/queue"
	"github.com/pyandcpp-coder/User-Validation-Scoring/scoring"
	"github.com/pyandcpp-coder/User-Validation-Scoring/store"
	"github.com/pyandcpp-coder/User-Validation-Scoring/validator"
	"github.com/pyandcpp-coder/User-Validation-Scoring/webhook"
	"github.com/rs/zerolog"
)

type intakeError string

func (e intakeError) Error() string { return string(e) }

// ErrNotFound indicates delete_post was called for a post_id that does not
// exist (or does not belong to the requesting user_id).
const ErrNotFound = intakeError("intake router: post not found")

// ActionResult is the synchronous response to submit_action.
type ActionResult struct {
	Approved    bool
	Significance float64
	Reason      string
	FinalScore  float64
}

// DeleteResult is the response to delete_post.
type DeleteResult struct {
	PostID string
	UserID string
}

// PostValidationPayload is the validation block of a post-result
// webhook body.
type PostValidationPayload struct {
	Approved     bool    `json:"aiAgentResponseApproved"`
	Significance float64 `json:"significanceScore"`
	Reason       string  `json:"reason"`
	FinalScore   float64 `json:"finalUserScore"`
	PostID       string  `json:"post_id"`
}

// WebhookBody is the full JSON body POSTed to webhook_url for an async
// post/comment result.
type WebhookBody struct {
	CreatorAddress    string                 `json:"creatorAddress"`
	InteractorAddress string                 `json:"interactorAddress"`
	Validation        PostValidationPayload  `json:"validation"`
}

// Router is the Intake Router.
type Router struct {
	cfg       *config.Config
	scores    *scoring.Engine
	store     store.Store
	content   *index.Engine
	validate  *validator.Validator
	jobs      *queue.Queue
	hooks     *webhook.Dispatcher
	logger    zerolog.Logger
}

// New builds an Intake Router from its collaborators. The returned Router's
// HandlePostJob method is the queue.Handler for post/comment jobs; callers
// wire it with jobs.Start(ctx, router.HandlePostJob).
func New(
	cfg *config.Config,
	scores *scoring.Engine,
	s store.Store,
	content *index.Engine,
	v *validator.Validator,
	jobs *queue.Queue,
	hooks *webhook.Dispatcher,
	logger zerolog.Logger,
) *Router {
	return &Router{
		cfg:      cfg,
		scores:   scores,
		store:    s,
		content:  content,
		validate: v,
		jobs:     jobs,
		hooks:    hooks,
		logger:   logger.With().Str("component", "intake_router").Logger(),
	}
}

// SubmitAction handles the synchronous fast path: like, comment, tip,
// crypto, referral. Points are always credited to interactorID; the
// creator receives nothing directly from this path.
func (router *Router) SubmitAction(ctx context.Context, interactorID string, cat config.Category) (ActionResult, error) {
	result, err := router.scores.Apply(ctx, interactorID, cat, time.Now(), scoring.PostContext{})
	if err != nil {
		return ActionResult{}, err
	}

	switch result.Status {
	case scoring.StatusLimited:
		return ActionResult{Approved: false, Reason: "daily limit", FinalScore: result.NormalizedScore}, nil
	case scoring.StatusCapped:
		return ActionResult{Approved: true, Reason: "capped", FinalScore: result.NormalizedScore}, nil
	default:
		return ActionResult{Approved: true, Significance: result.Delta, FinalScore: result.NormalizedScore}, nil
	}
}

// SubmitOneTime handles a named unique event (e.g. a signup bonus) that
// must not be credited more than once per user lifetime.
func (router *Router) SubmitOneTime(ctx context.Context, userID, eventID string, points float64) (ActionResult, error) {
	result, err := router.scores.ApplyOneTime(ctx, userID, eventID, points, time.Now())
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Approved: true, Significance: result.Delta, FinalScore: result.NormalizedScore}, nil
}

// SubmitPost enqueues a post/comment for asynchronous validation and
// scoring; the caller receives "accepted" immediately, and the eventual
// result reaches webhookURL via HandlePostJob.
func (router *Router) SubmitPost(creatorID, interactorID, postID, content, webhookURL string, image []byte) {
	router.jobs.Enqueue(queue.Job{
		PostID:       postID,
		CreatorID:    creatorID,
		InteractorID: interactorID,
		Content:      content,
		Image:        image,
		WebhookURL:   webhookURL,
	})
}

// HandlePostJob is the queue.Handler that validates a post then, on
// acceptance, applies its score, always finishing with a webhook delivery. It
// is redelivery-safe: a post_id conflict on redelivery (the post was
// already inserted by a prior, crashed attempt) surfaces as a rejection
// with no further ledger mutation, so at-least-once processing never
// double-awards.
func (router *Router) HandlePostJob(ctx context.Context, job queue.Job) {
	log := router.logger.With().Str("post_id", job.PostID).Str("user_id", job.InteractorID).Logger()

	outcome, err := router.validate.Validate(ctx, validator.Post{
		PostID:  job.PostID,
		UserID:  job.InteractorID,
		Content: job.Content,
		Image:   job.Image,
	})
	if err != nil {
		log.Error().Err(err).Msg("validation unavailable")
		router.deliver(ctx, job, PostValidationPayload{Approved: false, Reason: "validation unavailable", PostID: job.PostID})
		return
	}

	if outcome.Rejected {
		log.Info().Str("reason", outcome.Reason).Msg("post rejected")
		router.deliver(ctx, job, PostValidationPayload{Approved: false, Reason: outcome.Reason, PostID: job.PostID})
		return
	}

	result, err := router.scores.Apply(ctx, job.InteractorID, config.CategoryPost, time.Now(), scoring.PostContext{
		Quality:     outcome.Quality,
		Originality: outcome.Originality,
	})
	if err != nil {
		log.Error().Err(err).Msg("scoring engine apply failed")
		router.deliver(ctx, job, PostValidationPayload{Approved: false, Reason: "validation unavailable", PostID: job.PostID})
		return
	}

	reason := ""
	if outcome.Degraded {
		reason = "quality scorer degraded, used neutral default"
	}
	if result.Status != scoring.StatusAccepted {
		if reason != "" {
			reason += "; "
		}
		if result.Status == scoring.StatusLimited {
			reason += "daily limit"
		} else {
			reason += "capped"
		}
	}

	if result.Delta > 0 {
		if err := router.store.RecordPostAward(ctx, job.PostID, store.PostAward{UserID: job.InteractorID, AwardedDelta: result.Delta}); err != nil {
			log.Error().Err(err).Msg("failed to record post award sidecar entry; refund on delete may be inexact")
		}
	}

	router.deliver(ctx, job, PostValidationPayload{
		Approved:     result.Status != scoring.StatusLimited,
		Significance: result.Delta,
		Reason:       reason,
		FinalScore:   result.NormalizedScore,
		PostID:       job.PostID,
	})
}

func (router *Router) deliver(ctx context.Context, job queue.Job, validation PostValidationPayload) {
	if job.WebhookURL == "" {
		return
	}
	router.hooks.Deliver(ctx, job.WebhookURL, WebhookBody{
		CreatorAddress:    job.CreatorID,
		InteractorAddress: job.InteractorID,
		Validation:        validation,
	})
}

// DeletePost removes a post from the Content Index and, if it was
// previously awarded points, refunds exactly that amount from the user's
// posts total. ErrNotFound is returned if post_id is absent or does not
// belong to userID — both cases are indistinguishable to an unauthorized
// caller by design.
func (router *Router) DeletePost(ctx context.Context, postID, userID string) (DeleteResult, error) {
	if err := router.content.Delete(postID, userID); err != nil {
		if errors.Is(err, index.ErrNotFound) || errors.Is(err, index.ErrUserMismatch) {
			return DeleteResult{}, ErrNotFound
		}
		return DeleteResult{}, err
	}

	award, ok, err := router.store.GetPostAward(ctx, postID)
	if err != nil {
		router.logger.Error().Err(err).Str("post_id", postID).Msg("failed to look up post award for refund")
	} else if ok {
		if err := router.scores.Refund(ctx, award.UserID, award.AwardedDelta, time.Now()); err != nil {
			router.logger.Error().Err(err).Str("post_id", postID).Msg("failed to refund post award")
		}
		_ = router.store.DeletePostAward(ctx, postID)
	} else {
		router.logger.Warn().Str("post_id", postID).Msg("no award on record for deleted post; refunding nothing")
	}

	return DeleteResult{PostID: postID, UserID: userID}, nil
}
