// Package scorer implements the quality scorer: a remote generative-model
// call returning an integer 0-10 rating for a post's effort, creativity,
// and clarity, with bounded retries and a neutral fallback.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/pyandcpp-coder/User-Validation-Scoring/middleware"
	"github.com/rs/zerolog"
)

// Result is the outcome of a quality scoring call.
type Result struct {
	Quality  int
	Degraded bool
}

// Scorer rates post content 0-10.
type Scorer interface {
	Score(ctx context.Context, text string, image []byte) (Result, error)
}

// RemoteScorer calls a configured HTTP endpoint hosting the rating model
// over one pooled transport.
type RemoteScorer struct {
	cfg    *config.Config
	logger zerolog.Logger
	client *http.Client
	url    string

	// sem caps concurrent upstream calls independently of the task
	// queue's worker count.
	sem *middleware.Semaphore
}

// NewRemoteScorer builds a scorer bound to cfg.QualityModelURL.
func NewRemoteScorer(cfg *config.Config, logger zerolog.Logger) *RemoteScorer {
	transport := &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &RemoteScorer{
		cfg:    cfg,
		logger: logger.With().Str("component", "quality_scorer").Logger(),
		client: &http.Client{Transport: transport, Timeout: cfg.QualityModelTimeout},
		url:    cfg.QualityModelURL,
		sem:    middleware.NewSemaphore(10),
	}
}

type ratingRequest struct {
	Prompt string `json:"prompt"`
	HasImage bool `json:"has_image"`
	Image  []byte `json:"image,omitempty"`
}

type ratingResponse struct {
	Text string `json:"text"`
}

var firstInteger = regexp.MustCompile(`-?\d+`)

const ratingPrompt = "Rate the following content from 0 to 10 on effort, creativity, and clarity. Respond with a single integer.\n\n"

// Score calls the remote model, retrying up to cfg.QualityMaxRetries times
// with exponential backoff on transport error, timeout, or parse failure.
// On final failure it returns the neutral default with Degraded=true,
// never an error — callers always get a usable quality value.
func (s *RemoteScorer) Score(ctx context.Context, text string, image []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if !s.sem.Acquire(s.url, s.cfg.QualityModelTimeout) {
		return s.degraded(fmt.Errorf("quality scorer saturated, no upstream slot within %s", s.cfg.QualityModelTimeout)), nil
	}
	defer s.sem.Release(s.url)

	var lastErr error
	backoff := s.cfg.QualityRetryBase

	for attempt := 0; attempt <= s.cfg.QualityMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return s.degraded(lastErr), nil
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		quality, err := s.call(ctx, text, image)
		if err == nil {
			return Result{Quality: quality}, nil
		}
		lastErr = err
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("quality scorer call failed")
	}

	return s.degraded(lastErr), nil
}

func (s *RemoteScorer) degraded(cause error) Result {
	s.logger.Error().Err(cause).Msg("quality scorer exhausted retries, using neutral default")
	return Result{Quality: s.cfg.QualityDefaultScore, Degraded: true}
}

func (s *RemoteScorer) call(ctx context.Context, text string, image []byte) (int, error) {
	reqBody := ratingRequest{Prompt: ratingPrompt + text, HasImage: len(image) > 0, Image: image}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("marshal rating request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create rating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.cfg.QualityModelAPIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.QualityModelAPIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("rating request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("rating model returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed ratingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode rating response: %w", err)
	}

	return parseQuality(parsed.Text)
}

// parseQuality extracts the first integer in text and clamps it to [0,10].
func parseQuality(text string) (int, error) {
	match := firstInteger.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("no integer found in rating response: %q", text)
	}
	var n int
	if _, err := fmt.Sscanf(match, "%d", &n); err != nil {
		return 0, fmt.Errorf("parse rating integer: %w", err)
	}
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return n, nil
}

var _ Scorer = (*RemoteScorer)(nil)
