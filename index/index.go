// Package index implements the content index: a vector store of posts
// supporting insert, nearest-neighbour query, and delete by (post_id,
// user_id). Entries never expire; content survives until the caller
// removes it.
package index

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Post is one indexed piece of content.
type Post struct {
	PostID  string
	UserID  string
	Content string
	Image   []byte
}

// Embedder turns post content into a fixed-dimension vector. Swapping the
// implementation (e.g. for a real text/multimodal encoder) requires
// recalibrating the duplicate-distance threshold in Config, since the
// distance is in the embedder's own units.
type Embedder interface {
	Embed(ctx context.Context, text string, image []byte) ([]float64, error)
}

type entry struct {
	id     string
	post   Post
	vector []float64
}

// Engine is the in-process Content Index.
type Engine struct {
	logger   zerolog.Logger
	embedder Embedder

	mu       sync.RWMutex
	entries  map[string]*entry // post_id -> entry
}

// NewEngine creates a Content Index using the given embedder.
func NewEngine(logger zerolog.Logger, embedder Embedder) *Engine {
	return &Engine{
		logger:   logger.With().Str("component", "content_index").Logger(),
		embedder: embedder,
		entries:  make(map[string]*entry),
	}
}

type indexError string

func (e indexError) Error() string { return string(e) }

const (
	// ErrConflict indicates post_id already exists under a different entry.
	ErrConflict = indexError("content index: post_id conflict")
	// ErrNotFound indicates the post_id does not exist.
	ErrNotFound = indexError("content index: post not found")
	// ErrUserMismatch indicates the post exists but under a different user_id.
	ErrUserMismatch = indexError("content index: post_id exists under a different user_id")
)

// Insert embeds and persists a post. Returns ErrConflict if post_id is
// already present.
func (e *Engine) Insert(ctx context.Context, post Post) error {
	vec, err := e.embedder.Embed(ctx, post.Content, post.Image)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.entries[post.PostID]; exists {
		return ErrConflict
	}

	e.entries[post.PostID] = &entry{
		id:     uuid.NewString(),
		post:   post,
		vector: vec,
	}

	e.logger.Debug().Str("post_id", post.PostID).Str("user_id", post.UserID).Msg("indexed post")
	return nil
}

// NearestResult is the outcome of a Nearest query.
type NearestResult struct {
	Found       bool
	Distance    float64
	MatchedID   string
}

// Nearest returns the closest indexed post to (text, image) by cosine
// distance. When the index is empty, Found is false — callers treat this
// as maximum originality (1.0) so the first post is always rewarded.
func (e *Engine) Nearest(ctx context.Context, text string, image []byte) (NearestResult, error) {
	vec, err := e.embedder.Embed(ctx, text, image)
	if err != nil {
		return NearestResult{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.entries) == 0 {
		return NearestResult{Found: false}, nil
	}

	bestDistance := math.MaxFloat64
	var bestID string
	for _, ent := range e.entries {
		d := cosineDistance(vec, ent.vector)
		if d < bestDistance {
			bestDistance = d
			bestID = ent.post.PostID
		}
	}

	return NearestResult{Found: true, Distance: bestDistance, MatchedID: bestID}, nil
}

// Delete removes a post by (post_id, user_id) match. Returns ErrNotFound
// if post_id is absent, ErrUserMismatch if it belongs to a different user.
func (e *Engine) Delete(postID, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[postID]
	if !ok {
		return ErrNotFound
	}
	if ent.post.UserID != userID {
		return ErrUserMismatch
	}
	delete(e.entries, postID)
	return nil
}

// Count returns the number of indexed posts.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}

// cosineDistance returns 1 - cosine_similarity, in [0, 2] generally and
// [0, 1] for the non-negative vectors ShingleEmbedder produces.
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity
}
