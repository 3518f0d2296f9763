package index

import (
	"context"
	"hash/fnv"
	"strings"
)

// ShingleEmbedder is a deterministic, dependency-free text embedder: it
// hashes character trigrams ("shingles") into a fixed-width bucket vector,
// producing stable, comparable vectors without calling out to a real
// encoder. Swap it for a real encoder by implementing Embedder and
// recalibrating DuplicateDistanceThreshold.
type ShingleEmbedder struct {
	dims int
}

// NewShingleEmbedder creates an embedder with the given vector width.
func NewShingleEmbedder(dims int) *ShingleEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &ShingleEmbedder{dims: dims}
}

// Embed ignores image bytes (this embedder is text-only) and returns a
// bucketed trigram-frequency vector for text.
func (s *ShingleEmbedder) Embed(_ context.Context, text string, _ []byte) ([]float64, error) {
	vec := make([]float64, s.dims)
	normalized := strings.ToLower(strings.TrimSpace(text))
	if len(normalized) == 0 {
		return vec, nil
	}

	runes := []rune(normalized)
	if len(runes) < 3 {
		bucket := bucketFor(normalized, s.dims)
		vec[bucket]++
		return vec, nil
	}

	for i := 0; i+3 <= len(runes); i++ {
		shingle := string(runes[i : i+3])
		bucket := bucketFor(shingle, s.dims)
		vec[bucket]++
	}
	return vec, nil
}

func bucketFor(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

var _ Embedder = (*ShingleEmbedder)(nil)
