// Package gibberish implements the Gibberish Classifier: a pure function
// from text to {ok} or {gibberish, reason}. Three stages run in order —
// rule-based, statistical, and an optional ML classifier — and the first
// positive signal rejects the text. The ML stage fails open: its absence,
// or any error it returns, is treated as "not gibberish" so a missing or
// misbehaving external classifier never blocks otherwise-valid content.
package gibberish

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
)

// Result is the classifier's verdict.
type Result struct {
	OK       bool
	Gibberish bool
	Reason   string
}

// MLClassifier is the external binary classifier collaborator, treated
// as a black box; this package only needs its confidence on the
// "gibberish" label.
type MLClassifier interface {
	// Classify returns the model's confidence, in [0,1], that text is
	// gibberish. An error means the classifier is unavailable.
	Classify(ctx context.Context, text string) (confidence float64, err error)
}

// NoopClassifier is the default MLClassifier: it always reports zero
// confidence, so the ML stage never rejects anything until a real
// classifier is wired in. Absence of a classifier must be harmless.
type NoopClassifier struct{}

func (NoopClassifier) Classify(_ context.Context, _ string) (float64, error) {
	return 0, nil
}

// Classifier runs the three-stage pipeline.
type Classifier struct {
	cfg *config.Config
	ml  MLClassifier
}

// New creates a Classifier. Pass NoopClassifier{} for ml when no external
// model is configured.
func New(cfg *config.Config, ml MLClassifier) *Classifier {
	if ml == nil {
		ml = NoopClassifier{}
	}
	return &Classifier{cfg: cfg, ml: ml}
}

var keyboardRows = []string{
	"qwertyuiop", "asdfghjkl", "zxcvbnm",
	"poiuytrewq", "lkjhgfdsa", "mnbvcxz",
}

// Classify applies the rule, statistical, and ML stages in order.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	if r, gib := c.ruleStage(text); gib {
		return r
	}
	if r, gib := c.statisticalStage(text); gib {
		return r
	}
	if r, gib := c.mlStage(ctx, text); gib {
		return r
	}
	return Result{OK: true}
}

func (c *Classifier) ruleStage(text string) (Result, bool) {
	lower := strings.ToLower(text)

	if ratio := consonantRunRatio(lower); ratio >= c.cfg.ConsonantRunThreshold {
		return Result{Gibberish: true, Reason: "long consonant run"}, true
	}

	for _, row := range keyboardRows {
		if containsSubstringRun(lower, row, 5) {
			return Result{Gibberish: true, Reason: "keyboard-row pattern"}, true
		}
	}

	if hasAllSameCharacterRun(lower, 5) {
		return Result{Gibberish: true, Reason: "repeated-character run"}, true
	}

	letters := 0
	vowels := 0
	for _, r := range lower {
		if unicode.IsLetter(r) {
			letters++
			if isVowel(r) {
				vowels++
			}
		}
	}
	if letters > 8 && float64(vowels)/float64(letters) < 0.1 {
		return Result{Gibberish: true, Reason: "implausible vowel ratio"}, true
	}

	return Result{}, false
}

func (c *Classifier) statisticalStage(text string) (Result, bool) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Result{}, false
	}

	totalLen := 0
	noVowelTokens := 0
	for _, tok := range tokens {
		totalLen += len([]rune(tok))
		if !hasVowel(tok) && len([]rune(tok)) > 2 {
			noVowelTokens++
		}
	}
	meanLen := float64(totalLen) / float64(len(tokens))
	if meanLen >= c.cfg.MeanTokenLengthThreshold {
		return Result{Gibberish: true, Reason: "implausible mean token length"}, true
	}

	if float64(noVowelTokens)/float64(len(tokens)) > 0.70 {
		return Result{Gibberish: true, Reason: "majority of tokens lack vowels"}, true
	}

	if ent := charEntropy(text); ent < 1.0 || ent > 4.8 {
		return Result{Gibberish: true, Reason: "implausible character entropy"}, true
	}

	return Result{}, false
}

func (c *Classifier) mlStage(ctx context.Context, text string) (Result, bool) {
	confidence, err := c.ml.Classify(ctx, text)
	if err != nil {
		// Fail open: classifier unavailability never blocks content.
		return Result{}, false
	}
	if confidence >= c.cfg.MLClassifierConfidence {
		return Result{Gibberish: true, Reason: "ml classifier flagged content"}, true
	}
	return Result{}, false
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

func hasVowel(s string) bool {
	for _, r := range s {
		if isVowel(r) {
			return true
		}
	}
	return false
}

// consonantRunRatio returns the length of the longest run of consecutive
// consonant letters divided by total letter count.
func consonantRunRatio(text string) float64 {
	letters := 0
	longestRun := 0
	currentRun := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			currentRun = 0
			continue
		}
		letters++
		if isVowel(r) {
			currentRun = 0
			continue
		}
		currentRun++
		if currentRun > longestRun {
			longestRun = currentRun
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(longestRun) / float64(letters)
}

// containsSubstringRun reports whether text contains any contiguous run of
// at least minLen characters that appears, in order, within pattern.
func containsSubstringRun(text, pattern string, minLen int) bool {
	if len(pattern) < minLen {
		return false
	}
	for start := 0; start+minLen <= len(pattern); start++ {
		for end := start + minLen; end <= len(pattern); end++ {
			if strings.Contains(text, pattern[start:end]) {
				return true
			}
		}
	}
	return false
}

func hasAllSameCharacterRun(text string, minLen int) bool {
	runes := []rune(text)
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] && unicode.IsLetter(runes[i]) {
			run++
			if run >= minLen {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// charEntropy computes Shannon entropy (bits) over the character
// distribution of text.
func charEntropy(text string) float64 {
	counts := make(map[rune]int)
	total := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		counts[r]++
		total++
	}
	if total == 0 {
		return 0
	}
	var entropy float64
	for _, n := range counts {
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
