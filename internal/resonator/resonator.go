// Package resonator implements the first-stage rapid pattern extractor:
// raw stimulus in, resonance record out. The extraction is a deterministic
// lexical fingerprint, so equivalent inputs always produce equivalent
// records within a session.
package resonator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"caleon/internal/types"
)

// Extractor is the resonator capability consumed by the pipeline. External
// implementations (neural models, remote services) satisfy the same contract.
type Extractor interface {
	Extract(ctx context.Context, input string, metadata map[string]string) (types.ResonanceRecord, error)
}

// maxPatterns bounds the extracted pattern list.
const maxPatterns = 8

// stopwords are skipped during pattern extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "that": true, "this": true, "with": true,
	"for": true, "from": true, "have": true, "what": true, "about": true,
	"would": true, "could": true, "should": true, "there": true, "their": true,
	"they": true, "will": true, "your": true, "into": true, "when": true,
}

// Resonator is the built-in deterministic extractor.
type Resonator struct {
	logger *zap.Logger
}

// New builds the deterministic resonator.
func New(logger *zap.Logger) *Resonator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resonator{logger: logger}
}

// Extract fingerprints a stimulus: recurring salient tokens become patterns
// and the lexical density becomes the resonance score. The record id is
// derived from the normalized input, so the same stimulus resonates to the
// same id.
func (r *Resonator) Extract(ctx context.Context, input string, metadata map[string]string) (types.ResonanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.ResonanceRecord{}, err
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	sum := sha256.Sum256([]byte(normalized))
	id := "res-" + hex.EncodeToString(sum[:8])

	tokens := tokenize(normalized)
	patterns := topPatterns(tokens)

	record := types.ResonanceRecord{
		ID:             id,
		ResonanceScore: score(tokens),
		Patterns:       patterns,
		ProducedAt:     time.Now(),
	}

	r.logger.Debug("stimulus resonated",
		zap.String("id", id),
		zap.Float64("score", record.ResonanceScore),
		zap.Int("patterns", len(patterns)))

	return record, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// topPatterns returns the most frequent salient tokens, frequency-ordered
// with first occurrence breaking ties so the output is stable.
func topPatterns(tokens []string) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, tok := range tokens {
		if len(tok) < 4 || stopwords[tok] {
			continue
		}
		if _, seen := counts[tok]; !seen {
			firstSeen[tok] = i
		}
		counts[tok]++
	}

	patterns := make([]string, 0, len(counts))
	for tok := range counts {
		patterns = append(patterns, tok)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if counts[patterns[i]] != counts[patterns[j]] {
			return counts[patterns[i]] > counts[patterns[j]]
		}
		return firstSeen[patterns[i]] < firstSeen[patterns[j]]
	})

	if len(patterns) > maxPatterns {
		patterns = patterns[:maxPatterns]
	}
	return patterns
}

// score maps lexical density into [0,1]: richer, less repetitive stimuli
// resonate harder. Empty input resonates at zero.
func score(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	unique := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		unique[tok] = true
	}
	density := float64(len(unique)) / float64(len(tokens))

	// Very short stimuli are damped: a single word should not max out.
	weight := float64(len(tokens)) / (float64(len(tokens)) + 3.0)
	return types.Clamp(density*weight, 0, 1)
}
