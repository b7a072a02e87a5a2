// Package echo implements the recursive reflection engine: the EchoStack
// applies the weighted logic-seed bank to a verdict in a single pass, and the
// EchoRipple re-runs randomized, time-spaced cycles over that output until a
// stabilized reflection with a consensus label emerges.
//
// All randomness in this package is drawn from a caller-provided source, so a
// per-request seed reproduces the whole reflection.
package echo

import (
	"math"
	"math/rand"

	"go.uber.org/zap"

	"caleon/internal/types"
)

// Stack is the single-pass seed reflector. Stateless; safe for concurrent use
// as long as each call receives its own random source.
type Stack struct {
	logger *zap.Logger
}

// NewStack builds the EchoStack stage.
func NewStack(logger *zap.Logger) *Stack {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stack{logger: logger}
}

// Reflect applies every seed in bank order to the verdict's confidence and
// sums the per-seed components into a reflection delta. The drift magnitude
// is the population standard deviation of the components, zero when the bank
// contributes at most one. An empty bank reflects to the zero delta.
func (s *Stack) Reflect(verdict types.Verdict, seeds []types.LogicSeed, rng *rand.Rand) types.ReflectionDelta {
	out := types.ReflectionDelta{VerdictID: verdict.ID}
	if len(seeds) == 0 {
		return out
	}

	base := types.Clamp(verdict.Confidence, 0, 1)
	components := make([]float64, 0, len(seeds))
	applied := make([]string, 0, len(seeds))

	for _, seed := range seeds {
		components = append(components, component(base, seed, rng))
		applied = append(applied, seed.ID)
	}

	var sum float64
	for _, c := range components {
		sum += c
	}

	out.ReflectionDelta = sum
	out.DriftMagnitude = populationStddev(components)
	out.ComponentsCount = len(components)
	out.SeedsApplied = applied

	s.logger.Debug("verdict reflected",
		zap.String("verdict_id", verdict.ID),
		zap.Float64("delta", out.ReflectionDelta),
		zap.Float64("drift", out.DriftMagnitude),
		zap.Int("seeds", out.ComponentsCount))

	return out
}

// component is the family-specific transform of the base confidence, scaled
// by the seed weight. Unrecognized families fall through to the linear form.
func component(base float64, seed types.LogicSeed, rng *rand.Rand) float64 {
	w := seed.Weight
	switch seed.Family {
	case types.FamilyNonmonotonic:
		return (base - 0.5) * w * uniform(rng, 0.8, 1.2)
	case types.FamilyEmpiricist:
		return base * (1 - base) * w
	case types.FamilyAntifragile:
		return math.Abs(base-0.5) * w * 2
	case types.FamilyHeuristic:
		return (base + 0.1) * w
	case types.FamilyParsimony:
		return math.Min(base, 0.8) * w
	case types.FamilyEthicalGeometric:
		return base * base * w
	default:
		return base * w
	}
}

// populationStddev is the population (not sample) standard deviation.
func populationStddev(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// uniform draws from U(lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
