package echo

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"caleon/internal/config"
	"caleon/internal/types"
)

// sampleSize is how many seeds each ripple cycle draws from the bank.
const sampleSize = 3

// paradoxCeiling is the adjustment magnitude past which the dampener halves.
const paradoxCeiling = 2.0

// Ripple runs the time-spaced stabilization loop over an EchoStack delta.
type Ripple struct {
	cycles   int
	interval time.Duration
	logger   *zap.Logger
}

// NewRipple builds the EchoRipple stage from the pipeline configuration.
func NewRipple(cfg config.PipelineConfig, logger *zap.Logger) *Ripple {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ripple{
		cycles:   cfg.RippleCycles,
		interval: cfg.RippleInterval(),
		logger:   logger,
	}
}

// Stabilize runs the configured number of cycles over the reflection delta,
// suspending for the inter-cycle interval between them. Each cycle samples up
// to three seeds without replacement and averages their weighted, jittered
// adjustments of the running delta; adjustments past the paradox ceiling are
// halved. Cancellation during a suspension discards the partial reflection.
//
// An empty seed bank still runs every cycle with an identity adjustment and
// reports neutral stability.
func (r *Ripple) Stabilize(ctx context.Context, delta types.ReflectionDelta, seeds []types.LogicSeed, rng *rand.Rand) (types.StabilizedReflection, error) {
	current := delta.ReflectionDelta
	outputs := make([]float64, 0, r.cycles)

	for cycle := 0; cycle < r.cycles; cycle++ {
		if cycle > 0 {
			if err := r.wait(ctx); err != nil {
				return types.StabilizedReflection{}, err
			}
		}
		current = r.runCycle(current, seeds, rng)
		outputs = append(outputs, current)
	}

	var final float64
	for _, out := range outputs {
		final += out
	}
	final /= float64(len(outputs))

	stability := types.Clamp(1-delta.DriftMagnitude/math.Max(math.Abs(final), 0.1), 0, 1)

	reflection := types.StabilizedReflection{
		Delta:           final,
		Magnitude:       math.Abs(final),
		StabilityScore:  stability,
		CyclesCompleted: len(outputs),
		Consensus:       consensusOf(final, len(seeds)),
		Timestamp:       time.Now(),
	}

	r.logger.Debug("reflection stabilized",
		zap.String("verdict_id", delta.VerdictID),
		zap.Float64("final_delta", final),
		zap.Float64("stability", stability),
		zap.String("consensus", string(reflection.Consensus)))

	return reflection, nil
}

// runCycle produces the next running delta: the mean adjustment of a random
// seed sample, or the delta unchanged when the bank is empty.
func (r *Ripple) runCycle(current float64, seeds []types.LogicSeed, rng *rand.Rand) float64 {
	if len(seeds) == 0 {
		return current
	}

	k := sampleSize
	if len(seeds) < k {
		k = len(seeds)
	}

	var sum float64
	for _, idx := range rng.Perm(len(seeds))[:k] {
		adjustment := current * seeds[idx].Weight * uniform(rng, 0.9, 1.1)
		if math.Abs(adjustment) > paradoxCeiling {
			adjustment /= 2
		}
		sum += adjustment
	}
	return sum / float64(k)
}

// wait suspends for the inter-cycle interval, aborting on cancellation.
func (r *Ripple) wait(ctx context.Context) error {
	if r.interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// consensusOf classifies the final delta. A bank that never adjusted anything
// carries no signal, so it always lands on neutral stability.
func consensusOf(final float64, bankSize int) types.Consensus {
	if bankSize == 0 {
		return types.ConsensusNeutral
	}
	switch {
	case final > 0.5:
		return types.ConsensusPositive
	case final < -0.5:
		return types.ConsensusNegative
	default:
		return types.ConsensusNeutral
	}
}
