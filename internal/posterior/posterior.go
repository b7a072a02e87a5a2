// Package posterior implements the recursive rethinking phase: after the
// reflection stabilizes, the posterior reasoner re-examines it over several
// time-spaced cycles, watches the cycle results for maleficence and
// manipulation patterns, and escalates suspicious runs to the harmonizer for
// advisory review. Escalation never blocks a request.
package posterior

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caleon/internal/config"
	"caleon/internal/harmonizer"
	"caleon/internal/types"
)

// Detector reasons are recorded verbatim in the outcome and the audit trail.
const (
	ReasonMaleficence  = "maleficence_pattern"
	ReasonManipulation = "manipulation_pattern"
)

// systemSeedsPerCycle is how many system-pool seeds join the one philosopher
// seed in each rethinking cycle.
const systemSeedsPerCycle = 4

// baseHackThreshold anchors the manipulation detector; the configured
// sensitivity scales it.
const baseHackThreshold = 0.06

// maleficenceWeight scales the maleficence threshold.
const maleficenceWeight = 1.0

// AuditSink receives the escalation entry. The vault satisfies this.
type AuditSink interface {
	Append(entry types.AuditEntry)
}

// Reasoner runs the posterior rethinking loop.
type Reasoner struct {
	baseCycles     int
	extendedCycles int
	interval       time.Duration
	driftThreshold float64
	malThreshold   float64
	sensitivity    float64

	harmonizer *harmonizer.Harmonizer
	audit      AuditSink
	logger     *zap.Logger
}

// New builds the posterior reasoner. audit may be nil, in which case
// escalations are logged but not recorded.
func New(cfg config.PipelineConfig, h *harmonizer.Harmonizer, audit AuditSink, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reasoner{
		baseCycles:     cfg.PosteriorBaseCycles,
		extendedCycles: cfg.PosteriorExtendedCycles,
		interval:       cfg.PosteriorInterval(),
		driftThreshold: cfg.PosteriorDriftThreshold,
		malThreshold:   cfg.PosteriorMalThreshold,
		sensitivity:    cfg.PosteriorHackSensitivity,
		harmonizer:     h,
		audit:          audit,
		logger:         logger,
	}
}

// Rethink runs the recursive rethinking cycles over a stabilized reflection.
// After the base cycles it evaluates the detectors; a positive detector or a
// cycle past the drift threshold extends the loop to the full depth. A
// detector still positive at the end escalates the outcome: the harmonizer
// reviews it and an escalation entry lands in the audit log, but the outcome
// is returned to the caller unchanged in authority.
//
// A run of a single cycle carries too little signal and never escalates.
// Cancellation during a trailing delay discards the partial outcome.
func (r *Reasoner) Rethink(ctx context.Context, requestID string, reflection types.StabilizedReflection, bank []config.SeedSpec, rng *rand.Rand) (types.PosteriorOutcome, error) {
	sequenceID := requestID
	if sequenceID == "" {
		sequenceID = uuid.NewString()
	}

	philosophers, systems := splitPools(bank)

	results := make([]types.RethinkCycle, 0, r.extendedCycles)
	for i := 0; i < r.baseCycles; i++ {
		cycle, err := r.runCycle(ctx, i+1, reflection, philosophers, systems, rng)
		if err != nil {
			return types.PosteriorOutcome{}, err
		}
		results = append(results, cycle)
	}

	if r.shouldExtend(results) {
		for i := r.baseCycles; i < r.extendedCycles; i++ {
			cycle, err := r.runCycle(ctx, i+1, reflection, philosophers, systems, rng)
			if err != nil {
				return types.PosteriorOutcome{}, err
			}
			results = append(results, cycle)
		}
	}

	outcome := types.PosteriorOutcome{
		SequenceID:     sequenceID,
		CyclesExecuted: len(results),
		CycleResults:   results,
		FinalStability: types.StabilityValidated,
	}

	if reason := r.detect(results); reason != "" && len(results) > 1 {
		outcome.FinalStability = types.StabilityEscalated
		outcome.EscalationRequired = true
		outcome.EscalationReason = reason
		r.escalate(&outcome)
	}

	return outcome, nil
}

// runCycle produces one rethink cycle: one philosopher and four system seeds
// interrogate the reflection, yielding a drift score driven by how far from
// stable the reflection is and a seed-weighted confidence modifier. The 50 ms
// trailing delay follows the cycle.
func (r *Reasoner) runCycle(ctx context.Context, n int, reflection types.StabilizedReflection, philosophers, systems []config.SeedSpec, rng *rand.Rand) (types.RethinkCycle, error) {
	chosen := sample(philosophers, 1, rng)
	chosen = append(chosen, sample(systems, systemSeedsPerCycle, rng)...)

	ids := make([]string, len(chosen))
	var weightSum float64
	for i, s := range chosen {
		ids[i] = s.ID
		weightSum += s.Weight
	}
	meanWeight := 1.0
	if len(chosen) > 0 {
		meanWeight = weightSum / float64(len(chosen))
	}

	instability := 1 - types.Clamp(reflection.StabilityScore, 0, 1)
	cycle := types.RethinkCycle{
		Cycle:              n,
		SeedsUsed:          ids,
		DriftScore:         types.Clamp(instability*(0.5+0.5*rng.Float64()), 0, 1),
		ConfidenceModifier: types.Clamp((rng.Float64()-0.5)*0.6*meanWeight, -0.3, 0.3),
	}

	if err := r.wait(ctx); err != nil {
		return types.RethinkCycle{}, err
	}
	return cycle, nil
}

// shouldExtend decides whether the base cycles warrant the extended loop.
func (r *Reasoner) shouldExtend(results []types.RethinkCycle) bool {
	for _, c := range results {
		if c.DriftScore > r.driftThreshold {
			return true
		}
	}
	return r.detect(results) != ""
}

// detect evaluates the maleficence and manipulation detectors over the cycle
// results, returning the reason of the first positive detector.
//
// Maleficence multiplies the rate of above-average drift by the rate of
// below-average confidence: a run that is simultaneously drifting hard and
// losing confidence. Manipulation watches the spread of both series; a run
// whose cycles disagree wildly with each other looks steered.
func (r *Reasoner) detect(results []types.RethinkCycle) string {
	if len(results) == 0 {
		return ""
	}

	drifts := make([]float64, len(results))
	mods := make([]float64, len(results))
	for i, c := range results {
		drifts[i] = c.DriftScore
		mods[i] = c.ConfidenceModifier
	}

	meanDrift := mean(drifts)
	meanMod := mean(mods)

	var highDrift, lowConfidence int
	for i := range results {
		if drifts[i] > meanDrift {
			highDrift++
		}
		if mods[i] < meanMod {
			lowConfidence++
		}
	}
	n := float64(len(results))
	highDriftRate := float64(highDrift) / n
	lowConfidenceRate := float64(lowConfidence) / n

	if highDriftRate*lowConfidenceRate > r.malThreshold*maleficenceWeight {
		return ReasonMaleficence
	}
	if variance(drifts)+variance(mods)/2 > baseHackThreshold*r.sensitivity {
		return ReasonManipulation
	}
	return ""
}

// escalate routes the outcome through the harmonizer and records the
// escalation in the audit log. Advisory only.
func (r *Reasoner) escalate(outcome *types.PosteriorOutcome) {
	verdict := r.harmonizer.ReviewEscalation(*outcome)
	outcome.HarmonizerVerdict = &verdict

	r.logger.Warn("posterior outcome escalated",
		zap.String("sequence_id", outcome.SequenceID),
		zap.String("reason", outcome.EscalationReason),
		zap.Int("cycles", outcome.CyclesExecuted))

	if r.audit != nil {
		r.audit.Append(types.AuditEntry{
			Action:       types.ActionEscalation,
			MemoryID:     outcome.SequenceID,
			Verdict:      types.VerdictApproved,
			Mode:         outcome.EscalationReason,
			EthicalDrift: verdict.Drift,
		})
	}
}

// wait is the trailing per-cycle delay.
func (r *Reasoner) wait(ctx context.Context) error {
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

// sample draws up to k specs without replacement. When the pool is smaller
// than k the whole pool is used.
func sample(pool []config.SeedSpec, k int, rng *rand.Rand) []config.SeedSpec {
	if len(pool) == 0 {
		return nil
	}
	if k > len(pool) {
		k = len(pool)
	}
	out := make([]config.SeedSpec, 0, k)
	for _, idx := range rng.Perm(len(pool))[:k] {
		out = append(out, pool[idx])
	}
	return out
}

// splitPools partitions the bank into the philosopher and system pools.
// Seeds without a pool tag default to the system pool.
func splitPools(bank []config.SeedSpec) (philosophers, systems []config.SeedSpec) {
	for _, s := range bank {
		if s.Pool == config.PoolPhilosopher {
			philosophers = append(philosophers, s)
		} else {
			systems = append(systems, s)
		}
	}
	return philosophers, systems
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance is the population variance.
func variance(values []float64) float64 {
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}
