// Package harmonizer implements the ethical drift harmonizer: a pure,
// deterministic scorer of proposed memory transitions. It advises and never
// decides; its thresholds are surfaced for telemetry only.
package harmonizer

import (
	"go.uber.org/zap"

	"caleon/internal/config"
	"caleon/internal/types"
)

// Harmonizer computes advisory drift scores and adjusted moral charges.
// Stateless apart from configuration and a logger; safe for concurrent use.
type Harmonizer struct {
	driftThreshold float64
	moralThreshold float64
	logger         *zap.Logger
}

// New builds a harmonizer from its advisory threshold configuration.
func New(cfg config.HarmonizerConfig, logger *zap.Logger) *Harmonizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harmonizer{
		driftThreshold: cfg.DriftThreshold,
		moralThreshold: cfg.MoralThreshold,
		logger:         logger,
	}
}

// Thresholds returns the advisory (non-gating) thresholds for logging.
func (h *Harmonizer) Thresholds() (drift, moral float64) {
	return h.driftThreshold, h.moralThreshold
}

// ComputeDrift scores a proposed payload transition in [-1, +1]. A nil
// newPayload means deletion. The baseline metric is a symbolic-mass proxy:
// growth in canonical serialized length maps to positive drift, adjusted by
// the delta of the optional "moral" key when both sides carry one. Malformed
// payloads degrade to zero drift; this function never fails.
func (h *Harmonizer) ComputeDrift(oldPayload, newPayload types.Payload) float64 {
	oldSer, err := types.CanonicalJSON(oldPayload)
	if err != nil {
		return 0
	}

	if newPayload == nil {
		// Deletion: the drift is the negation of whatever moral weight the
		// shard carried.
		moral, _ := types.MoralOf(oldPayload)
		return types.Clamp(-moral, -1, 1)
	}

	newSer, err := types.CanonicalJSON(newPayload)
	if err != nil {
		return 0
	}

	oldLen := len(oldSer)
	if oldLen < 1 {
		oldLen = 1
	}
	drift := float64(len(newSer)-len(oldSer)) / float64(oldLen)

	oldMoral, oldOK := types.MoralOf(oldPayload)
	newMoral, newOK := types.MoralOf(newPayload)
	if oldOK && newOK {
		drift += newMoral - oldMoral
	}

	return types.Clamp(drift, -1, 1)
}

// Reflect computes the advisory pair for a proposed transition on a shard:
// the drift score and the shard's moral charge offset by drift scaled by
// resonance intensity.
func (h *Harmonizer) Reflect(shard types.MemoryShard, newPayload types.Payload) (drift, adjustedMoral float64) {
	drift = h.ComputeDrift(shard.Payload, newPayload)
	adjustedMoral = types.Clamp(shard.Resonance.MoralCharge+drift*shard.Resonance.Intensity, -1, 1)
	return drift, adjustedMoral
}

// Approve evaluates a transition and returns the advisory verdict. The
// boolean is always true in the current contract; it is reserved for future
// policy and callers must treat it as advisory.
func (h *Harmonizer) Approve(shard types.MemoryShard, newPayload types.Payload, context string) (bool, float64, float64) {
	drift, adjusted := h.Reflect(shard, newPayload)

	if abs(drift) > h.driftThreshold || abs(adjusted) > h.moralThreshold {
		h.logger.Info("advisory threshold crossed",
			zap.String("memory_id", shard.MemoryID),
			zap.String("context", context),
			zap.Float64("drift", drift),
			zap.Float64("adjusted_moral", adjusted))
	}

	return true, drift, adjusted
}

// Advise summarizes a completed pipeline reflection into the advisory pair
// forwarded to the consent authority. The echo spread supplies the drift and
// the stabilized delta, damped by how converged the cycles were, supplies the
// adjusted moral charge.
func (h *Harmonizer) Advise(rec types.ReflectionRecord) (drift, adjustedMoral float64) {
	if rec.Echo != nil {
		drift = types.Clamp(rec.Echo.DriftMagnitude, -1, 1)
	}
	if rec.Ripple != nil {
		adjustedMoral = types.Clamp(rec.Ripple.Delta*rec.Ripple.StabilityScore, -1, 1)
	}

	if abs(drift) > h.driftThreshold || abs(adjustedMoral) > h.moralThreshold {
		h.logger.Info("advisory threshold crossed",
			zap.String("request_id", rec.RequestID),
			zap.Float64("drift", drift),
			zap.Float64("adjusted_moral", adjustedMoral))
	}
	return drift, adjustedMoral
}

// ReviewEscalation produces the advisory verdict recorded alongside an
// escalated posterior outcome. Purely informational; escalation never blocks.
func (h *Harmonizer) ReviewEscalation(outcome types.PosteriorOutcome) types.HarmonizerVerdict {
	var meanDrift float64
	for _, c := range outcome.CycleResults {
		meanDrift += c.DriftScore
	}
	if n := len(outcome.CycleResults); n > 0 {
		meanDrift /= float64(n)
	}

	h.logger.Warn("posterior escalation reviewed",
		zap.String("sequence_id", outcome.SequenceID),
		zap.String("reason", outcome.EscalationReason),
		zap.Float64("mean_drift", meanDrift))

	return types.HarmonizerVerdict{
		Approved:      true,
		Drift:         types.Clamp(meanDrift, -1, 1),
		AdjustedMoral: 0,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
