// Package anterior implements the anterior reasoner: the first verdict over
// a resonance record. It may consult an external language-model adapter, but
// adapter failure never propagates - the reasoner degrades to a
// low-confidence diagnostic verdict instead.
package anterior

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caleon/internal/types"
)

// fallbackCeiling caps confidence whenever the adapter could not be used.
const fallbackCeiling = 0.5

// Adapter is the language-model capability the reasoner may consult.
type Adapter interface {
	Reason(ctx context.Context, resonance types.ResonanceRecord) (value string, confidence float64, err error)
}

// Reasoner produces the initial verdict for the pipeline.
type Reasoner struct {
	adapter Adapter // nil means offline heuristic only
	logger  *zap.Logger
}

// New builds a reasoner. adapter may be nil.
func New(adapter Adapter, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reasoner{adapter: adapter, logger: logger}
}

// Evaluate turns a resonance record into a verdict. This method has no error
// return on purpose: every failure path yields a usable low-confidence
// verdict so the pipeline always moves forward to the consent gate.
func (r *Reasoner) Evaluate(ctx context.Context, resonance types.ResonanceRecord) types.Verdict {
	verdict := types.Verdict{
		ID:         uuid.NewString(),
		ProducedAt: time.Now(),
		UpstreamID: resonance.ID,
	}

	if r.adapter != nil {
		value, confidence, err := r.adapter.Reason(ctx, resonance)
		if err == nil && strings.TrimSpace(value) != "" {
			verdict.Value = value
			verdict.Confidence = types.Clamp(confidence, 0, 1)
			return verdict
		}
		if err != nil {
			r.logger.Warn("anterior adapter failed, degrading",
				zap.String("resonance_id", resonance.ID),
				zap.Error(err))
			verdict.Value = fmt.Sprintf("diagnostic: adapter unavailable (%v)", err)
			verdict.Confidence = 0.3
			return verdict
		}
		// Empty adapter output is treated like a failure.
		verdict.Value = "diagnostic: adapter returned empty verdict"
		verdict.Confidence = 0.3
		return verdict
	}

	verdict.Value = heuristicValue(resonance)
	verdict.Confidence = types.Clamp(resonance.ResonanceScore, 0, fallbackCeiling)
	return verdict
}

// heuristicValue is the offline verdict: an acknowledgement built from the
// extracted patterns.
func heuristicValue(resonance types.ResonanceRecord) string {
	if len(resonance.Patterns) == 0 {
		return "acknowledged: stimulus carries no salient pattern"
	}
	n := len(resonance.Patterns)
	if n > 3 {
		n = 3
	}
	return "reflecting on " + strings.Join(resonance.Patterns[:n], ", ")
}
