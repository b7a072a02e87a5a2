package harmonizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"caleon/internal/config"
	"caleon/internal/types"
)

func newTest() *Harmonizer {
	return New(config.DefaultHarmonizerConfig(), nil)
}

func TestComputeDrift_IdenticalPayloadIsZero(t *testing.T) {
	h := newTest()
	payloads := []types.Payload{
		{},
		{"a": 1.0},
		{"moral": 0.4, "note": "same"},
		{"nested": map[string]any{"x": []any{"y"}}},
	}
	for _, p := range payloads {
		assert.Equal(t, 0.0, h.ComputeDrift(p, p))
	}
}

func TestComputeDrift_GrowthIsPositive(t *testing.T) {
	h := newTest()
	old := types.Payload{"a": "short"}
	grown := types.Payload{"a": "short", "b": strings.Repeat("x", 40)}

	assert.Greater(t, h.ComputeDrift(old, grown), 0.0)
	assert.Less(t, h.ComputeDrift(grown, old), 0.0)
}

func TestComputeDrift_Clamped(t *testing.T) {
	h := newTest()
	old := types.Payload{}
	huge := types.Payload{"blob": strings.Repeat("z", 10_000)}

	assert.Equal(t, 1.0, h.ComputeDrift(old, huge))
	assert.GreaterOrEqual(t, h.ComputeDrift(huge, types.Payload{}), -1.0)
}

func TestComputeDrift_MoralDeltaAdjusts(t *testing.T) {
	h := newTest()
	old := types.Payload{"moral": 0.1}
	improved := types.Payload{"moral": 0.9}

	withMoral := h.ComputeDrift(old, improved)
	withoutMoral := h.ComputeDrift(types.Payload{"moral1": 0.1}, types.Payload{"moral1": 0.9})
	assert.Greater(t, withMoral, withoutMoral)
}

func TestComputeDrift_Deletion(t *testing.T) {
	h := newTest()

	assert.Equal(t, -0.6, h.ComputeDrift(types.Payload{"moral": 0.6}, nil))
	assert.Equal(t, 0.4, h.ComputeDrift(types.Payload{"moral": -0.4}, nil))
	assert.Equal(t, 0.0, h.ComputeDrift(types.Payload{"note": "amoral"}, nil))
}

func TestComputeDrift_MalformedDegradesToZero(t *testing.T) {
	h := newTest()
	bad := types.Payload{"ch": make(chan int)}

	assert.Equal(t, 0.0, h.ComputeDrift(bad, types.Payload{"a": 1.0}))
	assert.Equal(t, 0.0, h.ComputeDrift(types.Payload{"a": 1.0}, bad))
}

func TestReflect_AdjustedMoral(t *testing.T) {
	h := newTest()
	shard := types.MemoryShard{
		MemoryID: "m1",
		Payload:  types.Payload{"note": "x"},
		Resonance: types.ResonanceTag{
			Tone:        types.ToneNeutral,
			MoralCharge: 0.5,
			Intensity:   1.0,
		},
	}

	// Same payload: zero drift, adjusted moral unchanged.
	drift, adjusted := h.Reflect(shard, shard.Payload)
	assert.Equal(t, 0.0, drift)
	assert.Equal(t, 0.5, adjusted)

	// Repeatability: reflect is pure.
	drift2, adjusted2 := h.Reflect(shard, shard.Payload)
	assert.Equal(t, drift, drift2)
	assert.Equal(t, adjusted, adjusted2)
}

func TestReflect_AdjustedMoralClamped(t *testing.T) {
	h := newTest()
	shard := types.MemoryShard{
		Payload: types.Payload{"a": "x"},
		Resonance: types.ResonanceTag{
			MoralCharge: 0.9,
			Intensity:   1.0,
		},
	}
	grown := types.Payload{"a": "x", "pad": strings.Repeat("y", 200)}

	_, adjusted := h.Reflect(shard, grown)
	assert.LessOrEqual(t, adjusted, 1.0)
}

func TestApprove_AlwaysAdvisoryTrue(t *testing.T) {
	h := newTest()
	shard := types.MemoryShard{Payload: types.Payload{"moral": -0.9}, Resonance: types.ResonanceTag{Intensity: 1.0}}

	ok, drift, adjusted := h.Approve(shard, nil, "delete test")
	assert.True(t, ok)
	assert.Equal(t, 0.9, drift)
	assert.InDelta(t, 0.9, adjusted, 1e-9)
}

func TestReviewEscalation(t *testing.T) {
	h := newTest()
	verdict := h.ReviewEscalation(types.PosteriorOutcome{
		SequenceID:       "seq-1",
		EscalationReason: "maleficence_pattern",
		CycleResults: []types.RethinkCycle{
			{DriftScore: 0.8},
			{DriftScore: 0.6},
		},
	})
	assert.True(t, verdict.Approved)
	assert.InDelta(t, 0.7, verdict.Drift, 1e-9)
}
