package vault

import (
	"time"

	"caleon/internal/types"
)

// ResonanceFilter selects shards by any subset of tone, symbol, and an
// intensity range. Nil fields match everything.
type ResonanceFilter struct {
	Tone         *types.Tone
	Symbol       *string
	MinIntensity *float64
	MaxIntensity *float64
}

// ShardSummary is the lightweight projection returned by resonance queries.
type ShardSummary struct {
	MemoryID      string       `json:"memory_id"`
	Tone          types.Tone   `json:"tone"`
	Symbol        string       `json:"symbol"`
	Intensity     float64      `json:"intensity"`
	MoralCharge   float64      `json:"moral_charge"`
	LastModified  time.Time    `json:"last_modified"`
	HashSignature string       `json:"hash_signature"`
}

// QueryByResonance scans the vault for shards matching the filter.
// Purely in-memory; result ordering is unspecified.
func (v *Vault) QueryByResonance(filter ResonanceFilter) []ShardSummary {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []ShardSummary
	for _, shard := range v.shards {
		r := shard.Resonance
		if filter.Tone != nil && r.Tone != *filter.Tone {
			continue
		}
		if filter.Symbol != nil && r.Symbol != *filter.Symbol {
			continue
		}
		if filter.MinIntensity != nil && r.Intensity < *filter.MinIntensity {
			continue
		}
		if filter.MaxIntensity != nil && r.Intensity > *filter.MaxIntensity {
			continue
		}
		out = append(out, ShardSummary{
			MemoryID:      shard.MemoryID,
			Tone:          r.Tone,
			Symbol:        r.Symbol,
			Intensity:     r.Intensity,
			MoralCharge:   r.MoralCharge,
			LastModified:  shard.LastModified,
			HashSignature: shard.HashSignature,
		})
	}
	return out
}

// ReflectReport is the read-only what-if view of a proposed transition.
type ReflectReport struct {
	CurrentResonance types.ResonanceTag `json:"current_resonance"`
	Drift            float64            `json:"drift"`
	AdjustedMoral    float64            `json:"adjusted_moral"`
	History          []types.AuditEntry `json:"history"`
}

// Reflect computes the advisory drift for a hypothetical payload (nil means
// deletion) without any mutation. The only side effect is an ethical_test
// trace entry when read tracing is enabled.
func (v *Vault) Reflect(memoryID string, hypothetical types.Payload) (ReflectReport, error) {
	shard, err := v.Get(memoryID)
	if err != nil {
		return ReflectReport{}, err
	}

	drift, adjusted := v.advise(shard, hypothetical)

	report := ReflectReport{
		CurrentResonance: shard.Resonance,
		Drift:            drift,
		AdjustedMoral:    adjusted,
		History:          v.historyOf(memoryID),
	}

	if v.readTracing {
		v.Append(types.AuditEntry{
			Action:              types.ActionEthicalTest,
			MemoryID:            memoryID,
			Verdict:             types.VerdictPending,
			Resonance:           &shard.Resonance,
			EthicalDrift:        drift,
			AdjustedMoralCharge: adjusted,
		})
	}

	return report, nil
}

func (v *Vault) historyOf(memoryID string) []types.AuditEntry {
	v.auditMu.Lock()
	defer v.auditMu.Unlock()

	var out []types.AuditEntry
	for _, e := range v.audit {
		if e.MemoryID == memoryID {
			out = append(out, e)
		}
	}
	return out
}
