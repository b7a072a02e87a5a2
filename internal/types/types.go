// Package types provides shared type definitions used across Caleon packages.
// This package exists to break import cycles between the vault, the consent
// authority, and the pipeline stages. Types here are foundational data
// structures with no complex dependencies.
package types

import (
	"time"
)

// =============================================================================
// RESONANCE - Subjective labeling of memory
// =============================================================================

// Tone is the emotional register of a resonance tag.
type Tone string

const (
	ToneJoy      Tone = "joy"
	ToneGrief    Tone = "grief"
	ToneFracture Tone = "fracture"
	ToneWonder   Tone = "wonder"
	ToneNeutral  Tone = "neutral"
)

// ValidTone reports whether t is one of the recognized tones.
func ValidTone(t Tone) bool {
	switch t {
	case ToneJoy, ToneGrief, ToneFracture, ToneWonder, ToneNeutral:
		return true
	}
	return false
}

// ResonanceTag describes how the system "feels" about a shard.
// Immutable once attached; re-tagging replaces the whole record under consent.
type ResonanceTag struct {
	Tone        Tone      `json:"tone"`
	Symbol      string    `json:"symbol"`
	MoralCharge float64   `json:"moral_charge"` // [-1.0, +1.0]
	Intensity   float64   `json:"intensity"`    // [0.0, 1.0]
	CreatedAt   time.Time `json:"created_at"`
}

// =============================================================================
// MEMORY SHARD - Content-addressed memory cell
// =============================================================================

// Payload is the opaque free-form body of a memory shard. Values are the
// JSON-like sum type {nil | bool | float64 | string | []any | map[string]any}.
type Payload map[string]any

// MemoryShard is a content-addressed memory cell owned by the vault.
// HashSignature is always the digest of the canonical serialization of Payload.
type MemoryShard struct {
	MemoryID      string       `json:"memory_id"`
	Payload       Payload      `json:"payload"`
	Resonance     ResonanceTag `json:"resonance"`
	CreatedAt     time.Time    `json:"created_at"`
	LastModified  time.Time    `json:"last_modified"`
	HashSignature string       `json:"hash_signature"`
}

// =============================================================================
// AUDIT - Append-only decision trail
// =============================================================================

// AuditAction identifies what kind of decision an audit entry records.
type AuditAction string

const (
	ActionStore       AuditAction = "store"
	ActionModify      AuditAction = "modify"
	ActionDelete      AuditAction = "delete"
	ActionConsent     AuditAction = "caleon_consent"
	ActionEthicalTest AuditAction = "ethical_test"
	ActionEscalation  AuditAction = "escalation"
	ActionPipeline    AuditAction = "pipeline"
)

// AuditVerdict is the resolved outcome recorded with an audit entry.
type AuditVerdict string

const (
	VerdictApproved  AuditVerdict = "approved"
	VerdictDenied    AuditVerdict = "denied"
	VerdictTimeout   AuditVerdict = "timeout"
	VerdictPending   AuditVerdict = "pending"
	VerdictCancelled AuditVerdict = "cancelled"
)

// AuditEntry is one append-only record of a vault or consent decision,
// together with the advisory drift metrics that accompanied it.
type AuditEntry struct {
	Timestamp           time.Time     `json:"ts"`
	Action              AuditAction   `json:"action"`
	MemoryID            string        `json:"memory_id"`
	Verdict             AuditVerdict  `json:"verdict"`
	Mode                string        `json:"mode,omitempty"`
	Resonance           *ResonanceTag `json:"resonance,omitempty"`
	EthicalDrift        float64       `json:"ethical_drift"`
	AdjustedMoralCharge float64       `json:"adjusted_moral_charge"`
}

// =============================================================================
// PIPELINE STAGE RECORDS
// =============================================================================

// ResonanceRecord is the resonator's rapid pattern extraction of a stimulus.
type ResonanceRecord struct {
	ID             string    `json:"id"`
	ResonanceScore float64   `json:"resonance_score"` // [0,1]
	Patterns       []string  `json:"patterns"`
	ProducedAt     time.Time `json:"produced_at"`
}

// Verdict is the anterior reasoner's initial judgment.
type Verdict struct {
	ID         string    `json:"id"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"` // [0,1]
	ProducedAt time.Time `json:"produced_at"`
	UpstreamID string    `json:"upstream_id,omitempty"`
}

// ReflectionDelta is the EchoStack's weighted reflection of a verdict.
type ReflectionDelta struct {
	VerdictID       string   `json:"verdict_id"`
	ReflectionDelta float64  `json:"reflection_delta"`
	DriftMagnitude  float64  `json:"drift_magnitude"` // >= 0
	ComponentsCount int      `json:"components_count"`
	SeedsApplied    []string `json:"seeds_applied"`
}

// Consensus is EchoRipple's classification of the stabilized delta.
type Consensus string

const (
	ConsensusPositive Consensus = "positive_resonance"
	ConsensusNegative Consensus = "negative_resonance"
	ConsensusNeutral  Consensus = "neutral_stability"
)

// StabilizedReflection is the EchoRipple output after N time-spaced cycles.
type StabilizedReflection struct {
	Delta           float64   `json:"delta"`
	Magnitude       float64   `json:"magnitude"`
	StabilityScore  float64   `json:"stability_score"` // [0,1]
	CyclesCompleted int       `json:"cycles_completed"`
	Consensus       Consensus `json:"consensus"`
	Timestamp       time.Time `json:"timestamp"`
}

// Stability classifies a posterior outcome.
type Stability string

const (
	StabilityValidated Stability = "validated"
	StabilityEscalated Stability = "escalated"
)

// RethinkCycle is one posterior rethinking iteration.
type RethinkCycle struct {
	Cycle              int      `json:"cycle"`
	SeedsUsed          []string `json:"seeds_used"`
	DriftScore         float64  `json:"drift_score"`         // [0,1]
	ConfidenceModifier float64  `json:"confidence_modifier"` // [-0.3,+0.3]
}

// HarmonizerVerdict is the advisory output of a harmonizer consultation.
type HarmonizerVerdict struct {
	Approved      bool    `json:"approved"`
	Drift         float64 `json:"drift"`
	AdjustedMoral float64 `json:"adjusted_moral"`
}

// PosteriorOutcome summarizes the recursive rethinking phase.
type PosteriorOutcome struct {
	SequenceID         string             `json:"sequence_id"`
	CyclesExecuted     int                `json:"cycles_executed"`
	CycleResults       []RethinkCycle     `json:"cycle_results"`
	FinalStability     Stability          `json:"final_stability"`
	EscalationRequired bool               `json:"escalation_required"`
	EscalationReason   string             `json:"escalation_reason,omitempty"`
	HarmonizerVerdict  *HarmonizerVerdict `json:"harmonizer_verdict,omitempty"`
}

// ReflectionRecord aggregates every stage's sub-record for a single request.
// It is what the orchestrator hands to the consent authority and what the
// terminal audit entry summarizes.
type ReflectionRecord struct {
	RequestID string                `json:"request_id"`
	Stimulus  string                `json:"stimulus"`
	Resonance *ResonanceRecord      `json:"resonance,omitempty"`
	Verdict   *Verdict              `json:"verdict,omitempty"`
	Echo      *ReflectionDelta      `json:"echo,omitempty"`
	Ripple    *StabilizedReflection `json:"ripple,omitempty"`
	Posterior *PosteriorOutcome     `json:"posterior,omitempty"`

	// Advisory harmonizer metrics forwarded to consent and the audit log.
	Drift         float64 `json:"drift"`
	AdjustedMoral float64 `json:"adjusted_moral"`
}

// =============================================================================
// LOGIC SEEDS - Read-only reflection configuration
// =============================================================================

// SeedFamily is the reasoning tradition a logic seed belongs to. The family
// selects the EchoStack component transform.
type SeedFamily string

const (
	FamilyNonmonotonic     SeedFamily = "nonmonotonic"
	FamilyEmpiricist       SeedFamily = "empiricist"
	FamilySkeptical        SeedFamily = "skeptical"
	FamilyAntifragile      SeedFamily = "antifragile"
	FamilyHeuristic        SeedFamily = "heuristic"
	FamilyParsimony        SeedFamily = "parsimony"
	FamilyEthicalGeometric SeedFamily = "ethical_geometric"
)

// ValidSeedFamily reports whether f is a recognized family tag.
func ValidSeedFamily(f SeedFamily) bool {
	switch f {
	case FamilyNonmonotonic, FamilyEmpiricist, FamilySkeptical,
		FamilyAntifragile, FamilyHeuristic, FamilyParsimony, FamilyEthicalGeometric:
		return true
	}
	return false
}

// LogicSeed is one weighted entry in the reflection seed bank.
// Loaded once at startup and treated as immutable.
type LogicSeed struct {
	ID     string     `json:"id" yaml:"id"`
	Family SeedFamily `json:"family" yaml:"family"`
	Weight float64    `json:"weight" yaml:"weight"` // (0, +inf)
}

// =============================================================================
// REQUEST RESULT - The exposed submit() outcome
// =============================================================================

// ResultKind discriminates the three user-visible request outcomes.
type ResultKind string

const (
	ResultArticulated ResultKind = "articulated"
	ResultDenied      ResultKind = "denied"
	ResultFailed      ResultKind = "failed"
)

// Result is the outcome of one pipeline request.
type Result struct {
	Kind       ResultKind `json:"kind"`
	RequestID  string     `json:"request_id"`
	Text       string     `json:"text,omitempty"`       // articulated only
	Confidence float64    `json:"confidence,omitempty"` // articulated only
	Consensus  Consensus  `json:"consensus,omitempty"`  // articulated only
	Reason     string     `json:"reason,omitempty"`     // denied only
	ErrorKind  string     `json:"error_kind,omitempty"` // failed only
	Stage      string     `json:"stage,omitempty"`      // failed only
}
