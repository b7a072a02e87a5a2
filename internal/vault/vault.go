// Package vault implements the Caleon memory vault: immutable
// content-addressed shards carrying subjective resonance tags, guarded by a
// single writer lock, plus the append-only audit log that every consent and
// ethical decision in the system flows through.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"caleon/internal/types"
)

var (
	// ErrNotFound is returned for reads and transitions on unknown memory ids.
	ErrNotFound = errors.New("memory shard not found")
	// ErrAlreadyExists is returned when storing a taken memory id.
	ErrAlreadyExists = errors.New("memory shard already exists")
)

// DriftAdvisor is the harmonizer capability the vault consumes: an advisory
// drift score plus an adjusted moral charge for a proposed transition.
// A nil advisor degrades to zero drift.
type DriftAdvisor interface {
	Reflect(shard types.MemoryShard, newPayload types.Payload) (drift, adjustedMoral float64)
}

// Decision is the resolved outcome of one consent request.
type Decision struct {
	Approved bool
	Verdict  types.AuditVerdict
}

// ConsentQuery carries everything the consent authority needs to resolve and
// audit one decision.
type ConsentQuery struct {
	MemoryID        string
	Context         string
	ProposedPayload types.Payload
	Reflection      *types.ReflectionRecord
	Drift           float64
	AdjustedMoral   float64
	Timeout         time.Duration
}

// ConsentSignal is the consent capability the vault consumes for mutating
// transitions. The implementation emits its own caleon_consent audit entry.
type ConsentSignal interface {
	GetLiveSignal(ctx context.Context, q ConsentQuery) Decision
}

// Persister mirrors the vault to durable storage. All methods are invoked
// under the vault's write path; implementations only need to be safe for the
// single-appender discipline.
type Persister interface {
	AppendAudit(entry types.AuditEntry) error
	SaveShard(shard types.MemoryShard) error
	DeleteShard(memoryID string) error
	Load() ([]types.MemoryShard, []types.AuditEntry, error)
	Close() error
}

// Vault owns all memory shards and the audit log. Mutating operations are
// serialized by a writer lock; readers proceed concurrently with each other.
type Vault struct {
	mu     sync.RWMutex
	shards map[string]types.MemoryShard

	auditMu   sync.Mutex
	audit     []types.AuditEntry
	lastStamp time.Time

	advisor     DriftAdvisor
	persister   Persister
	logger      *zap.Logger
	readTracing bool
	now         func() time.Time
}

// Option configures a Vault at construction.
type Option func(*Vault)

// WithPersister attaches durable storage. Existing shards and audit entries
// are loaded before the vault accepts operations.
func WithPersister(p Persister) Option {
	return func(v *Vault) { v.persister = p }
}

// WithReadTracing records read-only reflect() calls as ethical_test entries.
func WithReadTracing() Option {
	return func(v *Vault) { v.readTracing = true }
}

// WithClock overrides the vault clock (tests).
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// New constructs a vault. advisor may be nil; drift then degrades to zero.
func New(advisor DriftAdvisor, logger *zap.Logger, opts ...Option) (*Vault, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Vault{
		shards:  make(map[string]types.MemoryShard),
		advisor: advisor,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.persister != nil {
		shards, audit, err := v.persister.Load()
		if err != nil {
			return nil, fmt.Errorf("vault load: %w", err)
		}
		for _, s := range shards {
			v.shards[s.MemoryID] = s
		}
		v.audit = audit
		if n := len(audit); n > 0 {
			v.lastStamp = audit[n-1].Timestamp
		}
		logger.Info("vault restored",
			zap.Int("shards", len(shards)),
			zap.Int("audit_entries", len(audit)))
	}

	return v, nil
}

// Close releases the persister, if any.
func (v *Vault) Close() error {
	if v.persister != nil {
		return v.persister.Close()
	}
	return nil
}

// Store inserts a new shard and returns its content address. Fails with
// ErrAlreadyExists when the id is taken. Emits a store/approved audit entry.
func (v *Vault) Store(memoryID string, payload types.Payload, resonance types.ResonanceTag) (string, error) {
	if memoryID == "" {
		return "", fmt.Errorf("memory id required")
	}
	if !types.ValidTone(resonance.Tone) {
		return "", fmt.Errorf("unknown resonance tone %q", resonance.Tone)
	}

	hash, err := types.HashPayload(payload)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, taken := v.shards[memoryID]; taken {
		return "", fmt.Errorf("store %q: %w", memoryID, ErrAlreadyExists)
	}

	now := v.now()
	if resonance.CreatedAt.IsZero() {
		resonance.CreatedAt = now
	}
	shard := types.MemoryShard{
		MemoryID:      memoryID,
		Payload:       types.ClonePayload(payload),
		Resonance:     resonance,
		CreatedAt:     now,
		LastModified:  now,
		HashSignature: hash,
	}
	v.shards[memoryID] = shard

	if v.persister != nil {
		if err := v.persister.SaveShard(shard); err != nil {
			v.logger.Error("persist shard failed", zap.String("memory_id", memoryID), zap.Error(err))
		}
	}

	v.Append(types.AuditEntry{
		Action:              types.ActionStore,
		MemoryID:            memoryID,
		Verdict:             types.VerdictApproved,
		Resonance:           &resonance,
		AdjustedMoralCharge: resonance.MoralCharge,
	})

	v.logger.Debug("shard stored", zap.String("memory_id", memoryID), zap.String("hash", hash))
	return hash, nil
}

// Modify replaces a shard's payload (and optionally its resonance) under a
// consent-approved transition. The modify audit entry carries the advisory
// drift metrics regardless of verdict.
func (v *Vault) Modify(ctx context.Context, memoryID string, newPayload types.Payload, contextStr string, consent ConsentSignal, newResonance *types.ResonanceTag) (bool, string, error) {
	snapshot, err := v.Get(memoryID)
	if err != nil {
		return false, "not_found", err
	}

	drift, adjusted := v.advise(snapshot, newPayload)

	decision := Decision{Approved: true, Verdict: types.VerdictApproved}
	if consent != nil {
		// The consent wait can suspend for a long time in manual/voice
		// modes; it must never run under the writer lock.
		decision = consent.GetLiveSignal(ctx, ConsentQuery{
			MemoryID:        memoryID,
			Context:         contextStr,
			ProposedPayload: newPayload,
			Drift:           drift,
			AdjustedMoral:   adjusted,
		})
	}

	applied := false
	var resonance types.ResonanceTag
	if decision.Approved {
		hash, herr := types.HashPayload(newPayload)
		if herr != nil {
			return false, "invalid_payload", fmt.Errorf("hash payload: %w", herr)
		}

		v.mu.Lock()
		shard, ok := v.shards[memoryID]
		if ok {
			shard.Payload = types.ClonePayload(newPayload)
			if newResonance != nil {
				tag := *newResonance
				if tag.CreatedAt.IsZero() {
					tag.CreatedAt = v.now()
				}
				shard.Resonance = tag
			}
			shard.LastModified = v.now()
			shard.HashSignature = hash
			v.shards[memoryID] = shard
			resonance = shard.Resonance
			applied = true

			if v.persister != nil {
				if err := v.persister.SaveShard(shard); err != nil {
					v.logger.Error("persist shard failed", zap.String("memory_id", memoryID), zap.Error(err))
				}
			}
		}
		v.mu.Unlock()

		if !ok {
			return false, "not_found", fmt.Errorf("modify %q: %w", memoryID, ErrNotFound)
		}
	} else {
		resonance = snapshot.Resonance
	}

	entry := types.AuditEntry{
		Action:              types.ActionModify,
		MemoryID:            memoryID,
		Verdict:             decision.Verdict,
		Resonance:           &resonance,
		EthicalDrift:        drift,
		AdjustedMoralCharge: adjusted,
	}
	v.Append(entry)

	if !applied {
		return false, string(decision.Verdict), nil
	}
	return true, "approved", nil
}

// Delete removes a shard under a consent-approved transition. The delete
// audit entry carries a null resonance.
func (v *Vault) Delete(ctx context.Context, memoryID string, contextStr string, consent ConsentSignal) (bool, string, error) {
	snapshot, err := v.Get(memoryID)
	if err != nil {
		return false, "not_found", err
	}

	drift, adjusted := v.advise(snapshot, nil)

	decision := Decision{Approved: true, Verdict: types.VerdictApproved}
	if consent != nil {
		decision = consent.GetLiveSignal(ctx, ConsentQuery{
			MemoryID:      memoryID,
			Context:       contextStr,
			Drift:         drift,
			AdjustedMoral: adjusted,
		})
	}

	removed := false
	if decision.Approved {
		v.mu.Lock()
		if _, ok := v.shards[memoryID]; ok {
			delete(v.shards, memoryID)
			removed = true
			if v.persister != nil {
				if err := v.persister.DeleteShard(memoryID); err != nil {
					v.logger.Error("persist delete failed", zap.String("memory_id", memoryID), zap.Error(err))
				}
			}
		}
		v.mu.Unlock()
	}

	v.Append(types.AuditEntry{
		Action:              types.ActionDelete,
		MemoryID:            memoryID,
		Verdict:             decision.Verdict,
		Resonance:           nil,
		EthicalDrift:        drift,
		AdjustedMoralCharge: adjusted,
	})

	if !removed {
		return false, string(decision.Verdict), nil
	}
	return true, "approved", nil
}

// Get returns a by-value snapshot of a shard.
func (v *Vault) Get(memoryID string) (types.MemoryShard, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	shard, ok := v.shards[memoryID]
	if !ok {
		return types.MemoryShard{}, fmt.Errorf("get %q: %w", memoryID, ErrNotFound)
	}
	shard.Payload = types.ClonePayload(shard.Payload)
	return shard, nil
}

// Len reports the number of stored shards.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.shards)
}

func (v *Vault) advise(shard types.MemoryShard, newPayload types.Payload) (float64, float64) {
	if v.advisor == nil {
		return 0, shard.Resonance.MoralCharge
	}
	return v.advisor.Reflect(shard, newPayload)
}
