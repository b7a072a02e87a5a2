// Package consent implements the sovereign consent authority: one boolean
// decision per request, resolved by a pluggable signal source, with
// timeout-denial semantics and a mandatory audit entry for every decision.
package consent

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"caleon/internal/config"
	"caleon/internal/types"
	"caleon/internal/vault"
)

// AuditSink receives the mandatory caleon_consent entry for every decision.
// Satisfied by *vault.Vault.
type AuditSink interface {
	Append(entry types.AuditEntry)
}

// CustomLogic is an installable decision function. It may suspend; an error
// (or panic) resolves the request as denied, fail-closed.
type CustomLogic func(ctx context.Context, q vault.ConsentQuery) (bool, error)

// VoiceCallback is the asynchronous voice-consent capability. It may suspend
// under the same timeout discipline as manual mode.
type VoiceCallback func(ctx context.Context) (bool, error)

// Authority resolves consent requests. Single-writer over its waiter map,
// safe for concurrent callers.
type Authority struct {
	mu      sync.Mutex
	mode    string
	waiters map[string]chan bool // one-shot completion slot per memory id
	pending map[string]bool      // producer-before-consumer values
	custom  CustomLogic
	voice   VoiceCallback
	rng     *rand.Rand

	defaultTimeout time.Duration
	audit          AuditSink
	logger         *zap.Logger
}

// New builds an authority in the configured mode. The mode has already been
// validated at startup; an unknown mode here fails closed at decision time.
func New(cfg config.ConsentConfig, audit AuditSink, logger *zap.Logger) *Authority {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authority{
		mode:           cfg.Mode,
		waiters:        make(map[string]chan bool),
		pending:        make(map[string]bool),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		defaultTimeout: cfg.DefaultTimeout(),
		audit:          audit,
		logger:         logger,
	}
}

// Mode returns the active consent mode.
func (a *Authority) Mode() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// SetCustomLogic installs a decision function and forces mode to custom.
func (a *Authority) SetCustomLogic(fn CustomLogic) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.custom = fn
	a.mode = config.ConsentCustom
}

// SetVoiceCallback installs the voice-consent capability.
func (a *Authority) SetVoiceCallback(fn VoiceCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.voice = fn
}

// GetLiveSignal resolves one consent decision. Exactly one caleon_consent
// audit entry is emitted on every path, carrying the resolved verdict, the
// active mode, and the advisory drift metrics forwarded by the caller. The
// entry is appended before the caller observes the result.
func (a *Authority) GetLiveSignal(ctx context.Context, q vault.ConsentQuery) vault.Decision {
	a.mu.Lock()
	mode := a.mode
	custom := a.custom
	voice := a.voice
	a.mu.Unlock()

	// Zero means "caller did not choose"; the configured default applies.
	// A default of 0 ms makes the suspending paths time out immediately.
	timeout := q.Timeout
	if timeout == 0 {
		timeout = a.defaultTimeout
	}

	var decision vault.Decision
	switch mode {
	case config.ConsentAlwaysYes:
		decision = vault.Decision{Approved: true, Verdict: types.VerdictApproved}
	case config.ConsentAlwaysNo:
		decision = vault.Decision{Approved: false, Verdict: types.VerdictDenied}
	case config.ConsentRandom:
		decision = a.randomDecision()
	case config.ConsentManual:
		decision = a.waitManual(ctx, q.MemoryID, timeout)
	case config.ConsentVoice:
		if voice == nil {
			// No voice capability installed: fall back to the manual slot.
			decision = a.waitManual(ctx, q.MemoryID, timeout)
		} else {
			decision = a.waitCallback(ctx, timeout, func(cctx context.Context) (bool, error) {
				return voice(cctx)
			})
		}
	case config.ConsentCustom:
		if custom == nil {
			decision = vault.Decision{Approved: false, Verdict: types.VerdictDenied}
		} else {
			decision = a.waitCallback(ctx, timeout, func(cctx context.Context) (bool, error) {
				return custom(cctx, q)
			})
		}
	default:
		// Unreachable after startup validation; fail closed regardless.
		decision = vault.Decision{Approved: false, Verdict: types.VerdictDenied}
	}

	entry := types.AuditEntry{
		Action:              types.ActionConsent,
		MemoryID:            q.MemoryID,
		Verdict:             decision.Verdict,
		Mode:                mode,
		EthicalDrift:        q.Drift,
		AdjustedMoralCharge: q.AdjustedMoral,
	}
	if a.audit != nil {
		a.audit.Append(entry)
	}

	a.logger.Debug("consent resolved",
		zap.String("memory_id", q.MemoryID),
		zap.String("mode", mode),
		zap.String("verdict", string(decision.Verdict)))

	return decision
}

// ProvideLiveSignal completes the waiter for memoryID. When no waiter is
// registered yet, the value is parked so the next GetLiveSignal on that id
// resolves immediately (race-safe producer-before-consumer).
func (a *Authority) ProvideLiveSignal(memoryID string, value bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ch, ok := a.waiters[memoryID]; ok {
		delete(a.waiters, memoryID)
		ch <- value // buffered, never blocks
		return
	}
	a.pending[memoryID] = value
}

func (a *Authority) randomDecision() vault.Decision {
	a.mu.Lock()
	approved := a.rng.Float64() < 0.5
	a.mu.Unlock()

	if approved {
		return vault.Decision{Approved: true, Verdict: types.VerdictApproved}
	}
	return vault.Decision{Approved: false, Verdict: types.VerdictDenied}
}

// waitManual suspends on the one-shot completion slot for memoryID until a
// producer provides a value, the timeout elapses (denial, verdict timeout),
// or the request is cancelled (denial, verdict cancelled).
func (a *Authority) waitManual(ctx context.Context, memoryID string, timeout time.Duration) vault.Decision {
	a.mu.Lock()
	if value, ok := a.pending[memoryID]; ok {
		delete(a.pending, memoryID)
		a.mu.Unlock()
		return decisionFor(value)
	}
	ch := make(chan bool, 1)
	a.waiters[memoryID] = ch
	a.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case value := <-ch:
		return decisionFor(value)
	case <-timer.C:
		a.dropWaiter(memoryID, ch)
		return vault.Decision{Approved: false, Verdict: types.VerdictTimeout}
	case <-ctx.Done():
		a.dropWaiter(memoryID, ch)
		return vault.Decision{Approved: false, Verdict: types.VerdictCancelled}
	}
}

// dropWaiter deregisters a waiter slot. A value raced in by a producer is
// re-parked so it is still consumed exactly once.
func (a *Authority) dropWaiter(memoryID string, ch chan bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if registered, ok := a.waiters[memoryID]; ok && registered == ch {
		delete(a.waiters, memoryID)
		return
	}
	// The producer already claimed the slot; preserve its value.
	select {
	case value := <-ch:
		a.pending[memoryID] = value
	default:
	}
}

// waitCallback runs an installed decision callback under the timeout
// discipline. Errors and panics resolve as denial, fail-closed.
func (a *Authority) waitCallback(ctx context.Context, timeout time.Duration, fn func(context.Context) (bool, error)) vault.Decision {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value bool
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Warn("consent callback panicked", zap.Any("panic", r))
				ch <- outcome{err: context.Canceled}
			}
		}()
		value, err := fn(cctx)
		ch <- outcome{value: value, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return vault.Decision{Approved: false, Verdict: types.VerdictDenied}
		}
		return decisionFor(out.value)
	case <-cctx.Done():
		if ctx.Err() != nil {
			return vault.Decision{Approved: false, Verdict: types.VerdictCancelled}
		}
		return vault.Decision{Approved: false, Verdict: types.VerdictTimeout}
	}
}

func decisionFor(value bool) vault.Decision {
	if value {
		return vault.Decision{Approved: true, Verdict: types.VerdictApproved}
	}
	return vault.Decision{Approved: false, Verdict: types.VerdictDenied}
}
