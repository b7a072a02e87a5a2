// Package orchestrator drives the unified cognition loop. It is the only
// stateful controller in the system: every submitted stimulus runs the fixed
// stage sequence resonate, anterior, echostack, echoripple, posterior,
// harmonize, consent, articulate in its own request task, guarded by a
// semaphore that caps the number of in-flight requests.
//
// All collaborators arrive through the CoreServices aggregate; the
// orchestrator holds no singletons and shares no mutable state across
// requests.
package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"caleon/internal/anterior"
	"caleon/internal/articulator"
	"caleon/internal/config"
	"caleon/internal/consent"
	"caleon/internal/echo"
	"caleon/internal/harmonizer"
	"caleon/internal/posterior"
	"caleon/internal/resonator"
	"caleon/internal/types"
	"caleon/internal/vault"
)

// Stage names, as recorded in results and partial audit entries.
const (
	StageResonate   = "resonate"
	StageAnterior   = "anterior"
	StageEchoStack  = "echostack"
	StageEchoRipple = "echoripple"
	StagePosterior  = "posterior"
	StageHarmonize  = "harmonize"
	StageConsent    = "consent"
	StageArticulate = "articulate"
)

// Error kinds surfaced on failed results.
const (
	ErrKindOverloaded   = "overloaded"
	ErrKindStageTimeout = "stage_timeout"
	ErrKindCancelled    = "cancelled"
	ErrKindEmptyVerdict = "empty_verdict"
	ErrKindStageError   = "stage_error"
)

// SeedSource supplies the current logic-seed bank. *config.SeedWatcher
// satisfies this; StaticSeeds serves a fixed bank.
type SeedSource interface {
	Bank() []config.SeedSpec
}

// StaticSeeds is a SeedSource over an immutable slice.
type StaticSeeds []config.SeedSpec

// Bank returns the wrapped bank.
func (s StaticSeeds) Bank() []config.SeedSpec { return s }

// CoreServices aggregates every collaborator the loop needs. Constructed once
// in main and injected; nothing in here is reached through package globals.
type CoreServices struct {
	Vault       *vault.Vault
	Harmonizer  *harmonizer.Harmonizer
	Consent     *consent.Authority
	Resonator   resonator.Extractor
	Anterior    *anterior.Reasoner
	EchoStack   *echo.Stack
	EchoRipple  *echo.Ripple
	Posterior   *posterior.Reasoner
	Articulator *articulator.Articulator
}

// Orchestrator runs the pipeline. Safe for concurrent Submit calls; each call
// is one request task.
type Orchestrator struct {
	services     CoreServices
	seeds        SeedSource
	stageTimeout time.Duration
	sem          *semaphore.Weighted
	voiceStyle   string
	seedFn       func() int64
	logger       *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithVoiceStyle sets the voice style forwarded to the articulator.
func WithVoiceStyle(style string) Option {
	return func(o *Orchestrator) { o.voiceStyle = style }
}

// WithRequestSeed overrides the per-request random seed source so a run can
// be reproduced for audit.
func WithRequestSeed(fn func() int64) Option {
	return func(o *Orchestrator) { o.seedFn = fn }
}

// New builds an orchestrator over the injected services.
func New(services CoreServices, cfg config.PipelineConfig, seeds SeedSource, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if seeds == nil {
		seeds = StaticSeeds(nil)
	}
	o := &Orchestrator{
		services:     services,
		seeds:        seeds,
		stageTimeout: cfg.StageTimeout(),
		sem:          semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		logger:       logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.seedFn == nil {
		o.seedFn = o.nextSeed
	}
	return o
}

func (o *Orchestrator) nextSeed() int64 {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return o.rng.Int63()
}

// Submit runs one stimulus through the full loop and returns its result.
// Requests past the in-flight cap wait up to one stage budget for capacity
// and are then rejected as overloaded, before any audit entry is written.
func (o *Orchestrator) Submit(ctx context.Context, stimulus string) types.Result {
	requestID := uuid.NewString()

	acquireCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	err := o.sem.Acquire(acquireCtx, 1)
	cancel()
	if err != nil {
		o.logger.Warn("request rejected, loop saturated", zap.String("request_id", requestID))
		return types.Result{Kind: types.ResultFailed, RequestID: requestID, ErrorKind: ErrKindOverloaded}
	}
	defer o.sem.Release(1)

	return o.run(ctx, requestID, stimulus)
}

// run executes the stage sequence for one request.
func (o *Orchestrator) run(ctx context.Context, requestID, stimulus string) types.Result {
	rng := rand.New(rand.NewSource(o.seedFn()))
	bank := o.seeds.Bank()
	logicSeeds := toLogicSeeds(bank)

	reflection := &types.ReflectionRecord{RequestID: requestID, Stimulus: stimulus}
	lastCompleted := ""

	// RESONATE
	record, err := o.resonate(ctx, stimulus)
	if err != nil {
		return o.fail(ctx, requestID, reflection, lastCompleted, StageResonate, err)
	}
	reflection.Resonance = &record
	lastCompleted = StageResonate

	// ANTERIOR
	verdict, err := o.anterior(ctx, record)
	if err != nil {
		return o.fail(ctx, requestID, reflection, lastCompleted, StageAnterior, err)
	}
	reflection.Verdict = &verdict
	lastCompleted = StageAnterior

	// ECHOSTACK
	delta, err := o.echoStack(ctx, verdict, logicSeeds, rng)
	if err != nil {
		return o.fail(ctx, requestID, reflection, lastCompleted, StageEchoStack, err)
	}
	reflection.Echo = &delta
	lastCompleted = StageEchoStack

	// ECHORIPPLE
	stabilized, err := o.echoRipple(ctx, delta, logicSeeds, rng)
	if err != nil {
		return o.fail(ctx, requestID, reflection, lastCompleted, StageEchoRipple, err)
	}
	reflection.Ripple = &stabilized
	lastCompleted = StageEchoRipple

	// POSTERIOR
	outcome, err := o.posterior(ctx, requestID, stabilized, bank, rng)
	if err != nil {
		return o.fail(ctx, requestID, reflection, lastCompleted, StagePosterior, err)
	}
	reflection.Posterior = &outcome
	lastCompleted = StagePosterior

	// HARMONIZE (advisory)
	reflection.Drift, reflection.AdjustedMoral = o.services.Harmonizer.Advise(*reflection)
	lastCompleted = StageHarmonize

	// CONSENT (authoritative). The authority applies its own configured
	// timeout; the request context still propagates cancellation. A request
	// already cancelled never reaches the authority, so no consent entry is
	// written for it.
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, requestID, reflection, lastCompleted, StageConsent, err)
	}
	decision := o.services.Consent.GetLiveSignal(ctx, vault.ConsentQuery{
		MemoryID:      requestID,
		Context:       stimulus,
		Reflection:    reflection,
		Drift:         reflection.Drift,
		AdjustedMoral: reflection.AdjustedMoral,
	})
	lastCompleted = StageConsent

	if decision.Verdict == types.VerdictCancelled {
		return o.fail(ctx, requestID, reflection, lastCompleted, StageConsent, context.Canceled)
	}

	if !decision.Approved {
		o.terminal(requestID, reflection, decision.Verdict, lastCompleted)
		o.logger.Info("request denied",
			zap.String("request_id", requestID),
			zap.String("verdict", string(decision.Verdict)))
		return types.Result{
			Kind:      types.ResultDenied,
			RequestID: requestID,
			Reason:    string(decision.Verdict),
		}
	}

	// ARTICULATE
	utterance, err := o.articulate(ctx, verdict, stabilized.Consensus)
	if err != nil {
		return o.fail(ctx, requestID, reflection, lastCompleted, StageArticulate, err)
	}
	lastCompleted = StageArticulate

	o.terminal(requestID, reflection, types.VerdictApproved, lastCompleted)
	o.logger.Info("request articulated",
		zap.String("request_id", requestID),
		zap.Float64("confidence", verdict.Confidence),
		zap.String("consensus", string(stabilized.Consensus)))

	return types.Result{
		Kind:       types.ResultArticulated,
		RequestID:  requestID,
		Text:       utterance.Text,
		Confidence: verdict.Confidence,
		Consensus:  stabilized.Consensus,
	}
}

// ----- stage wrappers -------------------------------------------------------

func (o *Orchestrator) resonate(ctx context.Context, stimulus string) (types.ResonanceRecord, error) {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.services.Resonator.Extract(stageCtx, stimulus, nil)
}

func (o *Orchestrator) anterior(ctx context.Context, record types.ResonanceRecord) (types.Verdict, error) {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()
	if err := stageCtx.Err(); err != nil {
		return types.Verdict{}, err
	}
	return o.services.Anterior.Evaluate(stageCtx, record), nil
}

func (o *Orchestrator) echoStack(ctx context.Context, verdict types.Verdict, seeds []types.LogicSeed, rng *rand.Rand) (types.ReflectionDelta, error) {
	if err := ctx.Err(); err != nil {
		return types.ReflectionDelta{}, err
	}
	return o.services.EchoStack.Reflect(verdict, seeds, rng), nil
}

func (o *Orchestrator) echoRipple(ctx context.Context, delta types.ReflectionDelta, seeds []types.LogicSeed, rng *rand.Rand) (types.StabilizedReflection, error) {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.services.EchoRipple.Stabilize(stageCtx, delta, seeds, rng)
}

func (o *Orchestrator) posterior(ctx context.Context, requestID string, stabilized types.StabilizedReflection, bank []config.SeedSpec, rng *rand.Rand) (types.PosteriorOutcome, error) {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.services.Posterior.Rethink(stageCtx, requestID, stabilized, bank, rng)
}

func (o *Orchestrator) articulate(ctx context.Context, verdict types.Verdict, consensus types.Consensus) (articulator.Utterance, error) {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()
	return o.services.Articulator.Articulate(stageCtx, verdict, consensus, o.voiceStyle)
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.stageTimeout)
}

// ----- terminal handling ----------------------------------------------------

// fail classifies a stage error, records the partial audit entry naming the
// last completed stage, and produces the failed result.
func (o *Orchestrator) fail(ctx context.Context, requestID string, reflection *types.ReflectionRecord, lastCompleted, stage string, err error) types.Result {
	kind := ErrKindStageError
	verdict := types.VerdictDenied
	switch {
	case ctx.Err() != nil:
		kind = ErrKindCancelled
		verdict = types.VerdictCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrKindStageTimeout
		verdict = types.VerdictTimeout
	case errors.Is(err, context.Canceled):
		kind = ErrKindCancelled
		verdict = types.VerdictCancelled
	case errors.Is(err, articulator.ErrEmptyVerdict):
		kind = ErrKindEmptyVerdict
	}

	o.services.Vault.Append(types.AuditEntry{
		Action:              types.ActionPipeline,
		MemoryID:            requestID,
		Verdict:             verdict,
		Mode:                lastCompleted,
		EthicalDrift:        reflection.Drift,
		AdjustedMoralCharge: reflection.AdjustedMoral,
	})

	o.logger.Warn("request failed",
		zap.String("request_id", requestID),
		zap.String("stage", stage),
		zap.String("error_kind", kind),
		zap.Error(err))

	return types.Result{
		Kind:      types.ResultFailed,
		RequestID: requestID,
		ErrorKind: kind,
		Stage:     stage,
	}
}

// terminal records the closing pipeline audit entry for a completed request.
func (o *Orchestrator) terminal(requestID string, reflection *types.ReflectionRecord, verdict types.AuditVerdict, lastCompleted string) {
	o.services.Vault.Append(types.AuditEntry{
		Action:              types.ActionPipeline,
		MemoryID:            requestID,
		Verdict:             verdict,
		Mode:                lastCompleted,
		EthicalDrift:        reflection.Drift,
		AdjustedMoralCharge: reflection.AdjustedMoral,
	})
}

func toLogicSeeds(bank []config.SeedSpec) []types.LogicSeed {
	if len(bank) == 0 {
		return nil
	}
	out := make([]types.LogicSeed, len(bank))
	for i, s := range bank {
		out[i] = s.Seed()
	}
	return out
}
