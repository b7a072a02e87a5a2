package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

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

// leakOpts ignores the background worker started in go.opencensus.io's
// package init (pulled in transitively); it is not owned by the code under test.
var leakOpts = []goleak.Option{
	goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
}

type fakeSpeaker struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSpeaker) Speak(_ context.Context, text, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	return nil
}

func (f *fakeSpeaker) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type loop struct {
	orch    *Orchestrator
	vault   *vault.Vault
	consent *consent.Authority
	speaker *fakeSpeaker
}

// newLoop wires a full in-memory pipeline with fast timings.
func newLoop(t *testing.T, consentCfg config.ConsentConfig, mutate func(*config.PipelineConfig), adapter anterior.Adapter) *loop {
	t.Helper()

	pcfg := config.DefaultPipelineConfig()
	pcfg.RippleIntervalMS = 0
	pcfg.PosteriorIntervalMS = 0
	if mutate != nil {
		mutate(&pcfg)
	}
	require.NoError(t, pcfg.Validate())

	h := harmonizer.New(config.DefaultHarmonizerConfig(), nil)
	v, err := vault.New(h, nil)
	require.NoError(t, err)
	auth := consent.New(consentCfg, v, nil)
	speaker := &fakeSpeaker{}

	services := CoreServices{
		Vault:       v,
		Harmonizer:  h,
		Consent:     auth,
		Resonator:   resonator.New(nil),
		Anterior:    anterior.New(adapter, nil),
		EchoStack:   echo.NewStack(nil),
		EchoRipple:  echo.NewRipple(pcfg, nil),
		Posterior:   posterior.New(pcfg, h, v, nil),
		Articulator: articulator.New(speaker, nil),
	}

	orch := New(services, pcfg, StaticSeeds(config.DefaultSeedsConfig().Bank), nil)
	return &loop{orch: orch, vault: v, consent: auth, speaker: speaker}
}

func entriesByAction(entries []types.AuditEntry, action types.AuditAction) []types.AuditEntry {
	var out []types.AuditEntry
	for _, e := range entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func TestSubmit_AlwaysYesArticulates(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	l := newLoop(t, config.DefaultConsentConfig(), nil, nil)

	result := l.orch.Submit(context.Background(), "hello from the outside world")

	require.Equal(t, types.ResultArticulated, result.Kind)
	assert.NotEmpty(t, result.Text)
	assert.Greater(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, []string{result.Text}, l.speaker.spoken(), "articulator records the exact text")

	entries := l.vault.AuditLog()
	consents := entriesByAction(entries, types.ActionConsent)
	require.Len(t, consents, 1)
	assert.Equal(t, types.VerdictApproved, consents[0].Verdict)
	assert.Equal(t, result.RequestID, consents[0].MemoryID)

	terminals := entriesByAction(entries, types.ActionPipeline)
	require.Len(t, terminals, 1)
	assert.Equal(t, types.VerdictApproved, terminals[0].Verdict)
	assert.Equal(t, StageArticulate, terminals[0].Mode)
}

func TestSubmit_AlwaysNoDenies(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	l := newLoop(t, config.ConsentConfig{Mode: config.ConsentAlwaysNo, DefaultTimeoutMS: 100}, nil, nil)

	result := l.orch.Submit(context.Background(), "hello from the outside world")

	require.Equal(t, types.ResultDenied, result.Kind)
	assert.Equal(t, string(types.VerdictDenied), result.Reason)
	assert.Empty(t, result.Text)
	assert.Empty(t, l.speaker.spoken(), "no articulator call on denial")

	consents := entriesByAction(l.vault.AuditLog(), types.ActionConsent)
	require.Len(t, consents, 1)
	assert.Equal(t, types.VerdictDenied, consents[0].Verdict)
}

func TestSubmit_ManualTimeoutDenies(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	l := newLoop(t, config.ConsentConfig{Mode: config.ConsentManual, DefaultTimeoutMS: 100}, nil, nil)

	result := l.orch.Submit(context.Background(), "anyone listening out there")

	require.Equal(t, types.ResultDenied, result.Kind)
	assert.Equal(t, string(types.VerdictTimeout), result.Reason)
	assert.Empty(t, l.speaker.spoken())

	consents := entriesByAction(l.vault.AuditLog(), types.ActionConsent)
	require.Len(t, consents, 1)
	assert.Equal(t, types.VerdictTimeout, consents[0].Verdict)
}

func TestSubmit_EscalationIsAdvisory(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	l := newLoop(t, config.DefaultConsentConfig(), func(c *config.PipelineConfig) {
		c.PosteriorMalThreshold = 0
	}, nil)

	result := l.orch.Submit(context.Background(), "explain the anomaly in sector seven")

	require.Equal(t, types.ResultArticulated, result.Kind, "escalation never blocks articulation")

	escalations := entriesByAction(l.vault.AuditLog(), types.ActionEscalation)
	require.Len(t, escalations, 1, "harmonizer review lands in the audit log")
	assert.Equal(t, result.RequestID, escalations[0].MemoryID)
	assert.Equal(t, posterior.ReasonMaleficence, escalations[0].Mode)
}

// cancellingAdapter cancels the request while the anterior stage is running,
// so the cancel lands between the anterior and echostack stages.
type cancellingAdapter struct {
	cancel context.CancelFunc
}

func (c *cancellingAdapter) Reason(_ context.Context, _ types.ResonanceRecord) (string, float64, error) {
	c.cancel()
	return "a thought formed before the lights went out", 0.9, nil
}

func TestSubmit_CancelBetweenAnteriorAndEchoStack(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := newLoop(t, config.DefaultConsentConfig(), nil, &cancellingAdapter{cancel: cancel})

	result := l.orch.Submit(ctx, "hello from the outside world")

	require.Equal(t, types.ResultFailed, result.Kind)
	assert.Equal(t, ErrKindCancelled, result.ErrorKind)
	assert.Equal(t, StageEchoStack, result.Stage)
	assert.Empty(t, l.speaker.spoken())

	entries := l.vault.AuditLog()
	assert.Empty(t, entriesByAction(entries, types.ActionConsent), "consent never consulted")
	terminals := entriesByAction(entries, types.ActionPipeline)
	require.Len(t, terminals, 1)
	assert.Equal(t, types.VerdictCancelled, terminals[0].Verdict)
	assert.Equal(t, StageAnterior, terminals[0].Mode, "audit names the last completed stage")
}

func TestSubmit_StageTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	l := newLoop(t, config.DefaultConsentConfig(), func(c *config.PipelineConfig) {
		c.RippleIntervalMS = 100
		c.StageTimeoutMS = 50
	}, nil)

	result := l.orch.Submit(context.Background(), "hello from the outside world")

	require.Equal(t, types.ResultFailed, result.Kind)
	assert.Equal(t, ErrKindStageTimeout, result.ErrorKind)
	assert.Equal(t, StageEchoRipple, result.Stage)

	terminals := entriesByAction(l.vault.AuditLog(), types.ActionPipeline)
	require.Len(t, terminals, 1)
	assert.Equal(t, types.VerdictTimeout, terminals[0].Verdict)
	assert.Equal(t, StageEchoStack, terminals[0].Mode)
}

func TestSubmit_OverloadedRejectedBeforeAudit(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	l := newLoop(t, config.ConsentConfig{Mode: config.ConsentManual, DefaultTimeoutMS: 500}, func(c *config.PipelineConfig) {
		c.MaxInFlight = 1
		c.StageTimeoutMS = 50
	}, nil)

	first := make(chan types.Result, 1)
	go func() {
		// Occupies the only slot inside the manual consent wait.
		first <- l.orch.Submit(context.Background(), "hold the line")
	}()
	time.Sleep(100 * time.Millisecond)

	second := l.orch.Submit(context.Background(), "no room left")
	require.Equal(t, types.ResultFailed, second.Kind)
	assert.Equal(t, ErrKindOverloaded, second.ErrorKind)

	result := <-first
	assert.Equal(t, types.ResultDenied, result.Kind)

	for _, e := range l.vault.AuditLog() {
		assert.NotEqual(t, second.RequestID, e.MemoryID, "rejected request leaves no audit trace")
	}
}

func TestSubmit_ReflectionRecordReachesConsent(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	l := newLoop(t, config.ConsentConfig{Mode: config.ConsentCustom, DefaultTimeoutMS: 1000}, nil, nil)

	var mu sync.Mutex
	var captured *types.ReflectionRecord
	l.consent.SetCustomLogic(func(_ context.Context, q vault.ConsentQuery) (bool, error) {
		mu.Lock()
		captured = q.Reflection
		mu.Unlock()
		return true, nil
	})

	result := l.orch.Submit(context.Background(), "every stage leaves a record behind")
	require.Equal(t, types.ResultArticulated, result.Kind)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, captured)
	assert.Equal(t, result.RequestID, captured.RequestID)
	assert.NotNil(t, captured.Resonance)
	assert.NotNil(t, captured.Verdict)
	assert.NotNil(t, captured.Echo)
	assert.NotNil(t, captured.Ripple)
	assert.NotNil(t, captured.Posterior)
	assert.Equal(t, 5, captured.Ripple.CyclesCompleted)
}

func TestSubmit_ConcurrentRequestsOneConsentEach(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)
	l := newLoop(t, config.DefaultConsentConfig(), func(c *config.PipelineConfig) {
		c.MaxInFlight = 32
	}, nil)

	const n = 1000
	results := make([]types.Result, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			results[i] = l.orch.Submit(context.Background(), "hello from the outside world")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	articulated := 0
	for _, r := range results {
		if r.Kind == types.ResultArticulated {
			articulated++
		}
	}
	assert.GreaterOrEqual(t, articulated, n-32, "waiting requests still complete")

	seen := make(map[string]int)
	for _, e := range entriesByAction(l.vault.AuditLog(), types.ActionConsent) {
		seen[e.MemoryID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "request %s has more than one consent entry", id)
	}
	assert.Len(t, seen, articulated)
}

func TestSubmit_SameSeedReproducesRun(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	run := func() types.Result {
		l := newLoop(t, config.DefaultConsentConfig(), nil, nil)
		l.orch.seedFn = func() int64 { return 1234 }
		return l.orch.Submit(context.Background(), "hello from the outside world")
	}

	a := run()
	b := run()
	require.Equal(t, types.ResultArticulated, a.Kind)
	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.Consensus, b.Consensus)
}
