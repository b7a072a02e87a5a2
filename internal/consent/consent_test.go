package consent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"caleon/internal/config"
	"caleon/internal/types"
	"caleon/internal/vault"
)

// memSink collects audit entries in order.
type memSink struct {
	mu      sync.Mutex
	entries []types.AuditEntry
}

func (s *memSink) Append(e types.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.entries = append(s.entries, e)
}

func (s *memSink) all() []types.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func newAuthority(mode string, timeoutMS int) (*Authority, *memSink) {
	sink := &memSink{}
	a := New(config.ConsentConfig{Mode: mode, DefaultTimeoutMS: timeoutMS}, sink, nil)
	return a, sink
}

func query(id string) vault.ConsentQuery {
	return vault.ConsentQuery{MemoryID: id, Drift: 0.25, AdjustedMoral: 0.5}
}

func TestImmediateModes(t *testing.T) {
	defer goleak.VerifyNone(t)

	yes, _ := newAuthority(config.ConsentAlwaysYes, 1000)
	d := yes.GetLiveSignal(context.Background(), query("m1"))
	assert.True(t, d.Approved)
	assert.Equal(t, types.VerdictApproved, d.Verdict)

	no, _ := newAuthority(config.ConsentAlwaysNo, 1000)
	d = no.GetLiveSignal(context.Background(), query("m1"))
	assert.False(t, d.Approved)
	assert.Equal(t, types.VerdictDenied, d.Verdict)
}

func TestRandomMode_VerdictMatchesDecision(t *testing.T) {
	a, _ := newAuthority(config.ConsentRandom, 1000)
	for i := 0; i < 32; i++ {
		d := a.GetLiveSignal(context.Background(), query("m1"))
		if d.Approved {
			assert.Equal(t, types.VerdictApproved, d.Verdict)
		} else {
			assert.Equal(t, types.VerdictDenied, d.Verdict)
		}
	}
}

func TestEveryDecisionEmitsExactlyOneAuditEntry(t *testing.T) {
	a, sink := newAuthority(config.ConsentAlwaysYes, 1000)

	for i := 0; i < 5; i++ {
		a.GetLiveSignal(context.Background(), query("m1"))
	}

	entries := sink.all()
	require.Len(t, entries, 5)
	for _, e := range entries {
		assert.Equal(t, types.ActionConsent, e.Action)
		assert.Equal(t, config.ConsentAlwaysYes, e.Mode)
		assert.Equal(t, 0.25, e.EthicalDrift, "advisory drift forwarded into the entry")
		assert.Equal(t, 0.5, e.AdjustedMoralCharge)
	}
}

func TestManualMode_ProviderResolvesWaiter(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, sink := newAuthority(config.ConsentManual, 5000)

	done := make(chan vault.Decision, 1)
	go func() {
		done <- a.GetLiveSignal(context.Background(), query("m1"))
	}()

	// Let the waiter register, then answer.
	time.Sleep(50 * time.Millisecond)
	a.ProvideLiveSignal("m1", true)

	select {
	case d := <-done:
		assert.True(t, d.Approved)
		assert.Equal(t, types.VerdictApproved, d.Verdict)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never resolved")
	}

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, types.VerdictApproved, entries[0].Verdict)
}

func TestManualMode_ProducerBeforeConsumer(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, _ := newAuthority(config.ConsentManual, 5000)

	a.ProvideLiveSignal("m1", false)

	// Resolves immediately: no waiting despite manual mode.
	start := time.Now()
	d := a.GetLiveSignal(context.Background(), query("m1"))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, d.Approved)
	assert.Equal(t, types.VerdictDenied, d.Verdict)

	// The parked value is consumed exactly once: the next call waits.
	d = a.GetLiveSignal(context.Background(), vault.ConsentQuery{MemoryID: "m1", Timeout: time.Millisecond})
	assert.Equal(t, types.VerdictTimeout, d.Verdict)
}

func TestManualMode_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, sink := newAuthority(config.ConsentManual, 50)

	start := time.Now()
	d := a.GetLiveSignal(context.Background(), query("m1"))
	assert.False(t, d.Approved)
	assert.Equal(t, types.VerdictTimeout, d.Verdict)
	assert.Less(t, time.Since(start), 2*time.Second)

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, types.VerdictTimeout, entries[0].Verdict)
}

func TestManualMode_ZeroTimeoutDeniesImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, sink := newAuthority(config.ConsentManual, 0)

	d := a.GetLiveSignal(context.Background(), query("m1"))
	assert.False(t, d.Approved)
	assert.Equal(t, types.VerdictTimeout, d.Verdict)
	require.Len(t, sink.all(), 1)
	assert.Equal(t, types.VerdictTimeout, sink.all()[0].Verdict)
}

func TestManualMode_CancelResolvesAsCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, sink := newAuthority(config.ConsentManual, 60_000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan vault.Decision, 1)
	go func() {
		done <- a.GetLiveSignal(ctx, query("m1"))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case d := <-done:
		assert.False(t, d.Approved)
		assert.Equal(t, types.VerdictCancelled, d.Verdict)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not resolve the waiter")
	}
	require.Len(t, sink.all(), 1)
	assert.Equal(t, types.VerdictCancelled, sink.all()[0].Verdict)
}

func TestVoiceMode_CallbackDecides(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, _ := newAuthority(config.ConsentVoice, 1000)
	a.SetVoiceCallback(func(ctx context.Context) (bool, error) {
		return true, nil
	})

	d := a.GetLiveSignal(context.Background(), query("m1"))
	assert.True(t, d.Approved)
}

func TestVoiceMode_NoCallbackFallsBackToManual(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, _ := newAuthority(config.ConsentVoice, 5000)
	a.ProvideLiveSignal("m1", true)

	d := a.GetLiveSignal(context.Background(), query("m1"))
	assert.True(t, d.Approved)
}

func TestCustomMode_ErrorFailsClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, _ := newAuthority(config.ConsentAlwaysYes, 1000)
	a.SetCustomLogic(func(ctx context.Context, q vault.ConsentQuery) (bool, error) {
		return true, errors.New("signal source offline")
	})
	assert.Equal(t, config.ConsentCustom, a.Mode(), "SetCustomLogic forces custom mode")

	d := a.GetLiveSignal(context.Background(), query("m1"))
	assert.False(t, d.Approved)
	assert.Equal(t, types.VerdictDenied, d.Verdict)
}

func TestCustomMode_PanicFailsClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, _ := newAuthority(config.ConsentAlwaysYes, 1000)
	a.SetCustomLogic(func(ctx context.Context, q vault.ConsentQuery) (bool, error) {
		panic("broken policy")
	})

	d := a.GetLiveSignal(context.Background(), query("m1"))
	assert.False(t, d.Approved)
}

func TestCustomMode_SuspendingLogicHonorsTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, _ := newAuthority(config.ConsentAlwaysYes, 50)
	a.SetCustomLogic(func(ctx context.Context, q vault.ConsentQuery) (bool, error) {
		select {
		case <-time.After(10 * time.Second):
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})

	start := time.Now()
	d := a.GetLiveSignal(context.Background(), query("m1"))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, types.VerdictTimeout, d.Verdict)
}

func TestProvideLiveSignal_ExactlyOnceUnderRace(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, _ := newAuthority(config.ConsentManual, 2000)

	var wg sync.WaitGroup
	results := make(chan vault.Decision, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- a.GetLiveSignal(context.Background(), vault.ConsentQuery{MemoryID: "m1", Timeout: 500 * time.Millisecond})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	a.ProvideLiveSignal("m1", true)
	wg.Wait()
	close(results)

	approvals := 0
	for d := range results {
		if d.Approved {
			approvals++
		}
	}
	assert.Equal(t, 1, approvals, "a provided value resolves exactly one waiter")
}
