package articulator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caleon/internal/types"
)

type fakeSpeaker struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSpeaker) Speak(_ context.Context, text, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	return f.err
}

func TestArticulate_RecordsExactText(t *testing.T) {
	speaker := &fakeSpeaker{}
	a := New(speaker, nil)

	verdict := types.Verdict{ID: "v-1", Value: "  the considered answer ", Confidence: 0.8}
	utterance, err := a.Articulate(context.Background(), verdict, types.ConsensusPositive, "calm")
	require.NoError(t, err)

	assert.Equal(t, "the considered answer", utterance.Text)
	assert.Equal(t, "v-1", utterance.Verdict)
	assert.Equal(t, types.ConsensusPositive, utterance.Consensus)
	assert.Equal(t, 0.8, utterance.Confidence)
	assert.Equal(t, "calm", utterance.VoiceStyle)
	assert.Empty(t, utterance.SpeakerError)
	assert.Equal(t, []string{"the considered answer"}, speaker.calls)

	recorded := a.Utterances()
	require.Len(t, recorded, 1)
	assert.Equal(t, utterance, recorded[0])
}

func TestArticulate_EmptyVerdictRejected(t *testing.T) {
	speaker := &fakeSpeaker{}
	a := New(speaker, nil)

	_, err := a.Articulate(context.Background(), types.Verdict{ID: "v-1", Value: "   "}, types.ConsensusNeutral, "")
	require.ErrorIs(t, err, ErrEmptyVerdict)
	assert.Empty(t, speaker.calls, "nothing forwarded")
	assert.Empty(t, a.Utterances())
}

func TestArticulate_SpeakerErrorRecordedNotPropagated(t *testing.T) {
	speaker := &fakeSpeaker{err: errors.New("voice device offline")}
	a := New(speaker, nil)

	utterance, err := a.Articulate(context.Background(),
		types.Verdict{ID: "v-1", Value: "hello", Confidence: 0.5}, types.ConsensusNeutral, "")
	require.NoError(t, err, "delivery failure does not fail articulation")
	assert.Equal(t, "voice device offline", utterance.SpeakerError)
	assert.Equal(t, "hello", utterance.Text)

	recorded := a.Utterances()
	require.Len(t, recorded, 1)
	assert.Equal(t, "voice device offline", recorded[0].SpeakerError)
}

func TestArticulate_NilSpeakerRecordsOnly(t *testing.T) {
	a := New(nil, nil)

	utterance, err := a.Articulate(context.Background(),
		types.Verdict{ID: "v-1", Value: "quiet thought", Confidence: 0.4}, types.ConsensusNeutral, "")
	require.NoError(t, err)
	assert.Equal(t, "quiet thought", utterance.Text)
	assert.Len(t, a.Utterances(), 1)
}
