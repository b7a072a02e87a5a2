// Package articulator implements the outbound adapter: the final approved
// verdict leaves the loop through a Speaker. The articulator validates,
// records, and forwards; it holds no state of its own.
package articulator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"caleon/internal/types"
)

// ErrEmptyVerdict rejects articulation of an empty final verdict.
var ErrEmptyVerdict = errors.New("articulator: empty final verdict")

// Speaker is the outbound capability. Implementations may speak, print, or
// transmit; the articulator does not care which.
type Speaker interface {
	Speak(ctx context.Context, text, voiceStyle string) error
}

// Utterance is the record of one articulation: the exact text sent plus the
// verdict context it carried. SpeakerError notes a failed delivery; delivery
// failure never un-articulates the request.
type Utterance struct {
	Text         string          `json:"text"`
	VoiceStyle   string          `json:"voice_style,omitempty"`
	Verdict      string          `json:"verdict"`
	Consensus    types.Consensus `json:"consensus"`
	Confidence   float64         `json:"confidence"`
	SpeakerError string          `json:"speaker_error,omitempty"`
	SpokenAt     time.Time       `json:"spoken_at"`
}

// Articulator forwards approved verdicts to the speaker and keeps the
// utterance record.
type Articulator struct {
	speaker Speaker
	logger  *zap.Logger

	mu         sync.Mutex
	utterances []Utterance
}

// New builds an articulator. speaker may be nil; articulation is then
// record-only.
func New(speaker Speaker, logger *zap.Logger) *Articulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Articulator{speaker: speaker, logger: logger}
}

// Articulate validates the final verdict, forwards it to the speaker with the
// requested voice style, and records exactly what was sent. A speaker error
// is noted on the utterance and logged, not returned; the only error this
// method surfaces is an empty verdict.
func (a *Articulator) Articulate(ctx context.Context, verdict types.Verdict, consensus types.Consensus, voiceStyle string) (Utterance, error) {
	text := strings.TrimSpace(verdict.Value)
	if text == "" {
		return Utterance{}, ErrEmptyVerdict
	}

	utterance := Utterance{
		Text:       text,
		VoiceStyle: voiceStyle,
		Verdict:    verdict.ID,
		Consensus:  consensus,
		Confidence: verdict.Confidence,
		SpokenAt:   time.Now(),
	}

	if a.speaker != nil {
		if err := a.speaker.Speak(ctx, text, voiceStyle); err != nil {
			utterance.SpeakerError = err.Error()
			a.logger.Warn("speaker failed, utterance recorded anyway",
				zap.String("verdict_id", verdict.ID),
				zap.Error(err))
		}
	}

	a.mu.Lock()
	a.utterances = append(a.utterances, utterance)
	a.mu.Unlock()

	a.logger.Debug("verdict articulated",
		zap.String("verdict_id", verdict.ID),
		zap.String("consensus", string(consensus)),
		zap.Float64("confidence", verdict.Confidence))

	return utterance, nil
}

// Utterances returns a copy of everything articulated so far, in order.
func (a *Articulator) Utterances() []Utterance {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Utterance, len(a.utterances))
	copy(out, a.utterances)
	return out
}
