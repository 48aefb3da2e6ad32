package mock

import (
	"context"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
)

// EOTModel returns a fixed end-of-turn probability after an optional delay.
type EOTModel struct {
	Probability float64
	Delay       time.Duration
	Err         error
}

var _ audio.EndOfTurnModel = (*EOTModel)(nil)

// NewEOTModel returns a model following script.
func NewEOTModel(script EOTScript) *EOTModel {
	return &EOTModel{Probability: script.Probability, Delay: script.Delay}
}

// Name implements audio.EndOfTurnModel.
func (m *EOTModel) Name() string { return "mock-eot" }

// PredictEndOfTurn implements audio.EndOfTurnModel.
func (m *EOTModel) PredictEndOfTurn(ctx context.Context, _ string) (float64, error) {
	if m.Delay > 0 {
		t := time.NewTimer(m.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.C:
		}
	}
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Probability, nil
}
