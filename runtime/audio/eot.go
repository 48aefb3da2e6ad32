package audio

import (
	"context"
	"strings"
)

// EndOfTurnModel estimates whether a customer has finished speaking given
// the transcript so far. Probabilities are in [0, 1].
type EndOfTurnModel interface {
	Name() string
	PredictEndOfTurn(ctx context.Context, transcript string) (float64, error)
}

// Probabilities returned by HeuristicEOTModel.
const (
	HeuristicEOTComplete   = 0.9
	HeuristicEOTNeutral    = 0.6
	HeuristicEOTIncomplete = 0.15
)

// trailingIncomplete are words that rarely end a finished request.
var trailingIncomplete = map[string]struct{}{
	"and": {}, "with": {}, "or": {}, "but": {}, "a": {}, "an": {}, "the": {},
	"um": {}, "uh": {}, "er": {}, "like": {}, "some": {}, "of": {},
}

// HeuristicEOTModel is a lexical end-of-turn model. Terminal punctuation
// signals a finished turn; a trailing connective or filler signals the
// customer is still going.
type HeuristicEOTModel struct{}

// Name returns the model identifier.
func (HeuristicEOTModel) Name() string { return "heuristic" }

// PredictEndOfTurn scores transcript.
func (HeuristicEOTModel) PredictEndOfTurn(ctx context.Context, transcript string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	text := strings.TrimSpace(transcript)
	if text == "" {
		return 0, nil
	}

	switch text[len(text)-1] {
	case '.', '!', '?':
		return HeuristicEOTComplete, nil
	case ',', '-':
		return HeuristicEOTIncomplete, nil
	}

	fields := strings.Fields(strings.ToLower(text))
	if _, ok := trailingIncomplete[fields[len(fields)-1]]; ok {
		return HeuristicEOTIncomplete, nil
	}
	return HeuristicEOTNeutral, nil
}
