package audio

import (
	"context"
	"testing"
)

func TestHeuristicEOTModel(t *testing.T) {
	tests := []struct {
		transcript string
		want       float64
	}{
		{"", 0},
		{"   ", 0},
		{"A large latte please.", HeuristicEOTComplete},
		{"Can I get a mocha?", HeuristicEOTComplete},
		{"I'd like a latte with", HeuristicEOTIncomplete},
		{"oat milk and", HeuristicEOTIncomplete},
		{"a cappuccino, um", HeuristicEOTIncomplete},
		{"medium,", HeuristicEOTIncomplete},
		{"oat milk", HeuristicEOTNeutral},
	}

	m := HeuristicEOTModel{}
	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			got, err := m.PredictEndOfTurn(context.Background(), tt.transcript)
			if err != nil {
				t.Fatalf("PredictEndOfTurn() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("PredictEndOfTurn(%q) = %v, want %v", tt.transcript, got, tt.want)
			}
		})
	}
}

func TestHeuristicEOTModel_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (HeuristicEOTModel{}).PredictEndOfTurn(ctx, "hi."); err == nil {
		t.Error("PredictEndOfTurn() should honour canceled context")
	}
}
