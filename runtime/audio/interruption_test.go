package audio

import (
	"testing"
)

func TestInterruptionStrategy_String(t *testing.T) {
	tests := []struct {
		strategy InterruptionStrategy
		want     string
	}{
		{InterruptionIgnore, "ignore"},
		{InterruptionImmediate, "immediate"},
		{InterruptionDeferred, "deferred"},
		{InterruptionStrategy(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.strategy.String(); got != tt.want {
				t.Errorf("InterruptionStrategy.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseInterruptionStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    InterruptionStrategy
		wantErr bool
	}{
		{"", InterruptionImmediate, false},
		{"Immediate", InterruptionImmediate, false},
		{"ignore", InterruptionIgnore, false},
		{" deferred ", InterruptionDeferred, false},
		{"sometimes", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterruptionStrategy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInterruptionStrategy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseInterruptionStrategy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	var s InterruptionStrategy
	if err := s.UnmarshalText([]byte("deferred")); err != nil || s != InterruptionDeferred {
		t.Errorf("UnmarshalText() = %v, %v", s, err)
	}
}

func TestInterruptionHandler_SetAgentSpeaking(t *testing.T) {
	h := NewInterruptionHandler(InterruptionImmediate)

	if h.IsAgentSpeaking() {
		t.Error("IsAgentSpeaking() should be false initially")
	}
	h.SetAgentSpeaking(true)
	if !h.IsAgentSpeaking() {
		t.Error("IsAgentSpeaking() should be true after SetAgentSpeaking(true)")
	}
	h.SetAgentSpeaking(false)
	if h.IsAgentSpeaking() {
		t.Error("IsAgentSpeaking() should be false after SetAgentSpeaking(false)")
	}
}

func TestInterruptionHandler_IgnoreStrategy(t *testing.T) {
	h := NewInterruptionHandler(InterruptionIgnore)
	h.SetAgentSpeaking(true)

	if h.ProcessVADState(VADStateSpeaking) {
		t.Error("InterruptionIgnore should not trigger interruption")
	}
	if h.NotifySentenceBoundary() {
		t.Error("InterruptionIgnore should not defer an interruption")
	}
}

func TestInterruptionHandler_ImmediateStrategy(t *testing.T) {
	h := NewInterruptionHandler(InterruptionImmediate)

	if h.ProcessVADState(VADStateSpeaking) {
		t.Error("should not interrupt when agent is not speaking")
	}

	h.SetAgentSpeaking(true)
	if h.ProcessVADState(VADStateStarting) {
		t.Error("should not interrupt before speech is confirmed")
	}
	if !h.ProcessVADState(VADStateSpeaking) {
		t.Error("should interrupt when both speaking")
	}
	if !h.WasInterrupted() {
		t.Error("WasInterrupted() should be true after interruption")
	}
	if h.ProcessVADState(VADStateSpeaking) {
		t.Error("a speaking period should only be interrupted once")
	}
}

func TestInterruptionHandler_RearmsOnNewSpeakingPeriod(t *testing.T) {
	h := NewInterruptionHandler(InterruptionImmediate)
	h.SetAgentSpeaking(true)
	h.ProcessVADState(VADStateSpeaking)
	h.SetAgentSpeaking(false)

	h.SetAgentSpeaking(true)
	if h.WasInterrupted() {
		t.Error("WasInterrupted() should reset when the agent starts speaking again")
	}
	if !h.ProcessVADState(VADStateSpeaking) {
		t.Error("second speaking period should be interruptible")
	}
}

func TestInterruptionHandler_DeferredStrategy(t *testing.T) {
	h := NewInterruptionHandler(InterruptionDeferred)
	h.SetAgentSpeaking(true)

	if h.ProcessVADState(VADStateSpeaking) {
		t.Error("deferred strategy should not interrupt immediately")
	}
	if !h.NotifySentenceBoundary() {
		t.Error("sentence boundary should fire the deferred interruption")
	}
	if !h.WasInterrupted() {
		t.Error("WasInterrupted() should be true after deferred interruption")
	}
	if h.NotifySentenceBoundary() {
		t.Error("deferred interruption should fire once")
	}
}

func TestInterruptionHandler_DeferredDroppedWhenAgentStops(t *testing.T) {
	h := NewInterruptionHandler(InterruptionDeferred)
	h.SetAgentSpeaking(true)
	h.ProcessVADState(VADStateSpeaking)

	h.SetAgentSpeaking(false)
	if h.NotifySentenceBoundary() {
		t.Error("pending interruption should be dropped once the agent is silent")
	}
}

func TestInterruptionHandler_Reset(t *testing.T) {
	h := NewInterruptionHandler(InterruptionImmediate)
	h.SetAgentSpeaking(true)
	h.ProcessVADState(VADStateSpeaking)

	h.Reset()

	if h.IsAgentSpeaking() {
		t.Error("IsAgentSpeaking() should be false after Reset()")
	}
	if h.WasInterrupted() {
		t.Error("WasInterrupted() should be false after Reset()")
	}
}

func TestInterruptionStrategy_Text(t *testing.T) {
	var s InterruptionStrategy
	if err := s.UnmarshalText([]byte("Deferred")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if s != InterruptionDeferred {
		t.Errorf("UnmarshalText() = %v, want deferred", s)
	}
	text, err := InterruptionIgnore.MarshalText()
	if err != nil || string(text) != "ignore" {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}
	if err := s.UnmarshalText([]byte("sometimes")); err == nil {
		t.Error("UnmarshalText() should reject unknown names")
	}
}
