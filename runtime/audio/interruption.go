package audio

import (
	"fmt"
	"strings"
	"sync"
)

// InterruptionStrategy determines how to handle a customer talking over the agent.
type InterruptionStrategy int

const (
	// InterruptionIgnore ignores customer speech during agent output.
	InterruptionIgnore InterruptionStrategy = iota
	// InterruptionImmediate stops the agent as soon as speech is confirmed.
	InterruptionImmediate
	// InterruptionDeferred lets the agent finish its current sentence first.
	InterruptionDeferred
)

// String returns a human-readable representation of the interruption strategy.
func (s InterruptionStrategy) String() string {
	switch s {
	case InterruptionIgnore:
		return "ignore"
	case InterruptionImmediate:
		return "immediate"
	case InterruptionDeferred:
		return "deferred"
	default:
		return unknownState
	}
}

// MarshalText implements encoding.TextMarshaler so configs carry the name.
func (s InterruptionStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *InterruptionStrategy) UnmarshalText(text []byte) error {
	v, err := ParseInterruptionStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseInterruptionStrategy parses a strategy name. An empty name means immediate.
func ParseInterruptionStrategy(name string) (InterruptionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "immediate":
		return InterruptionImmediate, nil
	case "ignore":
		return InterruptionIgnore, nil
	case "deferred":
		return InterruptionDeferred, nil
	default:
		return 0, fmt.Errorf("unknown interruption strategy %q", name)
	}
}

// InterruptionHandler decides when customer speech should cut agent output.
// It holds no audio state; callers feed it VAD states.
type InterruptionHandler struct {
	strategy InterruptionStrategy

	mu              sync.RWMutex
	agentSpeaking   bool
	interrupted     bool
	deferredPending bool
}

// NewInterruptionHandler creates an InterruptionHandler with the given strategy.
func NewInterruptionHandler(strategy InterruptionStrategy) *InterruptionHandler {
	return &InterruptionHandler{strategy: strategy}
}

// Strategy returns the configured strategy.
func (h *InterruptionHandler) Strategy() InterruptionStrategy {
	return h.strategy
}

// SetAgentSpeaking sets whether the agent is currently outputting audio.
// A new speaking period re-arms interruption detection; the end of one
// drops any deferred interruption since there is nothing left to cut.
func (h *InterruptionHandler) SetAgentSpeaking(speaking bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if speaking && !h.agentSpeaking {
		h.interrupted = false
	}
	if !speaking {
		h.deferredPending = false
	}
	h.agentSpeaking = speaking
}

// IsAgentSpeaking returns true if the agent is currently outputting audio.
func (h *InterruptionHandler) IsAgentSpeaking() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.agentSpeaking
}

// ProcessVADState processes a VAD state update.
// Returns true if an interruption was detected and should be acted upon now.
func (h *InterruptionHandler) ProcessVADState(state VADState) bool {
	if state != VADStateSpeaking {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.agentSpeaking || h.interrupted {
		return false
	}

	switch h.strategy {
	case InterruptionImmediate:
		h.interrupted = true
		return true
	case InterruptionDeferred:
		h.deferredPending = true
		return false
	default:
		return false
	}
}

// NotifySentenceBoundary tells the handler the agent finished a sentence.
// Returns true when a deferred interruption fires as a result.
func (h *InterruptionHandler) NotifySentenceBoundary() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.deferredPending {
		return false
	}
	h.deferredPending = false
	h.interrupted = true
	return true
}

// WasInterrupted returns true if the current speaking period was interrupted.
func (h *InterruptionHandler) WasInterrupted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.interrupted
}

// Reset clears interruption state.
func (h *InterruptionHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.agentSpeaking = false
	h.interrupted = false
	h.deferredPending = false
}
