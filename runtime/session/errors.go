package session

import (
	"errors"
	"fmt"

	"github.com/AltairaLabs/voicebarista/runtime/metrics"
)

// ErrAlreadyRunning is returned when Run is called on a session twice.
var ErrAlreadyRunning = errors.New("session: already running")

// errSessionEnded stops the session group once the agent said goodbye.
var errSessionEnded = errors.New("session ended by dialogue")

// ProviderError reports a failure of an external speech or language provider.
// It is fatal to the turn, not to the session.
type ProviderError struct {
	Stage    metrics.Stage
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider %s failed: %v", e.Stage, e.Provider, e.Err)
}

// Unwrap returns the provider's error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered panic from one of the session's goroutines.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("session: %s panicked: %v", e.Task, e.Value)
}

// End reasons reported in session.ended events and metrics.
const (
	ReasonCompleted = "completed"
	ReasonHangup    = "hangup"
	ReasonCancelled = "cancelled"
	ReasonError     = "error"
)
