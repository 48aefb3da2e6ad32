package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrServiceUnavailable is returned when the provider cannot be reached.
	ErrServiceUnavailable = errors.New("tts service unavailable")
)

// SynthesisError is a provider failure while speaking one sentence.
type SynthesisError struct {
	Provider string
	Code     string
	Message  string

	// Sentence is the text being synthesized when the provider failed.
	// Empty when the failure happened before synthesis started.
	Sentence string

	Cause error
}

// NewSynthesisError creates a SynthesisError.
func NewSynthesisError(provider, code, message string, cause error) *SynthesisError {
	return &SynthesisError{Provider: provider, Code: code, Message: message, Cause: cause}
}

func (e *SynthesisError) Error() string {
	msg := e.Provider + " synthesis error"
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	msg += ": " + e.Message
	if e.Sentence != "" {
		msg += fmt.Sprintf(" (sentence %q)", e.Sentence)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}
