package stt

import (
	"errors"
	"fmt"
)

// Common errors for STT services.
var (
	// ErrStreamClosed is returned by Send after the stream has ended.
	ErrStreamClosed = errors.New("stt stream closed")

	// ErrInvalidFormat is returned when frames do not match the stream's
	// sample rate. Reopening the stream cannot fix it.
	ErrInvalidFormat = errors.New("unsupported audio format")
)

// TranscriptionError represents an error during transcription.
type TranscriptionError struct {
	// Provider is the STT provider name.
	Provider string

	// Code is the provider-specific error code.
	Code string

	// Message is a human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether reopening the stream may succeed.
	Retryable bool
}

// NewTranscriptionError creates a new TranscriptionError.
func NewTranscriptionError(provider, code, message string, cause error, retryable bool) *TranscriptionError {
	return &TranscriptionError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s transcription error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s transcription error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *TranscriptionError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a TranscriptionError marked retryable.
func IsRetryable(err error) bool {
	var te *TranscriptionError
	return errors.As(err, &te) && te.Retryable
}

// IsPermanent reports whether err is a TranscriptionError the provider marked
// as not retryable. Errors that are not TranscriptionErrors are transient.
func IsPermanent(err error) bool {
	var te *TranscriptionError
	return errors.As(err, &te) && !te.Retryable
}
