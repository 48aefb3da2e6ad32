package stt

import (
	"context"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
)

const (
	// DefaultSampleRate is the rate streams expect unless configured otherwise.
	DefaultSampleRate = audio.SampleRate16kHz
	// DefaultLanguage is the default recognition language.
	DefaultLanguage = "en"
)

// StreamingService opens incremental recognition streams.
// Implementations wrap a provider; the session only relies on this contract.
type StreamingService interface {
	// Name returns the provider identifier (for logging and metrics).
	Name() string

	// OpenStream starts a recognition stream. The stream lives until Close
	// is called, ctx is done or the provider fails.
	OpenStream(ctx context.Context, config StreamConfig) (Stream, error)
}

// Stream is one live recognition session.
type Stream interface {
	// Send pushes audio into the recognizer.
	Send(ctx context.Context, frame audio.Frame) error

	// Transcripts delivers interim and final results. The channel is closed
	// when the stream ends; Err then reports why.
	Transcripts() <-chan Transcript

	// Err returns the error that ended the stream, or nil after a clean Close.
	Err() error

	// Close ends the stream and releases provider resources.
	Close() error
}

// Transcript is a recognition result.
type Transcript struct {
	Text  string
	Final bool

	// AudioDuration is the length of audio this result covers. Final
	// results report it so usage can be accounted.
	AudioDuration time.Duration

	// Confidence is the provider's score when it reports one.
	Confidence float64
}

// StreamConfig configures a recognition stream.
type StreamConfig struct {
	// SampleRate of frames passed to Send.
	SampleRate int `yaml:"sample_rate"`

	// Language hint (e.g. "en").
	Language string `yaml:"language"`

	// Model is the provider-specific model name.
	Model string `yaml:"model"`

	// Keywords boost domain vocabulary (drink names, milk types).
	Keywords []string `yaml:"keywords"`
}

// DefaultStreamConfig returns sensible defaults for recognition.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate: DefaultSampleRate,
		Language:   DefaultLanguage,
	}
}
