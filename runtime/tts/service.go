package tts

import (
	"context"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
)

// StreamingService converts text to speech with streaming output.
// Audio is always mono 16-bit little-endian PCM at the configured rate.
type StreamingService interface {
	// Name returns the provider identifier (for logging and metrics).
	Name() string

	// SynthesizeStream converts text to audio.
	// Returns a channel that receives audio chunks as they're generated.
	// The channel is closed when synthesis completes, fails or ctx is done;
	// cancelling ctx stops synthesis mid-stream.
	SynthesizeStream(ctx context.Context, text string, config SynthesisConfig) (<-chan AudioChunk, error)
}

// AudioChunk represents a chunk of synthesized audio data.
type AudioChunk struct {
	// Data is raw PCM.
	Data []byte

	// Index is the chunk sequence number (0-indexed).
	Index int

	// Final indicates this is the last chunk.
	Final bool

	// Error is set if an error occurred during synthesis.
	Error error
}

// SynthesisConfig configures text-to-speech synthesis.
type SynthesisConfig struct {
	// Voice is the provider-specific voice ID.
	Voice string `yaml:"voice"`

	// SampleRate of the produced PCM.
	SampleRate int `yaml:"sample_rate"`

	// Speed is the speech rate multiplier (default 1.0).
	Speed float64 `yaml:"speed"`

	// Language is the language code for synthesis (e.g., "en-US").
	Language string `yaml:"language"`

	// Model is the TTS model to use (provider-specific).
	Model string `yaml:"model"`
}

// DefaultSynthesisConfig returns sensible defaults for synthesis.
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		SampleRate: audio.SampleRate24kHz,
		Speed:      1.0,
		Language:   "en",
	}
}
