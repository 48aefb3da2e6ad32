package audio

import (
	"context"
	"time"
)

// Default VAD parameter values.
const (
	DefaultVADConfidence = 0.5
	DefaultVADStartSecs  = 0.2
	DefaultVADStopSecs   = 0.5
	DefaultVADMinVolume  = 0.01
	DefaultVADSampleRate = 16000
)

const unknownState = "unknown"

// VADState represents the current voice activity state.
type VADState int

const (
	// VADStateQuiet indicates no voice activity detected.
	VADStateQuiet VADState = iota
	// VADStateStarting indicates voice is starting (within start threshold).
	VADStateStarting
	// VADStateSpeaking indicates active speech.
	VADStateSpeaking
	// VADStateStopping indicates voice is stopping (within stop threshold).
	VADStateStopping
)

// String returns a human-readable representation of the VAD state.
func (s VADState) String() string {
	switch s {
	case VADStateQuiet:
		return "quiet"
	case VADStateStarting:
		return "starting"
	case VADStateSpeaking:
		return "speaking"
	case VADStateStopping:
		return "stopping"
	default:
		return unknownState
	}
}

// VADParams configures voice activity detection behavior.
type VADParams struct {
	// Confidence threshold for voice detection (0.0-1.0, default: 0.5).
	Confidence float64 `yaml:"confidence"`

	// StartSecs is seconds of speech required to reach VADStateSpeaking (default: 0.2).
	StartSecs float64 `yaml:"start_secs"`

	// StopSecs is seconds of silence required to fall back to VADStateQuiet (default: 0.5).
	StopSecs float64 `yaml:"stop_secs"`

	// MinVolume is the minimum RMS volume threshold (default: 0.01).
	MinVolume float64 `yaml:"min_volume"`

	// SampleRate is the audio sample rate in Hz (default: 16000).
	SampleRate int `yaml:"sample_rate"`
}

// DefaultVADParams returns sensible defaults for voice activity detection.
func DefaultVADParams() VADParams {
	return VADParams{
		Confidence: DefaultVADConfidence,
		StartSecs:  DefaultVADStartSecs,
		StopSecs:   DefaultVADStopSecs,
		MinVolume:  DefaultVADMinVolume,
		SampleRate: DefaultVADSampleRate,
	}
}

// Validate checks that VAD parameters are within acceptable ranges.
func (p VADParams) Validate() error {
	if p.Confidence < 0 || p.Confidence > 1 {
		return &ValidationError{Field: "Confidence", Message: "must be between 0.0 and 1.0"}
	}
	if p.StartSecs < 0 {
		return &ValidationError{Field: "StartSecs", Message: "must be non-negative"}
	}
	if p.StopSecs < 0 {
		return &ValidationError{Field: "StopSecs", Message: "must be non-negative"}
	}
	if p.MinVolume < 0 || p.MinVolume > 1 {
		return &ValidationError{Field: "MinVolume", Message: "must be between 0.0 and 1.0"}
	}
	if p.SampleRate <= 0 {
		return &ValidationError{Field: "SampleRate", Message: "must be positive"}
	}
	return nil
}

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

// VADAnalyzer analyzes audio for voice activity. An analyzer carries
// per-stream state and belongs to a single session.
type VADAnalyzer interface {
	// Name returns the analyzer identifier.
	Name() string

	// Analyze processes audio and returns voice probability (0.0-1.0).
	// audio should be raw PCM samples at the configured sample rate.
	Analyze(ctx context.Context, audio []byte) (float64, error)

	// State returns the current VAD state based on accumulated analysis.
	State() VADState

	// Reset clears accumulated state for a new conversation.
	Reset()
}

// VADModel is the warm, process-wide side of voice activity detection.
// It is loaded once by the worker and hands each session its own analyzer.
type VADModel interface {
	// Name returns the model identifier.
	Name() string

	// NewAnalyzer returns a fresh analyzer bound to this model.
	NewAnalyzer() (VADAnalyzer, error)
}

// SimpleVADModel produces SimpleVAD analyzers sharing one parameter set.
type SimpleVADModel struct {
	params VADParams
}

// LoadSimpleVADModel validates params and returns a model ready to serve sessions.
func LoadSimpleVADModel(params VADParams) (*SimpleVADModel, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &SimpleVADModel{params: params}, nil
}

// Name returns the model identifier.
func (m *SimpleVADModel) Name() string {
	return simpleVADName
}

// Params returns the parameters every analyzer is built with.
func (m *SimpleVADModel) Params() VADParams {
	return m.params
}

// NewAnalyzer returns a new SimpleVAD.
func (m *SimpleVADModel) NewAnalyzer() (VADAnalyzer, error) {
	return NewSimpleVAD(m.params)
}

// secsToDuration converts fractional seconds to a duration.
func secsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
