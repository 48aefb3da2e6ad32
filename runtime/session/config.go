// Package session runs one customer's voice ordering session.
//
// An Orchestrator wires a SpeechChannel to turn detection, recognition,
// the dialogue adapter and paced speech output. Everything it owns lives for
// one session; the warm VAD model, the order store and the event bus are
// borrowed from the caller. Shutdown always finalizes usage metrics exactly
// once, after every goroutine of the session has stopped.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/dialogue"
	"github.com/AltairaLabs/voicebarista/runtime/events"
	"github.com/AltairaLabs/voicebarista/runtime/metrics"
	"github.com/AltairaLabs/voicebarista/runtime/stt"
	"github.com/AltairaLabs/voicebarista/runtime/tools"
	"github.com/AltairaLabs/voicebarista/runtime/tts"
)

// Defaults for Config.
const (
	DefaultMaxFollowUps    = 3
	DefaultMaxSTTRestarts  = 5
	DefaultSTTRestartDelay = 250 * time.Millisecond
	DefaultSampleRate      = audio.SampleRate16kHz
)

// Config tunes one session.
type Config struct {
	// SessionID identifies the session. A random ID is generated when empty.
	SessionID string `yaml:"-"`

	// Room is the transport room, used for logging only.
	Room string `yaml:"-"`

	// SampleRate is the rate frames are converted to before VAD and STT.
	SampleRate int `yaml:"sample_rate"`

	// PreemptiveGeneration starts generating as soon as speech pauses,
	// before the end of turn is confirmed.
	PreemptiveGeneration bool `yaml:"preemptive_generation"`

	// MaxFollowUps caps consecutive generations without customer speech
	// (tool result follow-ups).
	MaxFollowUps int `yaml:"max_follow_ups"`

	// MaxSTTRestarts is how many times a failed recognition stream is
	// reopened in a row before the session gives up.
	MaxSTTRestarts int `yaml:"max_stt_restarts"`

	// STTRestartDelay is the first backoff before reopening recognition.
	STTRestartDelay time.Duration `yaml:"stt_restart_delay"`

	Turn     audio.TurnConfig `yaml:"turn"`
	STT      stt.StreamConfig `yaml:"stt"`
	Speech   tts.PacerConfig  `yaml:"speech"`
	Dialogue dialogue.Config  `yaml:"dialogue"`

	// MetricsBuffer is the usage record queue size.
	MetricsBuffer int `yaml:"metrics_buffer"`
}

// DefaultConfig mirrors the production agent: preemptive generation on and
// text-paced speech.
func DefaultConfig() Config {
	return Config{
		SampleRate:           DefaultSampleRate,
		PreemptiveGeneration: true,
		MaxFollowUps:         DefaultMaxFollowUps,
		MaxSTTRestarts:       DefaultMaxSTTRestarts,
		STTRestartDelay:      DefaultSTTRestartDelay,
		Turn:                 audio.DefaultTurnConfig(),
		STT:                  stt.DefaultStreamConfig(),
		Speech:               tts.DefaultPacerConfig(),
		Dialogue:             dialogue.DefaultConfig(),
		MetricsBuffer:        metrics.DefaultBufferSize,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.MaxFollowUps <= 0 {
		c.MaxFollowUps = d.MaxFollowUps
	}
	if c.MaxSTTRestarts <= 0 {
		c.MaxSTTRestarts = d.MaxSTTRestarts
	}
	if c.STTRestartDelay <= 0 {
		c.STTRestartDelay = d.STTRestartDelay
	}
	if c.STT.SampleRate <= 0 {
		c.STT.SampleRate = c.SampleRate
	}
	if c.MetricsBuffer <= 0 {
		c.MetricsBuffer = d.MetricsBuffer
	}
}

// ShutdownHook receives the final usage summary of a session.
type ShutdownHook func(ctx context.Context, summary metrics.SessionSummary)

// Dependencies are the collaborators a session borrows.
type Dependencies struct {
	Channel audio.SpeechChannel
	VAD     audio.VADModel
	Engine  dialogue.Engine
	STT     stt.StreamingService
	TTS     tts.StreamingService
	Gate    *tools.Gate

	// EOT may be nil, in which case every pause waits the maximum
	// endpointing delay.
	EOT audio.EndOfTurnModel

	// Filter defaults to audio.PassthroughFilter.
	Filter audio.NoiseFilter

	// Events receives session events. It may be nil.
	Events *events.EventBus

	// Sinks observe every usage record as it is folded.
	Sinks []metrics.Sink

	// OnShutdown hooks run once, after the summary is final.
	OnShutdown []ShutdownHook

	Logger *slog.Logger
}

func (d *Dependencies) validate() error {
	var missing []string
	if d.Channel == nil {
		missing = append(missing, "channel")
	}
	if d.VAD == nil {
		missing = append(missing, "vad")
	}
	if d.Engine == nil {
		missing = append(missing, "engine")
	}
	if d.STT == nil {
		missing = append(missing, "stt")
	}
	if d.TTS == nil {
		missing = append(missing, "tts")
	}
	if d.Gate == nil {
		missing = append(missing, "gate")
	}
	if len(missing) > 0 {
		return &MissingDependencyError{Names: missing}
	}
	return nil
}

// MissingDependencyError is returned by New when required collaborators are nil.
type MissingDependencyError struct {
	Names []string
}

func (e *MissingDependencyError) Error() string {
	return "session: missing dependencies: " + strings.Join(e.Names, ", ")
}
