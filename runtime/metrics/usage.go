// Package metrics accumulates provider usage for a single session.
//
// Providers report UsageRecords as they happen (speech-to-text latency,
// language-model tokens, synthesized characters, ...). An Aggregator folds
// them into a SessionSummary without ever blocking the reporter, fans each
// record out to any registered Sinks, and produces the final summary once
// when the session shuts down.
package metrics

import (
	"time"
)

// Stage identifies the provider stage that produced a measurement.
type Stage string

// Provider stages.
const (
	StageSTT  Stage = "stt"
	StageLLM  Stage = "llm"
	StageTTS  Stage = "tts"
	StageEOU  Stage = "eou"
	StageTool Stage = "tool"
)

// Kind identifies what a measurement counts.
type Kind string

// Measurement kinds. Durations are reported in seconds.
const (
	KindLatency          Kind = "latency"
	KindTTFT             Kind = "ttft"
	KindTTFB             Kind = "ttfb"
	KindPromptTokens     Kind = "prompt_tokens"
	KindCompletionTokens Kind = "completion_tokens"
	KindCharacters       Kind = "characters"
	KindAudioSeconds     Kind = "audio_seconds"
)

// IsDuration reports whether values of this kind are durations in seconds.
func (k Kind) IsDuration() bool {
	switch k {
	case KindLatency, KindTTFT, KindTTFB:
		return true
	default:
		return false
	}
}

// UsageRecord is a single measurement reported by a provider stage.
type UsageRecord struct {
	Stage     Stage
	Kind      Kind
	Provider  string
	Value     float64
	Timestamp time.Time
}

// Duration builds a duration record for stage, in seconds.
func Duration(stage Stage, kind Kind, provider string, d time.Duration) UsageRecord {
	return UsageRecord{Stage: stage, Kind: kind, Provider: provider, Value: d.Seconds()}
}

// Count builds a counting record for stage.
func Count(stage Stage, kind Kind, provider string, n float64) UsageRecord {
	return UsageRecord{Stage: stage, Kind: kind, Provider: provider, Value: n}
}
