package metrics

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Series accumulates the values of one stage/kind pair.
type Series struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
}

func (s *Series) observe(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Sum += v
}

// Mean returns the average value, or 0 for an empty series.
func (s Series) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// SeriesKey identifies a Series in a SessionSummary.
type SeriesKey struct {
	Stage Stage
	Kind  Kind
}

func (k SeriesKey) String() string {
	return string(k.Stage) + "." + string(k.Kind)
}

// SessionSummary is the usage accumulated over one session.
type SessionSummary struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time

	Series map[SeriesKey]Series

	PromptTokens     int64
	CompletionTokens int64
	TTSCharacters    int64
	STTAudioSeconds  float64

	// Records is the number of records folded into the summary.
	Records int
	// Dropped is the number of records lost to a full buffer.
	Dropped int64
}

func newSummary(sessionID string, started time.Time) SessionSummary {
	return SessionSummary{
		SessionID: sessionID,
		StartedAt: started,
		Series:    make(map[SeriesKey]Series),
	}
}

func (s *SessionSummary) add(rec UsageRecord) {
	key := SeriesKey{Stage: rec.Stage, Kind: rec.Kind}
	series := s.Series[key]
	series.observe(rec.Value)
	s.Series[key] = series
	s.Records++

	switch {
	case rec.Kind == KindPromptTokens:
		s.PromptTokens += int64(rec.Value)
	case rec.Kind == KindCompletionTokens:
		s.CompletionTokens += int64(rec.Value)
	case rec.Kind == KindCharacters && rec.Stage == StageTTS:
		s.TTSCharacters += int64(rec.Value)
	case rec.Kind == KindAudioSeconds && rec.Stage == StageSTT:
		s.STTAudioSeconds += rec.Value
	}
}

func (s SessionSummary) clone() SessionSummary {
	out := s
	out.Series = make(map[SeriesKey]Series, len(s.Series))
	for k, v := range s.Series {
		out.Series[k] = v
	}
	return out
}

// Get returns the series for stage and kind. Missing series are empty.
func (s SessionSummary) Get(stage Stage, kind Kind) Series {
	return s.Series[SeriesKey{Stage: stage, Kind: kind}]
}

// Duration returns the wall time covered by the summary.
func (s SessionSummary) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Keys returns the series keys in a stable order.
func (s SessionSummary) Keys() []SeriesKey {
	keys := make([]SeriesKey, 0, len(s.Series))
	for k := range s.Series {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// String renders the totals on one line.
func (s SessionSummary) String() string {
	return fmt.Sprintf(
		"UsageSummary(llm_prompt_tokens=%d, llm_completion_tokens=%d, tts_characters_count=%d, stt_audio_duration=%.2f)",
		s.PromptTokens, s.CompletionTokens, s.TTSCharacters, s.STTAudioSeconds)
}

// LogValue implements slog.LogValuer.
func (s SessionSummary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("session_id", s.SessionID),
		slog.Duration("duration", s.Duration()),
		slog.Int64("llm_prompt_tokens", s.PromptTokens),
		slog.Int64("llm_completion_tokens", s.CompletionTokens),
		slog.Int64("tts_characters_count", s.TTSCharacters),
		slog.Float64("stt_audio_duration", s.STTAudioSeconds),
		slog.Int("records", s.Records),
		slog.Int64("dropped", s.Dropped),
	}
	for _, k := range s.Keys() {
		if !k.Kind.IsDuration() {
			continue
		}
		series := s.Series[k]
		attrs = append(attrs, slog.Group(k.String(),
			slog.Int("count", series.Count),
			slog.Float64("mean", series.Mean()),
			slog.Float64("min", series.Min),
			slog.Float64("max", series.Max),
		))
	}
	return slog.GroupValue(attrs...)
}
