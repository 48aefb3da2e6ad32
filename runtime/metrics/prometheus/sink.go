package prometheus

import (
	"github.com/AltairaLabs/voicebarista/runtime/metrics"
)

// Sink records every usage record folded by a session aggregator.
type Sink struct{}

// NewSink creates a new Sink.
func NewSink() *Sink {
	return &Sink{}
}

// Observe implements metrics.Sink.
func (*Sink) Observe(rec metrics.UsageRecord) {
	RecordUsage(rec)
}

var _ metrics.Sink = (*Sink)(nil)
