package metrics

import (
	"context"
	"log/slog"

	"github.com/AltairaLabs/voicebarista/runtime/logger"
)

// Sink receives every record folded into an Aggregator. Sinks are called
// from the aggregator's goroutine and must not block.
type Sink interface {
	Observe(rec UsageRecord)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec UsageRecord)

// Observe calls f(rec).
func (f SinkFunc) Observe(rec UsageRecord) { f(rec) }

// LogSink logs each record at debug level.
type LogSink struct {
	ctx context.Context //nolint:containedctx // carries session log fields
	log *slog.Logger
}

// NewLogSink returns a sink writing to log with the fields carried by ctx.
func NewLogSink(ctx context.Context, log *slog.Logger) *LogSink {
	return &LogSink{ctx: ctx, log: logger.OrDiscard(log)}
}

// Observe implements Sink.
func (s *LogSink) Observe(rec UsageRecord) {
	s.log.DebugContext(s.ctx, "metrics collected",
		"stage", rec.Stage,
		"kind", rec.Kind,
		"provider", rec.Provider,
		"value", rec.Value,
	)
}
