package telemetry

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/voicebarista/runtime/events"
)

// Span names.
const (
	SpanSession    = "barista.session"
	SpanGeneration = "barista.generation"
	SpanSaveOrder  = "barista.tool.save_order"
)

type sessionState struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// SessionSpanListener converts session events into OTel spans: one root span
// per session, a child span per generation and per save request, and span
// events for turns, barge-ins and provider failures. It is safe for
// concurrent use and can be passed to EventBus.SubscribeAll.
type SessionSpanListener struct {
	tracer trace.Tracer

	mu       sync.Mutex
	sessions map[string]*sessionState
	inflight map[string]trace.Span // "<session>/gen/<turn>" or "<session>/save/<turn>"
}

// NewSessionSpanListener creates a listener that creates spans with tracer.
func NewSessionSpanListener(tracer trace.Tracer) *SessionSpanListener {
	return &SessionSpanListener{
		tracer:   tracer,
		sessions: make(map[string]*sessionState),
		inflight: make(map[string]trace.Span),
	}
}

// StartSession opens the root span for a session, parented under any span
// in parentCtx, and returns a context carrying it.
func (l *SessionSpanListener) StartSession(parentCtx context.Context, sessionID, room string) context.Context {
	ctx, span := l.tracer.Start(parentCtx, SpanSession,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("session.room", room),
		),
	)
	l.mu.Lock()
	l.sessions[sessionID] = &sessionState{span: span, ctx: ctx}
	l.mu.Unlock()
	return ctx
}

// EndSession ends the root span for a session and any child span left open.
func (l *SessionSpanListener) EndSession(sessionID string) {
	l.mu.Lock()
	ss, ok := l.sessions[sessionID]
	delete(l.sessions, sessionID)
	var orphans []trace.Span
	prefix := sessionID + "/"
	for key, span := range l.inflight {
		if strings.HasPrefix(key, prefix) {
			orphans = append(orphans, span)
			delete(l.inflight, key)
		}
	}
	l.mu.Unlock()

	for _, span := range orphans {
		span.SetStatus(codes.Error, "session ended")
		span.End()
	}
	if ok {
		ss.span.End()
	}
}

// OnEvent handles a single session event.
func (l *SessionSpanListener) OnEvent(evt *events.Event) {
	//nolint:exhaustive // only span-producing events
	switch evt.Type {
	case events.EventGenerationStarted:
		l.startGeneration(evt)
	case events.EventGenerationCompleted, events.EventGenerationFailed, events.EventGenerationDiscarded:
		l.endGeneration(evt)
	case events.EventOrderSaveStarted:
		l.startSpan(evt, saveKey(evt), SpanSaveOrder, attribute.String("tool.name", "save_order"))
	case events.EventOrderSaveCompleted:
		l.endSave(evt)
	case events.EventUtteranceCommitted:
		l.utteranceCommitted(evt)
	case events.EventBargeIn:
		l.addSessionEvent(evt, "barge_in")
	case events.EventProviderFailed:
		l.providerFailed(evt)
	case events.EventSessionEnded:
		l.sessionEnded(evt)
	}
}

func genKey(evt *events.Event) string  { return evt.SessionID + "/gen/" + evt.TurnID }
func saveKey(evt *events.Event) string { return evt.SessionID + "/save/" + evt.TurnID }

func (l *SessionSpanListener) sessionSpan(sessionID string) (context.Context, trace.Span) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ss, ok := l.sessions[sessionID]; ok {
		return ss.ctx, ss.span
	}
	return context.Background(), nil
}

func (l *SessionSpanListener) startSpan(evt *events.Event, key, name string, attrs ...attribute.KeyValue) {
	parent, _ := l.sessionSpan(evt.SessionID)
	attrs = append(attrs, attribute.String("turn.id", evt.TurnID))
	_, span := l.tracer.Start(parent, name,
		trace.WithTimestamp(evt.Timestamp),
		trace.WithAttributes(attrs...),
	)

	l.mu.Lock()
	prev := l.inflight[key]
	l.inflight[key] = span
	l.mu.Unlock()

	if prev != nil {
		prev.SetAttributes(attribute.Bool("superseded", true))
		prev.End()
	}
}

func (l *SessionSpanListener) takeSpan(key string) trace.Span {
	l.mu.Lock()
	defer l.mu.Unlock()
	span := l.inflight[key]
	delete(l.inflight, key)
	return span
}

func (l *SessionSpanListener) startGeneration(evt *events.Event) {
	data, ok := evt.Data.(*events.GenerationData)
	if !ok {
		return
	}
	l.startSpan(evt, genKey(evt), SpanGeneration,
		attribute.String("generation.provider", data.Provider),
		attribute.Bool("generation.speculative", data.Speculative),
	)
}

func (l *SessionSpanListener) endGeneration(evt *events.Event) {
	data, ok := evt.Data.(*events.GenerationData)
	if !ok {
		return
	}
	span := l.takeSpan(genKey(evt))
	if span == nil {
		return
	}
	//nolint:exhaustive // only generation outcomes reach here
	switch evt.Type {
	case events.EventGenerationCompleted:
		span.SetAttributes(attribute.String("generation.result", data.Result))
		span.SetStatus(codes.Ok, "")
	case events.EventGenerationFailed:
		if data.Error != nil {
			span.RecordError(data.Error)
			span.SetStatus(codes.Error, data.Error.Error())
		}
	case events.EventGenerationDiscarded:
		span.SetAttributes(attribute.Bool("generation.discarded", true))
	}
	span.End(trace.WithTimestamp(evt.Timestamp))
}

func (l *SessionSpanListener) endSave(evt *events.Event) {
	data, ok := evt.Data.(*events.OrderSaveData)
	if !ok {
		return
	}
	span := l.takeSpan(saveKey(evt))
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.String("order.status", data.Status),
		attribute.String("order.backend", data.Backend),
		attribute.String("order.id", data.OrderID),
	)
	if data.Error != nil {
		span.RecordError(data.Error)
	}
	if data.Status == "ok" {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, data.Status)
	}
	span.End(trace.WithTimestamp(evt.Timestamp))
}

func (l *SessionSpanListener) addSessionEvent(evt *events.Event, name string, attrs ...attribute.KeyValue) {
	_, span := l.sessionSpan(evt.SessionID)
	if span == nil {
		return
	}
	attrs = append(attrs, attribute.String("turn.id", evt.TurnID))
	span.AddEvent(name, trace.WithTimestamp(evt.Timestamp), trace.WithAttributes(attrs...))
}

func (l *SessionSpanListener) utteranceCommitted(evt *events.Event) {
	data, ok := evt.Data.(*events.UtteranceCommittedData)
	if !ok {
		return
	}
	l.addSessionEvent(evt, "utterance_committed",
		attribute.Float64("eou.probability", data.EndOfTurnProbability),
		attribute.Int64("eou.delay_ms", data.EndOfUtteranceDelay.Milliseconds()),
		attribute.Int64("stt.delay_ms", data.TranscriptionDelay.Milliseconds()),
	)
}

func (l *SessionSpanListener) providerFailed(evt *events.Event) {
	data, ok := evt.Data.(*events.ProviderFailedData)
	if !ok {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider.stage", data.Stage),
		attribute.String("provider.name", data.Provider),
	}
	if data.Error != nil {
		attrs = append(attrs, attribute.String("error", data.Error.Error()))
	}
	l.addSessionEvent(evt, "provider_failed", attrs...)
}

func (l *SessionSpanListener) sessionEnded(evt *events.Event) {
	data, ok := evt.Data.(*events.SessionEndedData)
	if !ok {
		return
	}
	_, span := l.sessionSpan(evt.SessionID)
	if span != nil {
		span.SetAttributes(attribute.String("session.end_reason", data.Reason))
		if data.Error != nil {
			span.RecordError(data.Error)
			span.SetStatus(codes.Error, data.Error.Error())
		}
	}
	l.EndSession(evt.SessionID)
}
