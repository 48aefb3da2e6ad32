package events

import "time"

// Emitter publishes events stamped with the session's identity.
// A nil Emitter, or one without a bus, discards everything.
type Emitter struct {
	bus       *EventBus
	sessionID string
	room      string
	now       func() time.Time
}

// NewEmitter creates an emitter for one session.
func NewEmitter(bus *EventBus, sessionID, room string) *Emitter {
	return &Emitter{bus: bus, sessionID: sessionID, room: room, now: time.Now}
}

func (e *Emitter) emit(eventType EventType, turnID string, data EventData) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(&Event{
		Type:      eventType,
		Timestamp: e.now(),
		SessionID: e.sessionID,
		Room:      e.room,
		TurnID:    turnID,
		Data:      data,
	})
}

// SessionStarted emits the session.started event.
func (e *Emitter) SessionStarted() {
	e.emit(EventSessionStarted, "", &SessionStartedData{})
}

// SessionEnded emits the session.ended event.
func (e *Emitter) SessionEnded(reason string, duration time.Duration, err error) {
	e.emit(EventSessionEnded, "", &SessionEndedData{Reason: reason, Duration: duration, Error: err})
}

// UtteranceCommitted emits the utterance.committed event.
func (e *Emitter) UtteranceCommitted(turnID string, data UtteranceCommittedData) {
	e.emit(EventUtteranceCommitted, turnID, &data)
}

// BargeIn emits the utterance.barge_in event.
func (e *Emitter) BargeIn(turnID string, cancelledGeneration bool) {
	e.emit(EventBargeIn, turnID, &BargeInData{CancelledGeneration: cancelledGeneration})
}

// GenerationStarted emits the generation.started event.
func (e *Emitter) GenerationStarted(turnID, provider string, speculative bool) {
	e.emit(EventGenerationStarted, turnID, &GenerationData{Provider: provider, Speculative: speculative})
}

// GenerationCompleted emits the generation.completed event.
func (e *Emitter) GenerationCompleted(turnID, provider, result string, duration time.Duration) {
	e.emit(EventGenerationCompleted, turnID, &GenerationData{
		Provider: provider,
		Result:   result,
		Duration: duration,
	})
}

// GenerationFailed emits the generation.failed event.
func (e *Emitter) GenerationFailed(turnID, provider string, duration time.Duration, err error) {
	e.emit(EventGenerationFailed, turnID, &GenerationData{Provider: provider, Duration: duration, Error: err})
}

// GenerationDiscarded emits the generation.discarded event.
func (e *Emitter) GenerationDiscarded(turnID, provider string, speculative bool) {
	e.emit(EventGenerationDiscarded, turnID, &GenerationData{Provider: provider, Speculative: speculative})
}

// SpeechCompleted emits the speech.completed event.
func (e *Emitter) SpeechCompleted(turnID string, data SpeechCompletedData) {
	e.emit(EventSpeechCompleted, turnID, &data)
}

// DraftUpdated emits the draft.updated event.
func (e *Emitter) DraftUpdated(turnID string, data DraftUpdatedData) {
	e.emit(EventDraftUpdated, turnID, &data)
}

// OrderSaveStarted emits the order.save.started event.
func (e *Emitter) OrderSaveStarted(turnID string) {
	e.emit(EventOrderSaveStarted, turnID, &OrderSaveData{})
}

// OrderSaveCompleted emits the order.save.completed event.
func (e *Emitter) OrderSaveCompleted(turnID string, data OrderSaveData) {
	e.emit(EventOrderSaveCompleted, turnID, &data)
}

// ProviderFailed emits the provider.failed event.
func (e *Emitter) ProviderFailed(turnID, stage, provider string, err error) {
	e.emit(EventProviderFailed, turnID, &ProviderFailedData{Stage: stage, Provider: provider, Error: err})
}
