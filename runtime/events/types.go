package events

import (
	"time"
)

// EventType identifies the type of event emitted during a session.
type EventType string

const (
	// EventSessionStarted marks the start of a customer session.
	EventSessionStarted EventType = "session.started"
	// EventSessionEnded marks the end of a customer session.
	EventSessionEnded EventType = "session.ended"

	// EventUtteranceCommitted marks a confirmed end of user turn.
	EventUtteranceCommitted EventType = "utterance.committed"
	// EventBargeIn marks the user interrupting agent speech.
	EventBargeIn EventType = "utterance.barge_in"

	// EventGenerationStarted marks a language-model generation start.
	EventGenerationStarted EventType = "generation.started"
	// EventGenerationCompleted marks a generation that produced a result.
	EventGenerationCompleted EventType = "generation.completed"
	// EventGenerationFailed marks a generation that failed.
	EventGenerationFailed EventType = "generation.failed"
	// EventGenerationDiscarded marks a speculative or interrupted generation
	// whose result was thrown away.
	EventGenerationDiscarded EventType = "generation.discarded"

	// EventSpeechCompleted marks the end of an agent utterance.
	EventSpeechCompleted EventType = "speech.completed"

	// EventDraftUpdated marks a change to the order draft.
	EventDraftUpdated EventType = "draft.updated"

	// EventOrderSaveStarted marks a save request reaching the tool gate.
	EventOrderSaveStarted EventType = "order.save.started"
	// EventOrderSaveCompleted marks the outcome of a save request.
	EventOrderSaveCompleted EventType = "order.save.completed"

	// EventProviderFailed marks a provider failure.
	EventProviderFailed EventType = "provider.failed"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a session event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Room      string
	TurnID    string
	Data      EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// SessionStartedData contains data for session start events.
type SessionStartedData struct {
	baseEventData
}

// SessionEndedData contains data for session end events.
type SessionEndedData struct {
	baseEventData
	Duration time.Duration
	// Reason is one of "completed", "hangup", "cancelled" or "error".
	Reason string
	Error  error
}

// UtteranceCommittedData contains data for committed user turns.
type UtteranceCommittedData struct {
	baseEventData
	Transcript           string
	EndOfTurnProbability float64
	EndOfUtteranceDelay  time.Duration
	TranscriptionDelay   time.Duration
}

// BargeInData contains data for barge-in events.
type BargeInData struct {
	baseEventData
	// CancelledGeneration is set when an in-flight generation was cancelled.
	CancelledGeneration bool
}

// GenerationData is the payload for all generation lifecycle events.
// Fields are zero-valued when not applicable to the phase.
type GenerationData struct {
	baseEventData
	Provider    string
	Speculative bool
	// Result is "spoken" or "save" on completion.
	Result   string
	Duration time.Duration
	Error    error
}

// SpeechCompletedData contains data for agent speech completion.
type SpeechCompletedData struct {
	baseEventData
	Provider    string
	Sentences   int
	Characters  int
	Duration    time.Duration
	Interrupted bool
}

// DraftUpdatedData contains data for draft changes.
type DraftUpdatedData struct {
	baseEventData
	Missing  []string
	Complete bool
	ReadBack bool
	Reset    bool
}

// OrderSaveData is the payload for order save events.
type OrderSaveData struct {
	baseEventData
	OrderID string
	Backend string
	// Status is "ok", "validation_failed", "write_error" or
	// "confirmation_required" on completion.
	Status   string
	Duration time.Duration
	Error    error
}

// ProviderFailedData contains data for provider failures.
type ProviderFailedData struct {
	baseEventData
	Stage    string
	Provider string
	Error    error
}
