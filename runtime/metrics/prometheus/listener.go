package prometheus

import (
	"github.com/AltairaLabs/voicebarista/runtime/events"
)

// Outcome labels for generations.
const (
	outcomeFailed    = "failed"
	outcomeDiscarded = "discarded"
)

// MetricsListener records session events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch data := event.Data.(type) {
	case *events.SessionStartedData:
		RecordSessionStart()
	case *events.SessionEndedData:
		RecordSessionEnd(data.Reason, data.Duration.Seconds())
	case *events.UtteranceCommittedData:
		RecordTurn(data.EndOfUtteranceDelay.Seconds())
	case *events.BargeInData:
		RecordBargeIn()
	case *events.GenerationData:
		l.handleGeneration(event.Type, data)
	case *events.OrderSaveData:
		if event.Type == events.EventOrderSaveCompleted {
			RecordOrderSave(backendLabel(data.Backend), data.Status, data.Duration.Seconds())
		}
	case *events.ProviderFailedData:
		RecordProviderFailure(data.Stage, data.Provider)
	default:
		// Ignore events that don't have metrics
	}
}

func (l *MetricsListener) handleGeneration(t events.EventType, data *events.GenerationData) {
	//exhaustive:ignore
	switch t {
	case events.EventGenerationCompleted:
		RecordGeneration(data.Provider, data.Result)
	case events.EventGenerationFailed:
		RecordGeneration(data.Provider, outcomeFailed)
	case events.EventGenerationDiscarded:
		RecordGeneration(data.Provider, outcomeDiscarded)
	}
}

func backendLabel(backend string) string {
	if backend == "" {
		return "none"
	}
	return backend
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
