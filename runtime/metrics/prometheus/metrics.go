// Package prometheus exports session usage and lifecycle metrics to Prometheus.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AltairaLabs/voicebarista/runtime/metrics"
)

const namespace = "barista"

var (
	// stageLatency is a histogram of provider latencies (latency, ttft, ttfb) in seconds.
	stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Provider stage latency in seconds",
			Buckets:   []float64{.05, .1, .25, .5, .75, 1, 1.5, 2.5, 5, 10},
		},
		[]string{"stage", "kind", "provider"},
	)

	// stageUsageTotal is a counter of provider usage (tokens, characters, audio seconds).
	stageUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_usage_total",
			Help:      "Provider usage by stage and kind",
		},
		[]string{"stage", "kind", "provider"},
	)

	// sessionsActive is a gauge of currently running sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions",
		},
	)

	// sessionDuration is a histogram of session wall time.
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"reason"},
	)

	// turnsTotal is a counter of committed user turns.
	turnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of committed user turns",
		},
	)

	// endOfUtteranceDelay is a histogram of the delay between speech end and turn commit.
	endOfUtteranceDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "end_of_utterance_delay_seconds",
			Help:      "Delay between the end of user speech and turn commit",
			Buckets:   []float64{.1, .25, .5, .75, 1, 2, 4, 6, 8},
		},
	)

	// bargeInsTotal is a counter of user interruptions.
	bargeInsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Total number of times the user interrupted agent speech",
		},
	)

	// generationsTotal is a counter of language-model generations by outcome.
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of generations by outcome",
		},
		[]string{"provider", "outcome"}, // outcome: spoken, save, failed, discarded
	)

	// orderSavesTotal is a counter of save requests by status.
	orderSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_saves_total",
			Help:      "Total number of order save requests by status",
		},
		[]string{"backend", "status"},
	)

	// orderSaveDuration is a histogram of save request duration.
	orderSaveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_save_duration_seconds",
			Help:      "Duration of order save requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend"},
	)

	// providerFailuresTotal is a counter of provider failures by stage.
	providerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Total number of provider failures by stage",
		},
		[]string{"stage", "provider"},
	)

	// usageDroppedTotal is a counter of usage records lost to a full aggregator buffer.
	usageDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_records_dropped_total",
			Help:      "Usage records dropped because the session aggregator was saturated",
		},
	)
)

// allMetrics contains all barista metrics for registration.
var allMetrics = []prometheus.Collector{
	stageLatency,
	stageUsageTotal,
	sessionsActive,
	sessionDuration,
	turnsTotal,
	endOfUtteranceDelay,
	bargeInsTotal,
	generationsTotal,
	orderSavesTotal,
	orderSaveDuration,
	providerFailuresTotal,
	usageDroppedTotal,
}

// RecordUsage records a provider usage record.
func RecordUsage(rec metrics.UsageRecord) {
	labels := []string{string(rec.Stage), string(rec.Kind), rec.Provider}
	if rec.Kind.IsDuration() {
		stageLatency.WithLabelValues(labels...).Observe(rec.Value)
		return
	}
	if rec.Value > 0 {
		stageUsageTotal.WithLabelValues(labels...).Add(rec.Value)
	}
}

// RecordSessionStart records a session start.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a session completion.
func RecordSessionEnd(reason string, durationSeconds float64) {
	sessionsActive.Dec()
	sessionDuration.WithLabelValues(reason).Observe(durationSeconds)
}

// RecordTurn records a committed user turn.
func RecordTurn(endOfUtteranceSeconds float64) {
	turnsTotal.Inc()
	endOfUtteranceDelay.Observe(endOfUtteranceSeconds)
}

// RecordBargeIn records a user interruption.
func RecordBargeIn() {
	bargeInsTotal.Inc()
}

// RecordGeneration records a generation outcome.
func RecordGeneration(provider, outcome string) {
	generationsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordOrderSave records a save request.
func RecordOrderSave(backend, status string, durationSeconds float64) {
	orderSavesTotal.WithLabelValues(backend, status).Inc()
	orderSaveDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordProviderFailure records a provider failure.
func RecordProviderFailure(stage, provider string) {
	providerFailuresTotal.WithLabelValues(stage, provider).Inc()
}

// RecordUsageDropped records usage records lost by a session aggregator.
func RecordUsageDropped(n int64) {
	if n > 0 {
		usageDroppedTotal.Add(float64(n))
	}
}
