package prometheus

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AltairaLabs/voicebarista/runtime/events"
	"github.com/AltairaLabs/voicebarista/runtime/metrics"
)

func resetAll() {
	stageLatency.Reset()
	stageUsageTotal.Reset()
	sessionsActive.Set(0)
	sessionDuration.Reset()
	generationsTotal.Reset()
	orderSavesTotal.Reset()
	orderSaveDuration.Reset()
	providerFailuresTotal.Reset()
}

func TestRecordUsage(t *testing.T) {
	resetAll()

	RecordUsage(metrics.Duration(metrics.StageSTT, metrics.KindLatency, "mock", 300*time.Millisecond))
	RecordUsage(metrics.Duration(metrics.StageSTT, metrics.KindLatency, "mock", 100*time.Millisecond))
	RecordUsage(metrics.Count(metrics.StageLLM, metrics.KindPromptTokens, "mock", 120))
	RecordUsage(metrics.Count(metrics.StageLLM, metrics.KindPromptTokens, "mock", 30))
	RecordUsage(metrics.Count(metrics.StageTTS, metrics.KindCharacters, "mock", 0))

	if count := testutil.CollectAndCount(stageLatency); count != 1 {
		t.Errorf("Expected 1 latency series, got %d", count)
	}
	tokens := testutil.ToFloat64(stageUsageTotal.WithLabelValues("llm", "prompt_tokens", "mock"))
	if tokens != 150 {
		t.Errorf("Expected 150 prompt tokens, got %f", tokens)
	}
	if count := testutil.CollectAndCount(stageUsageTotal); count != 1 {
		t.Errorf("Expected zero-valued usage to be skipped, got %d series", count)
	}
}

func TestSinkObserve(t *testing.T) {
	resetAll()

	agg := metrics.NewAggregator("sess-1", metrics.WithSinks(NewSink()))
	agg.Record(metrics.Count(metrics.StageTTS, metrics.KindCharacters, "mock", 42))
	agg.Finalize()

	chars := testutil.ToFloat64(stageUsageTotal.WithLabelValues("tts", "characters", "mock"))
	if chars != 42 {
		t.Errorf("Expected 42 characters, got %f", chars)
	}
}

func TestRecordSessionStartEnd(t *testing.T) {
	resetAll()

	RecordSessionStart()
	RecordSessionStart()
	if active := testutil.ToFloat64(sessionsActive); active != 2 {
		t.Errorf("Expected 2 active sessions, got %f", active)
	}

	RecordSessionEnd("completed", 42)
	if active := testutil.ToFloat64(sessionsActive); active != 1 {
		t.Errorf("Expected 1 active session after end, got %f", active)
	}
	if count := testutil.CollectAndCount(sessionDuration); count != 1 {
		t.Errorf("Expected 1 duration series, got %d", count)
	}
}

func TestRecordUsageDropped(t *testing.T) {
	before := testutil.ToFloat64(usageDroppedTotal)
	RecordUsageDropped(0)
	RecordUsageDropped(3)
	if got := testutil.ToFloat64(usageDroppedTotal) - before; got != 3 {
		t.Errorf("Expected 3 dropped records, got %f", got)
	}
}

func TestMetricsListener(t *testing.T) {
	resetAll()
	turnsBefore := testutil.ToFloat64(turnsTotal)
	bargeBefore := testutil.ToFloat64(bargeInsTotal)

	listener := NewMetricsListener()
	handle := listener.Listener()

	handle(&events.Event{Type: events.EventSessionStarted, Data: &events.SessionStartedData{}})
	if active := testutil.ToFloat64(sessionsActive); active != 1 {
		t.Errorf("Expected 1 active session, got %f", active)
	}

	handle(&events.Event{
		Type: events.EventUtteranceCommitted,
		Data: &events.UtteranceCommittedData{Transcript: "a latte", EndOfUtteranceDelay: 600 * time.Millisecond},
	})
	handle(&events.Event{Type: events.EventBargeIn, Data: &events.BargeInData{}})

	handle(&events.Event{
		Type: events.EventGenerationCompleted,
		Data: &events.GenerationData{Provider: "mock", Result: "spoken"},
	})
	handle(&events.Event{
		Type: events.EventGenerationFailed,
		Data: &events.GenerationData{Provider: "mock", Error: errors.New("boom")},
	})
	handle(&events.Event{
		Type: events.EventGenerationDiscarded,
		Data: &events.GenerationData{Provider: "mock", Speculative: true},
	})
	handle(&events.Event{Type: events.EventGenerationStarted, Data: &events.GenerationData{Provider: "mock"}})

	handle(&events.Event{Type: events.EventOrderSaveStarted, Data: &events.OrderSaveData{}})
	handle(&events.Event{
		Type: events.EventOrderSaveCompleted,
		Data: &events.OrderSaveData{Backend: "file", Status: "ok", Duration: 2 * time.Millisecond},
	})
	handle(&events.Event{
		Type: events.EventOrderSaveCompleted,
		Data: &events.OrderSaveData{Status: "validation_failed"},
	})
	handle(&events.Event{
		Type: events.EventProviderFailed,
		Data: &events.ProviderFailedData{Stage: "stt", Provider: "mock"},
	})
	handle(&events.Event{
		Type: events.EventSessionEnded,
		Data: &events.SessionEndedData{Reason: "completed", Duration: time.Minute},
	})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"turns", testutil.ToFloat64(turnsTotal) - turnsBefore, 1},
		{"barge-ins", testutil.ToFloat64(bargeInsTotal) - bargeBefore, 1},
		{"spoken", testutil.ToFloat64(generationsTotal.WithLabelValues("mock", "spoken")), 1},
		{"failed", testutil.ToFloat64(generationsTotal.WithLabelValues("mock", "failed")), 1},
		{"discarded", testutil.ToFloat64(generationsTotal.WithLabelValues("mock", "discarded")), 1},
		{"saved", testutil.ToFloat64(orderSavesTotal.WithLabelValues("file", "ok")), 1},
		{"rejected", testutil.ToFloat64(orderSavesTotal.WithLabelValues("none", "validation_failed")), 1},
		{"provider failures", testutil.ToFloat64(providerFailuresTotal.WithLabelValues("stt", "mock")), 1},
		{"active", testutil.ToFloat64(sessionsActive), 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %f, got %f", c.name, c.want, c.got)
		}
	}
	if count := testutil.CollectAndCount(generationsTotal); count != 3 {
		t.Errorf("Expected started events to be ignored, got %d generation series", count)
	}
}

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":9091")
	if exporter.Registry() == nil {
		t.Fatal("Expected non-nil registry")
	}
	// Every barista collector is already registered.
	if err := exporter.Register(bargeInsTotal); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "help"})
	exporter := NewExporterWithRegistry(":0", reg)
	exporter.MustRegister(counter)
	counter.Inc()

	rec := httptest.NewRecorder()
	exporter.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_counter 1") {
		t.Errorf("Expected test_counter in output, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	exporter.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Body.String() != "ok" {
		t.Errorf("Expected health ok, got %q", rec.Body.String())
	}
}

func TestExporterServeShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry("", prometheus.NewRegistry())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- exporter.Serve(ln) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + ln.Addr().String() + "/health")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("Expected ok, got %q", body)
	}

	// A second Serve while running is a no-op.
	ln2, _ := net.Listen("tcp", "127.0.0.1:0")
	if err := exporter.Serve(ln2); err != nil {
		t.Errorf("Expected nil on double serve, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exporter.Shutdown(ctx); err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}
