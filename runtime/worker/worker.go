// Package worker hosts voice ordering sessions in one process.
//
// A Worker is built once at startup. It owns the warm resources every
// session borrows (the VAD model, the order gate and its store, the event
// bus with its metrics and tracing listeners) and admits sessions up to a
// fixed concurrency limit.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/dialogue"
	"github.com/AltairaLabs/voicebarista/runtime/events"
	"github.com/AltairaLabs/voicebarista/runtime/logger"
	"github.com/AltairaLabs/voicebarista/runtime/metrics"
	promexport "github.com/AltairaLabs/voicebarista/runtime/metrics/prometheus"
	"github.com/AltairaLabs/voicebarista/runtime/orderstore"
	"github.com/AltairaLabs/voicebarista/runtime/session"
	"github.com/AltairaLabs/voicebarista/runtime/stt"
	"github.com/AltairaLabs/voicebarista/runtime/telemetry"
	"github.com/AltairaLabs/voicebarista/runtime/tools"
	"github.com/AltairaLabs/voicebarista/runtime/transport"
	"github.com/AltairaLabs/voicebarista/runtime/tts"
)

// Defaults for Config.
const (
	DefaultMaxSessions      = 16
	DefaultAdmissionTimeout = 5 * time.Second
)

// ErrBusy is returned when no session slot frees up within AdmissionTimeout.
var ErrBusy = errors.New("worker: at capacity")

// ErrClosed is returned by RunSession after Shutdown.
var ErrClosed = errors.New("worker: shut down")

// Config sizes the worker.
type Config struct {
	// MaxSessions caps concurrently running sessions.
	MaxSessions int `yaml:"max_sessions"`

	// AdmissionTimeout is how long a new session waits for a free slot.
	AdmissionTimeout time.Duration `yaml:"admission_timeout"`

	Session   session.Config   `yaml:"session"`
	Transport transport.Config `yaml:"transport"`
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		MaxSessions:      DefaultMaxSessions,
		AdmissionTimeout: DefaultAdmissionTimeout,
		Session:          session.DefaultConfig(),
		Transport:        transport.DefaultConfig(),
	}
}

// Providers are the external collaborators of one session.
type Providers struct {
	Engine dialogue.Engine
	STT    stt.StreamingService
	TTS    tts.StreamingService
	EOT    audio.EndOfTurnModel
	Filter audio.NoiseFilter
}

// ProviderFactory returns fresh providers for a session in room.
type ProviderFactory func(ctx context.Context, room string) (Providers, error)

// Options are the warm resources handed to New. The worker borrows Store
// and Tracer; it owns Bus only when it created it.
type Options struct {
	VAD       audio.VADModel
	Store     orderstore.Store
	Providers ProviderFactory

	// Registry defaults to the embedded save_order tool.
	Registry *tools.Registry

	// Bus defaults to a new bus owned by the worker.
	Bus *events.EventBus

	// Tracer defaults to a no-op tracer.
	Tracer trace.Tracer

	Logger *slog.Logger
}

// Worker runs sessions against shared warm resources.
type Worker struct {
	cfg       Config
	vad       audio.VADModel
	gate      *tools.Gate
	providers ProviderFactory
	bus       *events.EventBus
	ownsBus   bool
	spans     *telemetry.SessionSpanListener
	sink      *promexport.Sink
	log       *slog.Logger

	sem    *semaphore.Weighted
	active atomic.Int64

	ctx    context.Context //nolint:containedctx // cancelled by Shutdown to stop live sessions
	cancel context.CancelFunc

	closed      atomic.Bool
	unsubscribe []func()
	closeOnce   sync.Once
}

// New builds a worker. Missing required options are reported together.
func New(cfg Config, opts Options) (*Worker, error) {
	var missing []string
	if opts.VAD == nil {
		missing = append(missing, "vad")
	}
	if opts.Store == nil {
		missing = append(missing, "store")
	}
	if opts.Providers == nil {
		missing = append(missing, "providers")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("worker: missing options: %v", missing)
	}

	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.AdmissionTimeout <= 0 {
		cfg.AdmissionTimeout = DefaultAdmissionTimeout
	}

	log := logger.OrDiscard(opts.Logger)

	registry := opts.Registry
	if registry == nil {
		var err error
		if registry, err = tools.NewDefaultRegistry(); err != nil {
			return nil, fmt.Errorf("loading tool registry: %w", err)
		}
	}
	gate, err := tools.NewGate(registry, opts.Store, log)
	if err != nil {
		return nil, fmt.Errorf("creating tool gate: %w", err)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(telemetry.InstrumentationName)
	}

	bus, ownsBus := opts.Bus, false
	if bus == nil {
		bus, ownsBus = events.NewEventBus(), true
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		cfg:       cfg,
		vad:       opts.VAD,
		gate:      gate,
		providers: opts.Providers,
		bus:       bus,
		ownsBus:   ownsBus,
		spans:     telemetry.NewSessionSpanListener(tracer),
		sink:      promexport.NewSink(),
		log:       log,
		sem:       semaphore.NewWeighted(int64(cfg.MaxSessions)),
		ctx:       ctx,
		cancel:    cancel,
	}
	w.unsubscribe = append(w.unsubscribe,
		bus.SubscribeAll(promexport.NewMetricsListener().Listener()),
		bus.SubscribeAll(w.spans.OnEvent),
	)
	return w, nil
}

// Bus returns the event bus sessions publish to.
func (w *Worker) Bus() *events.EventBus { return w.bus }

// Active returns the number of running sessions.
func (w *Worker) Active() int { return int(w.active.Load()) }

// RunSession admits a session on ch and runs it to completion. The channel
// is closed when RunSession returns, including when admission fails.
func (w *Worker) RunSession(ctx context.Context, ch audio.SpeechChannel, room string) (metrics.SessionSummary, error) {
	if w.closed.Load() {
		_ = ch.Close()
		return metrics.SessionSummary{}, ErrClosed
	}

	if err := w.admit(ctx); err != nil {
		_ = ch.Close()
		return metrics.SessionSummary{}, err
	}
	defer w.sem.Release(1)
	w.active.Add(1)
	defer w.active.Add(-1)

	// Shutdown stops live sessions as well as the caller's ctx.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	p, err := w.providers(ctx, room)
	if err != nil {
		_ = ch.Close()
		return metrics.SessionSummary{}, fmt.Errorf("creating providers for room %q: %w", room, err)
	}

	cfg := w.cfg.Session
	cfg.Room = room
	o, err := session.New(cfg, session.Dependencies{
		Channel:    ch,
		VAD:        w.vad,
		Engine:     p.Engine,
		STT:        p.STT,
		TTS:        p.TTS,
		Gate:       w.gate,
		EOT:        p.EOT,
		Filter:     p.Filter,
		Events:     w.bus,
		Sinks:      []metrics.Sink{w.sink},
		OnShutdown: []session.ShutdownHook{recordDropped},
		Logger:     w.log,
	})
	if err != nil {
		_ = ch.Close()
		return metrics.SessionSummary{}, err
	}

	ctx = w.spans.StartSession(ctx, o.ID(), room)
	err = o.Run(ctx)
	return o.Summary(), err
}

func recordDropped(_ context.Context, s metrics.SessionSummary) {
	promexport.RecordUsageDropped(s.Dropped)
}

func (w *Worker) admit(ctx context.Context) error {
	actx, cancel := context.WithTimeout(ctx, w.cfg.AdmissionTimeout)
	defer cancel()
	if err := w.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	return nil
}

// Shutdown stops admitting sessions, cancels the ones running and waits
// for them to finish their shutdown, or for ctx to expire.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.closed.Store(true)
	w.cancel()

	// Every slot free means every session has returned.
	err := w.sem.Acquire(ctx, int64(w.cfg.MaxSessions))
	if err == nil {
		w.sem.Release(int64(w.cfg.MaxSessions))
	}

	w.closeOnce.Do(func() {
		for _, unsub := range w.unsubscribe {
			unsub()
		}
		if w.ownsBus {
			w.bus.Close()
		}
	})
	if err != nil {
		return fmt.Errorf("waiting for sessions: %w", err)
	}
	return nil
}

// Handler serves sessions over websockets at GET /session?room=NAME and a
// liveness probe at GET /healthz.
func (w *Worker) Handler() http.Handler {
	up := transport.Upgrader{Config: w.cfg.Transport, Log: w.log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /session", func(rw http.ResponseWriter, r *http.Request) {
		if w.closed.Load() {
			http.Error(rw, ErrClosed.Error(), http.StatusServiceUnavailable)
			return
		}
		room := r.URL.Query().Get("room")
		ch, err := up.Upgrade(rw, r)
		if err != nil {
			w.log.WarnContext(r.Context(), "session upgrade failed", "error", err)
			return
		}

		ctx := logger.WithRoom(r.Context(), room)
		if _, err := w.RunSession(ctx, ch, room); err != nil {
			w.log.WarnContext(ctx, "session did not complete", "error", err)
		}
	})
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.closed.Load() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintln(rw, "shutting down")
			return
		}
		_, _ = fmt.Fprintf(rw, "ok active=%d\n", w.Active())
	})
	return otelhttp.NewHandler(mux, "barista-worker")
}
