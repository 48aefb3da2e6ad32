package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/dialogue"
	"github.com/AltairaLabs/voicebarista/runtime/events"
	"github.com/AltairaLabs/voicebarista/runtime/logger"
	"github.com/AltairaLabs/voicebarista/runtime/metrics"
	"github.com/AltairaLabs/voicebarista/runtime/order"
	"github.com/AltairaLabs/voicebarista/runtime/stt"
	"github.com/AltairaLabs/voicebarista/runtime/tts"
)

const (
	frameBufferSize      = 64
	transcriptBufferSize = 16
	maxSTTBackoff        = 5 * time.Second
)

// Orchestrator runs one session. It is single use: Run may be called once.
type Orchestrator struct {
	id   string
	room string
	cfg  Config
	deps Dependencies
	log  *slog.Logger

	draft   *order.Draft
	adapter *dialogue.Adapter
	coord   *audio.TurnCoordinator
	pacer   *tts.Pacer
	agg     *metrics.Aggregator
	emitter *events.Emitter

	started      atomic.Bool
	finalizeOnce sync.Once

	mu      sync.Mutex
	summary *metrics.SessionSummary
}

// New builds a session over deps. The VAD analyzer is minted from the warm
// model here so a broken model fails before any audio is read.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}
	if deps.Filter == nil {
		deps.Filter = audio.PassthroughFilter{}
	}

	log := logger.OrDiscard(deps.Logger)

	vad, err := deps.VAD.NewAnalyzer()
	if err != nil {
		return nil, fmt.Errorf("creating vad analyzer: %w", err)
	}
	coord, err := audio.NewTurnCoordinator(cfg.Turn, vad, deps.EOT, log)
	if err != nil {
		return nil, fmt.Errorf("creating turn coordinator: %w", err)
	}

	logCtx := logger.WithFields(context.Background(), logger.Fields{SessionID: cfg.SessionID, Room: cfg.Room})
	sinks := append([]metrics.Sink{metrics.NewLogSink(logCtx, log)}, deps.Sinks...)

	draft := order.NewDraft()
	return &Orchestrator{
		id:      cfg.SessionID,
		room:    cfg.Room,
		cfg:     cfg,
		deps:    deps,
		log:     log,
		draft:   draft,
		adapter: dialogue.NewAdapter(deps.Engine, deps.Gate, draft, cfg.Dialogue, log),
		coord:   coord,
		pacer:   tts.NewPacer(deps.TTS, cfg.Speech, log),
		agg: metrics.NewAggregator(cfg.SessionID,
			metrics.WithBufferSize(cfg.MetricsBuffer),
			metrics.WithSinks(sinks...),
		),
		emitter: events.NewEmitter(deps.Events, cfg.SessionID, cfg.Room),
	}, nil
}

// ID returns the session ID.
func (o *Orchestrator) ID() string { return o.id }

// Summary returns the final usage summary once Run has returned, or the
// running totals before that.
func (o *Orchestrator) Summary() metrics.SessionSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.summary != nil {
		return *o.summary
	}
	return o.agg.Snapshot()
}

// Run drives the session until the dialogue ends it, the customer hangs up
// or ctx is cancelled. A hangup or a goodbye returns nil.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx = logger.WithFields(ctx, logger.Fields{SessionID: o.id, Room: o.room})
	start := time.Now()

	o.log.InfoContext(ctx, "session started")
	o.emitter.SessionStarted()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	frames := make(chan audio.Frame, frameBufferSize)
	sttFrames := make(chan audio.Frame, frameBufferSize)
	transcripts := make(chan audio.TranscriptSegment, transcriptBufferSize)

	g.Go(o.guard(gctx, "metrics", func() error { return o.agg.Run(gctx) }))
	g.Go(o.guard(gctx, "audio", func() error { return o.pumpAudio(gctx, frames, sttFrames) }))
	g.Go(o.guard(gctx, "stt", func() error { return o.pumpSTT(gctx, sttFrames, transcripts) }))
	g.Go(o.guard(gctx, "turns", func() error { return o.coord.Run(gctx, frames, transcripts) }))
	g.Go(o.guard(gctx, "loop", func() error {
		// The loop decides when the session is over.
		defer cancel()
		return newLoop(o).run(gctx)
	}))

	waitErr := g.Wait()
	reason, err := classify(ctx, waitErr)
	o.shutdown(ctx, reason, time.Since(start), err)
	return err
}

// classify maps the first error of the session group to an end reason and
// the error Run returns.
func classify(ctx context.Context, err error) (string, error) {
	switch {
	case err == nil, errors.Is(err, errSessionEnded):
		return ReasonCompleted, nil
	case errors.Is(err, audio.ErrChannelClosed):
		return ReasonHangup, nil
	case ctx.Err() != nil:
		return ReasonCancelled, ctx.Err()
	default:
		return ReasonError, err
	}
}

// guard converts a panic in fn into a PanicError so the group still
// unwinds and shutdown still runs.
func (o *Orchestrator) guard(ctx context.Context, task string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				o.log.ErrorContext(ctx, "session task panicked",
					"task", task, "panic", r, "stack", string(debug.Stack()))
				err = &PanicError{Task: task, Value: r}
			}
		}()
		return fn()
	}
}

// shutdown finalizes usage, logs the summary and runs hooks. It is called
// once, after every session goroutine has returned.
func (o *Orchestrator) shutdown(ctx context.Context, reason string, d time.Duration, runErr error) {
	ctx = context.WithoutCancel(ctx)
	o.finalizeOnce.Do(func() {
		summary := o.agg.Finalize()
		o.mu.Lock()
		o.summary = &summary
		o.mu.Unlock()
		o.log.InfoContext(ctx, "usage summary", "summary", summary)
	})

	if err := o.deps.Channel.Close(); err != nil {
		o.log.DebugContext(ctx, "closing speech channel", "error", err)
	}

	if runErr != nil {
		o.log.ErrorContext(ctx, "session failed", "reason", reason, "duration", d, "error", logger.RedactSensitiveData(runErr.Error()))
	} else {
		o.log.InfoContext(ctx, "session ended", "reason", reason, "duration", d)
	}
	o.emitter.SessionEnded(reason, d, runErr)

	for i, hook := range o.deps.OnShutdown {
		o.runHook(ctx, i, hook)
	}
}

func (o *Orchestrator) runHook(ctx context.Context, i int, hook ShutdownHook) {
	defer func() {
		if r := recover(); r != nil {
			o.log.ErrorContext(ctx, "shutdown hook panicked", "hook", i, "panic", r)
		}
	}()
	hook(ctx, o.Summary())
}

// pumpAudio reads the channel, cleans and resamples each frame, and feeds
// turn detection and recognition. Recognition never blocks the pump: when
// its queue is full the frame is dropped for STT only.
func (o *Orchestrator) pumpAudio(ctx context.Context, frames, sttFrames chan<- audio.Frame) error {
	defer close(frames)
	defer close(sttFrames)

	var dropped int
	for {
		f, err := o.deps.Channel.Recv(ctx)
		if err != nil {
			if dropped > 0 {
				o.log.DebugContext(ctx, "frames dropped before recognition", "count", dropped)
			}
			return err
		}

		f, err = o.deps.Filter.Process(ctx, f)
		if err != nil {
			o.log.WarnContext(ctx, "noise filter failed", "filter", o.deps.Filter.Name(), "error", err)
			continue
		}
		if f.SampleRate != o.cfg.SampleRate {
			if f, err = f.Resample(o.cfg.SampleRate); err != nil {
				o.log.WarnContext(ctx, "dropping frame", "error", err)
				continue
			}
		}

		select {
		case frames <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case sttFrames <- f:
		default:
			dropped++
		}
	}
}

// pumpSTT keeps a recognition stream open, reopening it with backoff after
// provider failures. It gives up after MaxSTTRestarts consecutive failures,
// or at once when the provider reports the failure as permanent.
func (o *Orchestrator) pumpSTT(ctx context.Context, in <-chan audio.Frame, out chan<- audio.TranscriptSegment) error {
	defer close(out)

	provider := o.deps.STT.Name()
	failures := 0
	for {
		stream, err := o.deps.STT.OpenStream(ctx, o.cfg.STT)
		if err == nil {
			var healthy bool
			healthy, err = o.runSTTStream(ctx, stream, in, out)
			_ = stream.Close()
			if healthy {
				failures = 0
			}
		}
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil:
			// Input closed; the audio pump has ended the session.
			return nil
		}

		failures++
		perr := &ProviderError{Stage: metrics.StageSTT, Provider: provider, Err: err}
		o.providerFailed(ctx, "", perr)
		if failures > o.cfg.MaxSTTRestarts || stt.IsPermanent(err) {
			return perr
		}

		delay := o.cfg.STTRestartDelay << (failures - 1)
		if delay > maxSTTBackoff || delay <= 0 {
			delay = maxSTTBackoff
		}
		if err := o.drainFor(ctx, in, delay); err != nil {
			return err
		}
	}
}

// runSTTStream forwards frames into stream and transcripts out of it.
// healthy reports whether a final transcript was delivered.
func (o *Orchestrator) runSTTStream(
	ctx context.Context, stream stt.Stream, in <-chan audio.Frame, out chan<- audio.TranscriptSegment,
) (healthy bool, err error) {
	provider := o.deps.STT.Name()
	results := stream.Transcripts()
	for {
		select {
		case <-ctx.Done():
			return healthy, ctx.Err()

		case f, ok := <-in:
			if !ok {
				return healthy, nil
			}
			if err := stream.Send(ctx, f); err != nil {
				return healthy, err
			}

		case tr, ok := <-results:
			if !ok {
				if err := stream.Err(); err != nil {
					return healthy, err
				}
				return healthy, errors.New("recognition stream ended")
			}
			if tr.Final {
				healthy = true
				if tr.AudioDuration > 0 {
					o.agg.Record(metrics.Count(metrics.StageSTT, metrics.KindAudioSeconds, provider, tr.AudioDuration.Seconds()))
				}
			}
			select {
			case out <- audio.TranscriptSegment{Text: tr.Text, Final: tr.Final}:
			case <-ctx.Done():
				return healthy, ctx.Err()
			}
		}
	}
}

// drainFor discards frames for d while recognition is down.
func (o *Orchestrator) drainFor(ctx context.Context, in <-chan audio.Frame, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		case _, ok := <-in:
			if !ok {
				return nil
			}
		}
	}
}

// providerFailed logs, counts and publishes a provider failure.
func (o *Orchestrator) providerFailed(ctx context.Context, turnID string, err *ProviderError) {
	o.log.WarnContext(logger.WithFields(ctx, logger.Fields{
		TurnID:   turnID,
		Stage:    string(err.Stage),
		Provider: err.Provider,
	}), "provider failed", "error", logger.RedactSensitiveData(err.Err.Error()))
	o.emitter.ProviderFailed(turnID, string(err.Stage), err.Provider, err.Err)
}
