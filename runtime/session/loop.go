package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/dialogue"
	"github.com/AltairaLabs/voicebarista/runtime/events"
	"github.com/AltairaLabs/voicebarista/runtime/logger"
	"github.com/AltairaLabs/voicebarista/runtime/metrics"
	"github.com/AltairaLabs/voicebarista/runtime/tools"
	"github.com/AltairaLabs/voicebarista/runtime/tts"
)

// statusConfirmationRequired is reported for save requests refused before
// reaching the gate.
const statusConfirmationRequired = "confirmation_required"

// generation is one in-flight call to the dialogue engine.
type generation struct {
	seq         uint64
	turn        dialogue.Turn
	speculative bool
	// version is the loop's commit count when the request was prepared.
	version uint64
	cancel  context.CancelFunc
	// result holds a finished speculative generation until its turn is
	// confirmed.
	result *genResult
}

type genResult struct {
	seq   uint64
	res   dialogue.Result
	stats dialogue.Stats
	err   error
}

// speech is the response currently being played.
type speech struct {
	seq    uint64
	turnID string
	cancel context.CancelFunc
	// ending marks the goodbye; the session ends when it finishes.
	ending bool
}

type speechResult struct {
	seq    uint64
	turnID string
	report tts.SpeechReport
	err    error
}

// loop is the session's turn loop. It is the only goroutine that touches
// the adapter and the draft; generation and speech run as tasks that report
// back over channels.
type loop struct {
	o   *Orchestrator
	log *slog.Logger

	results chan genResult
	spoken  chan speechResult
	quit    chan struct{}
	tasks   sync.WaitGroup

	seq       uint64
	turns     int
	version   uint64
	gen       *generation
	speech    *speech
	carry     string
	followUps int
	ending    bool
}

func newLoop(o *Orchestrator) *loop {
	return &loop{
		o:       o,
		log:     o.log,
		results: make(chan genResult),
		spoken:  make(chan speechResult),
		quit:    make(chan struct{}),
	}
}

func (l *loop) run(ctx context.Context) error {
	defer l.stop()

	// The agent speaks first.
	l.generate(ctx, dialogue.Turn{ID: l.nextTurnID()}, false)

	turnEvents := l.o.coord.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-turnEvents:
			if !ok {
				return nil
			}
			if err := l.onTurnEvent(ctx, ev); err != nil {
				return err
			}

		case r := <-l.results:
			if err := l.onGeneration(ctx, r); err != nil {
				return err
			}

		case r := <-l.spoken:
			if err := l.onSpeech(ctx, r); err != nil {
				return err
			}
		}
	}
}

// stop cancels outstanding work and waits for every task to return.
func (l *loop) stop() {
	if l.gen != nil {
		l.gen.cancel()
	}
	if l.speech != nil {
		l.speech.cancel()
	}
	close(l.quit)
	l.tasks.Wait()
	l.o.coord.SetAgentSpeaking(false)
}

func (l *loop) nextTurnID() string {
	l.turns++
	return fmt.Sprintf("turn-%d", l.turns)
}

// userText prefixes text with speech from turns that were cut off before
// their response was committed.
func (l *loop) userText(transcript string) string {
	return strings.TrimSpace(l.carry + " " + strings.TrimSpace(transcript))
}

func (l *loop) onTurnEvent(ctx context.Context, ev audio.TurnEvent) error {
	if l.ending {
		return nil
	}
	switch ev.Kind {
	case audio.UtteranceStart:
		if l.gen != nil && l.gen.speculative {
			l.abandon(ctx)
		}
	case audio.UtterancePaused:
		l.onPaused(ctx, ev)
	case audio.UtteranceEnd:
		return l.onUtteranceEnd(ctx, ev)
	case audio.BargeIn:
		l.onBargeIn(ctx)
	}
	return nil
}

// onPaused starts preemptive generation on the transcript so far.
func (l *loop) onPaused(ctx context.Context, ev audio.TurnEvent) {
	if !l.o.cfg.PreemptiveGeneration || strings.TrimSpace(ev.Transcript) == "" {
		return
	}
	text := l.userText(ev.Transcript)
	if g := l.gen; g != nil {
		if !g.speculative {
			return
		}
		if g.turn.UserText == text && g.version == l.version {
			return
		}
		l.abandon(ctx)
	}
	l.generate(ctx, dialogue.Turn{ID: l.nextTurnID(), UserText: text}, true)
}

func (l *loop) onUtteranceEnd(ctx context.Context, ev audio.TurnEvent) error {
	l.followUps = 0

	// Work answering an earlier utterance is superseded; its text is
	// carried into this turn.
	if g := l.gen; g != nil && !g.speculative {
		l.abandon(ctx)
	}
	text := l.userText(ev.Transcript)
	l.carry = ""

	if g := l.gen; g != nil && g.turn.UserText == text && g.version == l.version {
		g.speculative = false
		l.committed(g.turn.ID, ev)
		l.log.DebugContext(logger.WithTurnID(ctx, g.turn.ID), "using preemptive generation")
		if r := g.result; r != nil {
			g.result = nil
			return l.onGeneration(ctx, *r)
		}
		return nil
	}
	if l.gen != nil {
		l.abandon(ctx)
	}

	turn := dialogue.Turn{ID: l.nextTurnID(), UserText: text}
	l.committed(turn.ID, ev)
	l.generate(ctx, turn, false)
	return nil
}

// committed reports a confirmed end of turn.
func (l *loop) committed(turnID string, ev audio.TurnEvent) {
	l.o.emitter.UtteranceCommitted(turnID, events.UtteranceCommittedData{
		Transcript:           ev.Transcript,
		EndOfTurnProbability: ev.EndOfTurnProbability,
		EndOfUtteranceDelay:  ev.EndOfUtteranceDelay,
		TranscriptionDelay:   ev.TranscriptionDelay,
	})

	eot := "none"
	if l.o.deps.EOT != nil {
		eot = l.o.deps.EOT.Name()
	}
	l.o.agg.Record(metrics.Duration(metrics.StageEOU, metrics.KindLatency, eot, ev.EndOfUtteranceDelay))
	if ev.TranscriptionDelay > 0 {
		l.o.agg.Record(metrics.Duration(metrics.StageSTT, metrics.KindLatency, l.o.deps.STT.Name(), ev.TranscriptionDelay))
	}
}

// onBargeIn stops the agent mid-response. Nothing the cancelled work
// produced is committed.
func (l *loop) onBargeIn(ctx context.Context) {
	turnID := ""
	if l.speech != nil {
		turnID = l.speech.turnID
	}
	if err := l.o.deps.Channel.Interrupt(ctx); err != nil {
		l.log.WarnContext(ctx, "interrupting playback failed", "error", err)
	}
	l.stopSpeech()

	cancelled := l.gen != nil
	if cancelled {
		if turnID == "" {
			turnID = l.gen.turn.ID
		}
		l.abandon(ctx)
	}
	l.followUps = 0
	l.log.InfoContext(logger.WithTurnID(ctx, turnID), "barge-in", "cancelled_generation", cancelled)
	l.o.emitter.BargeIn(turnID, cancelled)
}

// generate starts a generation for turn. The request is prepared here, on
// the loop goroutine, so the task shares nothing mutable with the session.
func (l *loop) generate(ctx context.Context, turn dialogue.Turn, speculative bool) {
	l.seq++
	gctx, cancel := context.WithCancel(ctx)
	g := &generation{
		seq:         l.seq,
		turn:        turn,
		speculative: speculative,
		version:     l.version,
		cancel:      cancel,
	}
	l.gen = g

	req := l.o.adapter.Prepare(turn)
	l.o.emitter.GenerationStarted(turn.ID, l.o.adapter.Provider(), speculative)

	l.tasks.Add(1)
	go func() {
		defer l.tasks.Done()
		r := genResult{seq: g.seq}
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.err = &PanicError{Task: "generation", Value: p}
				}
			}()
			r.res, r.stats, r.err = l.o.adapter.Generate(gctx, req)
		}()
		select {
		case l.results <- r:
		case <-l.quit:
		}
	}()
}

// abandon cancels the current generation. A committed turn's user text is
// kept for the next turn.
func (l *loop) abandon(ctx context.Context) {
	g := l.gen
	if g == nil {
		return
	}
	l.gen = nil
	g.cancel()
	if !g.speculative && g.turn.UserText != "" {
		l.carry = strings.TrimSpace(g.turn.UserText + " " + l.carry)
	}
	if g.result != nil && g.result.err == nil {
		l.recordLLM(g.result.stats)
	}
	l.log.DebugContext(logger.WithTurnID(ctx, g.turn.ID), "generation discarded", "speculative", g.speculative)
	l.o.emitter.GenerationDiscarded(g.turn.ID, l.o.adapter.Provider(), g.speculative)
}

func (l *loop) onGeneration(ctx context.Context, r genResult) error {
	g := l.gen
	if g == nil || g.seq != r.seq {
		return nil
	}
	provider := l.o.adapter.Provider()

	if g.speculative {
		if r.err != nil {
			// The confirmed turn will generate again.
			l.gen = nil
			g.cancel()
			l.o.emitter.GenerationDiscarded(g.turn.ID, provider, true)
			return nil
		}
		g.result = &r
		return nil
	}

	l.gen = nil
	g.cancel()
	turnCtx := logger.WithTurnID(ctx, g.turn.ID)
	if r.err != nil {
		l.o.emitter.GenerationFailed(g.turn.ID, provider, r.stats.Duration, r.err)
		l.o.providerFailed(turnCtx, g.turn.ID, &ProviderError{Stage: metrics.StageLLM, Provider: provider, Err: r.err})
		return nil
	}

	l.recordLLM(r.stats)
	l.o.emitter.GenerationCompleted(g.turn.ID, provider, r.res.Kind(), r.stats.Duration)
	return l.commit(turnCtx, g.turn, r.res)
}

// commit applies a result and acts on the outcome.
func (l *loop) commit(ctx context.Context, turn dialogue.Turn, res dialogue.Result) error {
	_, isSave := res.(dialogue.SaveRequest)
	if isSave {
		l.o.emitter.OrderSaveStarted(turn.ID)
	}

	out := l.o.adapter.Commit(ctx, turn, res)
	l.version++

	if isSave {
		l.reportSave(ctx, turn.ID, out)
	}
	l.reportDraft(turn.ID, res, out)

	if out.EndSession {
		l.ending = true
		if out.Speak == "" {
			return errSessionEnded
		}
	}
	if out.Speak != "" {
		l.speak(ctx, turn.ID, out.Speak, out.EndSession)
	}

	if out.FollowUp && !l.ending {
		if l.followUps >= l.o.cfg.MaxFollowUps {
			l.log.WarnContext(ctx, "follow-up limit reached", "limit", l.o.cfg.MaxFollowUps)
			return nil
		}
		l.followUps++
		l.generate(ctx, dialogue.Turn{ID: turn.ID}, false)
	}
	return nil
}

func (l *loop) reportSave(ctx context.Context, turnID string, out dialogue.Outcome) {
	data := events.OrderSaveData{Status: statusConfirmationRequired}
	if out.ConfirmationRequired || out.Save == nil {
		l.o.emitter.OrderSaveCompleted(turnID, data)
		return
	}

	res := out.Save
	data = events.OrderSaveData{
		OrderID:  res.OrderID,
		Backend:  res.Ack.Backend,
		Status:   res.Status.String(),
		Duration: res.Latency,
		Error:    res.Err,
	}
	l.o.agg.Record(metrics.Duration(metrics.StageTool, metrics.KindLatency, tools.SaveOrderTool, res.Latency))

	switch res.Status {
	case tools.SaveOK:
		l.log.InfoContext(logger.WithOrderID(ctx, res.OrderID), "order saved",
			"order", res.Order.Summary(), "backend", res.Ack.Backend, "ref", res.Ack.Ref)
	case tools.SaveValidationFailed:
		l.log.WarnContext(ctx, "save request rejected", "error", res.Err)
	default:
		l.log.ErrorContext(ctx, "order write failed", "error", res.Err)
	}
	l.o.emitter.OrderSaveCompleted(turnID, data)
}

func (l *loop) reportDraft(turnID string, res dialogue.Result, out dialogue.Outcome) {
	var changed, reset bool
	switch r := res.(type) {
	case dialogue.SpokenResponse:
		changed = (!r.Update.IsZero() && out.UpdateErr == nil) || out.ReadBack
		reset = out.EndSession
	case dialogue.SaveRequest:
		reset = out.Save != nil && out.Save.Status == tools.SaveOK
	}
	if !changed && !reset {
		return
	}

	snap := l.o.draft.Snapshot()
	l.o.emitter.DraftUpdated(turnID, events.DraftUpdatedData{
		Missing:  snap.Missing,
		Complete: l.o.draft.Complete(),
		ReadBack: out.ReadBack,
		Reset:    reset,
	})
}

// speak plays text, replacing anything still playing.
func (l *loop) speak(ctx context.Context, turnID, text string, ending bool) {
	l.stopSpeech()

	l.seq++
	sctx, cancel := context.WithCancel(ctx)
	s := &speech{seq: l.seq, turnID: turnID, cancel: cancel, ending: ending}
	l.speech = s
	l.o.coord.SetAgentSpeaking(true)

	l.tasks.Add(1)
	go func() {
		defer l.tasks.Done()
		r := speechResult{seq: s.seq, turnID: turnID}
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.err = &PanicError{Task: "speech", Value: p}
				}
			}()
			r.report, r.err = l.o.pacer.Speak(sctx, text, l.o.deps.Channel, l.o.coord.NotifySentenceBoundary)
		}()
		select {
		case l.spoken <- r:
		case <-l.quit:
		}
	}()
}

func (l *loop) stopSpeech() {
	if l.speech == nil {
		return
	}
	l.speech.cancel()
	l.speech = nil
	l.o.coord.SetAgentSpeaking(false)
}

func (l *loop) onSpeech(ctx context.Context, r speechResult) error {
	// Clear the speaking flag before publishing so new speech is not taken
	// for a barge-in.
	var ending bool
	if s := l.speech; s != nil && s.seq == r.seq {
		l.speech = nil
		s.cancel()
		l.o.coord.SetAgentSpeaking(false)
		ending = s.ending
	}

	provider := l.o.pacer.Provider()
	l.recordTTS(provider, r.report)
	l.o.emitter.SpeechCompleted(r.turnID, events.SpeechCompletedData{
		Provider:    provider,
		Sentences:   r.report.Sentences,
		Characters:  r.report.Characters,
		Duration:    r.report.AudioDuration,
		Interrupted: r.report.Interrupted,
	})

	if r.err != nil && !r.report.Interrupted {
		if errors.Is(r.err, audio.ErrChannelClosed) {
			return r.err
		}
		l.o.providerFailed(logger.WithTurnID(ctx, r.turnID), r.turnID,
			&ProviderError{Stage: metrics.StageTTS, Provider: provider, Err: r.err})
	}
	if ending {
		return errSessionEnded
	}
	return nil
}

func (l *loop) recordLLM(stats dialogue.Stats) {
	agg := l.o.agg
	if stats.TTFT > 0 {
		agg.Record(metrics.Duration(metrics.StageLLM, metrics.KindTTFT, stats.Provider, stats.TTFT))
	}
	agg.Record(metrics.Duration(metrics.StageLLM, metrics.KindLatency, stats.Provider, stats.Duration))
	if stats.PromptTokens > 0 {
		agg.Record(metrics.Count(metrics.StageLLM, metrics.KindPromptTokens, stats.Provider, float64(stats.PromptTokens)))
	}
	if stats.CompletionTokens > 0 {
		agg.Record(metrics.Count(metrics.StageLLM, metrics.KindCompletionTokens, stats.Provider, float64(stats.CompletionTokens)))
	}
}

func (l *loop) recordTTS(provider string, report tts.SpeechReport) {
	agg := l.o.agg
	if report.TTFB > 0 {
		agg.Record(metrics.Duration(metrics.StageTTS, metrics.KindTTFB, provider, report.TTFB))
	}
	if report.Characters > 0 {
		agg.Record(metrics.Count(metrics.StageTTS, metrics.KindCharacters, provider, float64(report.Characters)))
	}
	if report.AudioDuration > 0 {
		agg.Record(metrics.Count(metrics.StageTTS, metrics.KindAudioSeconds, provider, report.AudioDuration.Seconds()))
	}
}
