package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/logger"
)

// Default endpointing values.
const (
	DefaultMinEndpointingDelay = 500 * time.Millisecond
	DefaultMaxEndpointingDelay = 6 * time.Second
	DefaultEndOfTurnThreshold  = 0.5

	turnEventBufferSize = 32
)

// TurnEventKind identifies a turn boundary signal.
type TurnEventKind int

const (
	// UtteranceStart is emitted when customer speech begins, including when
	// speech resumes after a pause that had not yet been committed.
	UtteranceStart TurnEventKind = iota
	// UtterancePaused is emitted when speech stops but the turn is not yet
	// confirmed. Work started on its transcript is speculative.
	UtterancePaused
	// UtteranceEnd is emitted once the turn is confirmed.
	UtteranceEnd
	// BargeIn is emitted when customer speech should cut agent output.
	BargeIn
)

// String returns the event name.
func (k TurnEventKind) String() string {
	switch k {
	case UtteranceStart:
		return "utterance_start"
	case UtterancePaused:
		return "utterance_paused"
	case UtteranceEnd:
		return "utterance_end"
	case BargeIn:
		return "barge_in"
	default:
		return unknownState
	}
}

// TurnEvent is a turn boundary signal emitted by the TurnCoordinator.
type TurnEvent struct {
	Kind       TurnEventKind
	Transcript string
	At         time.Time

	// Set on UtteranceEnd.
	EndOfTurnProbability float64
	EndOfUtteranceDelay  time.Duration
	TranscriptionDelay   time.Duration
}

// TranscriptSegment is a piece of recognized customer speech.
type TranscriptSegment struct {
	Text  string
	Final bool
}

// TurnConfig tunes endpointing and interruption.
type TurnConfig struct {
	MinEndpointingDelay time.Duration        `yaml:"min_endpointing_delay"`
	MaxEndpointingDelay time.Duration        `yaml:"max_endpointing_delay"`
	EndOfTurnThreshold  float64              `yaml:"end_of_turn_threshold"`
	Interruption        InterruptionStrategy `yaml:"interruption"`
}

// DefaultTurnConfig returns the default endpointing configuration.
func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		MinEndpointingDelay: DefaultMinEndpointingDelay,
		MaxEndpointingDelay: DefaultMaxEndpointingDelay,
		EndOfTurnThreshold:  DefaultEndOfTurnThreshold,
		Interruption:        InterruptionImmediate,
	}
}

// Validate checks the configuration.
func (c TurnConfig) Validate() error {
	if c.MinEndpointingDelay < 0 {
		return &ValidationError{Field: "MinEndpointingDelay", Message: "must be non-negative"}
	}
	if c.MaxEndpointingDelay < c.MinEndpointingDelay {
		return &ValidationError{Field: "MaxEndpointingDelay", Message: "must not be below MinEndpointingDelay"}
	}
	if c.EndOfTurnThreshold < 0 || c.EndOfTurnThreshold > 1 {
		return &ValidationError{Field: "EndOfTurnThreshold", Message: "must be between 0.0 and 1.0"}
	}
	return nil
}

type eotVerdict struct {
	gen         uint64
	probability float64
	err         error
}

// TurnCoordinator turns VAD states and transcripts into turn boundary events.
//
// Run owns all utterance state; SetAgentSpeaking and NotifySentenceBoundary
// may be called from any goroutine.
type TurnCoordinator struct {
	cfg          TurnConfig
	vad          VADAnalyzer
	eot          EndOfTurnModel
	interruption *InterruptionHandler
	log          *slog.Logger

	events   chan TurnEvent
	verdicts chan eotVerdict

	closeMu sync.RWMutex
	closed  bool

	// Run-goroutine state.
	lastState    VADState
	inUtterance  bool
	paused       bool
	pausedAt     time.Time
	lastFinalAt  time.Time
	finals       []string
	interim      string
	gen          uint64
	probability  float64
	commitTimer  *time.Timer
	commitC      <-chan time.Time
	awaitVerdict bool
}

// NewTurnCoordinator builds a coordinator. eot may be nil, in which case
// every pause commits after MaxEndpointingDelay.
func NewTurnCoordinator(cfg TurnConfig, vad VADAnalyzer, eot EndOfTurnModel, log *slog.Logger) (*TurnCoordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TurnCoordinator{
		cfg:          cfg,
		vad:          vad,
		eot:          eot,
		interruption: NewInterruptionHandler(cfg.Interruption),
		log:          logger.OrDiscard(log),
		events:       make(chan TurnEvent, turnEventBufferSize),
		verdicts:     make(chan eotVerdict, 1),
	}, nil
}

// Events returns the event stream. It is closed when Run returns.
func (c *TurnCoordinator) Events() <-chan TurnEvent {
	return c.events
}

// SetAgentSpeaking tells the coordinator whether agent audio is playing.
func (c *TurnCoordinator) SetAgentSpeaking(speaking bool) {
	c.interruption.SetAgentSpeaking(speaking)
}

// NotifySentenceBoundary tells the coordinator the agent finished a
// sentence. A deferred interruption fires here.
func (c *TurnCoordinator) NotifySentenceBoundary() {
	if c.interruption.NotifySentenceBoundary() {
		c.emitNow(TurnEvent{Kind: BargeIn, At: time.Now()})
	}
}

// Run consumes frames and transcripts until ctx is done or frames closes.
func (c *TurnCoordinator) Run(ctx context.Context, frames <-chan Frame, transcripts <-chan TranscriptSegment) error {
	defer c.close()
	defer c.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f, ok := <-frames:
			if !ok {
				return nil
			}
			c.handleFrame(ctx, f)

		case seg, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			c.handleTranscript(ctx, seg)

		case v := <-c.verdicts:
			c.handleVerdict(ctx, v)

		case <-c.commitC:
			c.commitC = nil
			c.commit(ctx)
		}
	}
}

func (c *TurnCoordinator) handleFrame(ctx context.Context, f Frame) {
	if _, err := c.vad.Analyze(ctx, f.Data); err != nil {
		c.log.WarnContext(ctx, "vad analyze failed", "vad", c.vad.Name(), "error", err)
		return
	}

	state := c.vad.State()
	prev := c.lastState
	c.lastState = state

	switch {
	case state == VADStateSpeaking && prev != VADStateSpeaking:
		c.onSpeechStart(ctx)
	case state == VADStateQuiet && prev != VADStateQuiet && c.inUtterance && !c.paused:
		c.onSpeechStop(ctx)
	}
}

func (c *TurnCoordinator) onSpeechStart(ctx context.Context) {
	if c.interruption.ProcessVADState(VADStateSpeaking) {
		c.emit(ctx, TurnEvent{Kind: BargeIn, At: time.Now()})
	}

	if c.inUtterance && !c.paused {
		return
	}
	if c.paused {
		c.cancelPendingCommit()
	}
	c.inUtterance = true
	c.paused = false
	c.emit(ctx, TurnEvent{Kind: UtteranceStart, Transcript: c.transcript(), At: time.Now()})
}

func (c *TurnCoordinator) onSpeechStop(ctx context.Context) {
	c.paused = true
	c.pausedAt = time.Now()
	c.emit(ctx, TurnEvent{Kind: UtterancePaused, Transcript: c.transcript(), At: c.pausedAt})
	c.scheduleCommit(ctx)
}

func (c *TurnCoordinator) handleTranscript(ctx context.Context, seg TranscriptSegment) {
	text := strings.TrimSpace(seg.Text)
	if seg.Final {
		if text != "" {
			c.finals = append(c.finals, text)
		}
		c.interim = ""
		c.lastFinalAt = time.Now()
	} else {
		c.interim = text
	}

	if !c.paused || !seg.Final {
		return
	}

	// A final transcript arrived after speech stopped: speculative work
	// started on the old text is stale, so re-announce and re-score.
	c.emit(ctx, TurnEvent{Kind: UtterancePaused, Transcript: c.transcript(), At: time.Now()})
	c.scheduleCommit(ctx)
}

// scheduleCommit starts endpointing for the current transcript.
func (c *TurnCoordinator) scheduleCommit(ctx context.Context) {
	c.gen++
	c.stopTimer()
	text := c.transcript()

	if text == "" {
		// Nothing to score yet. Give the recognizer the full window to
		// deliver a final; commit drops the utterance if none arrives.
		c.awaitVerdict = false
		c.armTimer(c.remaining(c.cfg.MaxEndpointingDelay))
		return
	}
	if c.eot == nil {
		c.probability = 0
		c.armTimer(c.remaining(c.cfg.MaxEndpointingDelay))
		return
	}

	c.awaitVerdict = true
	gen := c.gen
	model := c.eot
	go func() {
		p, err := model.PredictEndOfTurn(ctx, text)
		select {
		case c.verdicts <- eotVerdict{gen: gen, probability: p, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (c *TurnCoordinator) handleVerdict(ctx context.Context, v eotVerdict) {
	if v.gen != c.gen || !c.paused || !c.awaitVerdict {
		return
	}
	c.awaitVerdict = false

	delay := c.cfg.MaxEndpointingDelay
	c.probability = v.probability
	switch {
	case v.err != nil:
		c.log.WarnContext(ctx, "end of turn prediction failed", "model", c.eot.Name(), "error", v.err)
		c.probability = 0
	case v.probability >= c.cfg.EndOfTurnThreshold:
		delay = c.cfg.MinEndpointingDelay
	}
	c.armTimer(c.remaining(delay))
}

// remaining converts a delay measured from the pause into a timer duration.
func (c *TurnCoordinator) remaining(delay time.Duration) time.Duration {
	left := delay - time.Since(c.pausedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (c *TurnCoordinator) commit(ctx context.Context) {
	if !c.paused || c.awaitVerdict {
		return
	}

	text := c.transcript()
	if text == "" {
		c.log.DebugContext(ctx, "dropping utterance without transcript")
		c.resetUtterance()
		return
	}

	now := time.Now()
	ev := TurnEvent{
		Kind:                 UtteranceEnd,
		Transcript:           text,
		At:                   now,
		EndOfTurnProbability: c.probability,
		EndOfUtteranceDelay:  now.Sub(c.pausedAt),
	}
	if c.lastFinalAt.After(c.pausedAt) {
		ev.TranscriptionDelay = c.lastFinalAt.Sub(c.pausedAt)
	}
	c.resetUtterance()
	c.emit(ctx, ev)
}

func (c *TurnCoordinator) resetUtterance() {
	c.inUtterance = false
	c.paused = false
	c.awaitVerdict = false
	c.finals = nil
	c.interim = ""
	c.probability = 0
	c.gen++
}

func (c *TurnCoordinator) cancelPendingCommit() {
	c.gen++
	c.awaitVerdict = false
	c.stopTimer()
}

func (c *TurnCoordinator) transcript() string {
	parts := c.finals
	if c.interim != "" {
		parts = append(parts[:len(parts):len(parts)], c.interim)
	}
	return strings.Join(parts, " ")
}

func (c *TurnCoordinator) armTimer(d time.Duration) {
	c.stopTimer()
	c.commitTimer = time.NewTimer(d)
	c.commitC = c.commitTimer.C
}

func (c *TurnCoordinator) stopTimer() {
	if c.commitTimer != nil {
		c.commitTimer.Stop()
		c.commitTimer = nil
	}
	c.commitC = nil
}

// emit delivers an event from the Run goroutine, blocking on a slow consumer.
func (c *TurnCoordinator) emit(ctx context.Context, ev TurnEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// emitNow delivers an event from outside Run without blocking.
func (c *TurnCoordinator) emitNow(ev TurnEvent) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.log.Warn("turn event dropped", "kind", ev.Kind.String())
	}
}

func (c *TurnCoordinator) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.closed = true
	close(c.events)
}
