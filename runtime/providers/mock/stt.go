package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/stt"
)

const (
	sttName              = "mock-stt"
	transcriptBufferSize = 16
)

// ErrSTTFailure is the cause of the scripted recognizer failure.
var ErrSTTFailure = errors.New("scripted recognizer failure")

// STT is a scripted stt.StreamingService. Each stream runs its own VAD and
// emits the next scripted utterance as a final transcript when a stretch of
// speech ends. The utterance queue is shared across streams, so a stream
// reopened after a failure carries on where the last one stopped.
type STT struct {
	script STTScript
	vad    audio.VADParams

	mu      sync.Mutex
	next    int
	emitted int
	failed  bool
	opened  int
}

var _ stt.StreamingService = (*STT)(nil)

// NewSTT returns a recognizer that segments audio with vad.
func NewSTT(script STTScript, vad audio.VADParams) *STT {
	return &STT{script: script, vad: vad}
}

// Name implements stt.StreamingService.
func (s *STT) Name() string { return sttName }

// Opened returns how many streams were opened.
func (s *STT) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// OpenStream implements stt.StreamingService.
func (s *STT) OpenStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := s.vad
	if cfg.SampleRate > 0 {
		params.SampleRate = cfg.SampleRate
	}
	vad, err := audio.NewSimpleVAD(params)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.opened++
	s.mu.Unlock()

	return &sttStream{
		svc:         s,
		vad:         vad,
		rate:        params.SampleRate,
		transcripts: make(chan stt.Transcript, transcriptBufferSize),
	}, nil
}

// take returns the next utterance. fail is set when the stream should end
// with the scripted failure after delivering it.
func (s *STT) take() (text string, ok, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.script.Utterances) {
		return "", false, false
	}
	text = s.script.Utterances[s.next]
	s.next++
	s.emitted++
	if s.script.FailAfter > 0 && !s.failed && s.emitted >= s.script.FailAfter {
		s.failed = true
		fail = true
	}
	return text, true, fail
}

type sttStream struct {
	svc  *STT
	vad  *audio.SimpleVAD
	rate int

	mu          sync.Mutex
	transcripts chan stt.Transcript
	closed      bool
	err         error
	voiced      time.Duration
	last        audio.VADState
}

// Send implements stt.Stream.
func (st *sttStream) Send(ctx context.Context, f audio.Frame) error {
	if f.SampleRate != 0 && f.SampleRate != st.rate {
		err := stt.NewTranscriptionError(sttName, "format",
			fmt.Sprintf("expected %d Hz audio, got %d Hz", st.rate, f.SampleRate), stt.ErrInvalidFormat, false)
		st.mu.Lock()
		st.finish(err)
		st.mu.Unlock()
		return err
	}
	if _, err := st.vad.Analyze(ctx, f.Data); err != nil {
		return err
	}
	state := st.vad.State()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		if st.err != nil {
			return st.err
		}
		return stt.ErrStreamClosed
	}

	prev := st.last
	st.last = state
	if state != audio.VADStateQuiet {
		st.voiced += f.Duration()
	}
	if state != audio.VADStateQuiet || prev == audio.VADStateQuiet {
		return nil
	}

	text, ok, fail := st.svc.take()
	dur := st.voiced
	st.voiced = 0
	if !ok {
		return nil
	}
	select {
	case st.transcripts <- stt.Transcript{Text: text, Final: true, AudioDuration: dur, Confidence: 1}:
	default:
	}
	if fail {
		st.finish(stt.NewTranscriptionError(sttName, "scripted", "recognizer dropped the stream", ErrSTTFailure, true))
	}
	return nil
}

// Transcripts implements stt.Stream.
func (st *sttStream) Transcripts() <-chan stt.Transcript { return st.transcripts }

// Err implements stt.Stream.
func (st *sttStream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Close implements stt.Stream.
func (st *sttStream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.finish(nil)
	return nil
}

// finish closes the stream once. Callers hold mu.
func (st *sttStream) finish(err error) {
	if st.closed {
		return
	}
	st.closed = true
	st.err = err
	close(st.transcripts)
}
