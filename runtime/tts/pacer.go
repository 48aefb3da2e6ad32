package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/AltairaLabs/voicebarista/runtime/logger"
)

const (
	bytesPerSample = 2
	// pacingBurst is how far ahead of real time audio may run.
	pacingBurst = 200 * time.Millisecond
)

// AudioSink receives synthesized PCM.
type AudioSink interface {
	Send(ctx context.Context, pcm []byte) error
}

// PacerConfig configures sentence-paced speech.
type PacerConfig struct {
	// Pacing throttles output to real-time playback speed.
	Pacing bool `yaml:"pacing"`

	// MinSentenceLen is passed to the SentenceTokenizer.
	MinSentenceLen int `yaml:"min_sentence_len"`

	Synthesis SynthesisConfig `yaml:"synthesis"`
}

// DefaultPacerConfig returns pacing on with the default tokenizer.
func DefaultPacerConfig() PacerConfig {
	return PacerConfig{
		Pacing:         true,
		MinSentenceLen: DefaultMinSentenceLen,
		Synthesis:      DefaultSynthesisConfig(),
	}
}

// SpeechReport describes one Speak call.
type SpeechReport struct {
	Sentences     int
	Characters    int
	AudioBytes    int
	TTFB          time.Duration
	AudioDuration time.Duration
	Interrupted   bool
}

// Pacer synthesizes text sentence by sentence and streams it to a sink.
type Pacer struct {
	svc       StreamingService
	cfg       PacerConfig
	tokenizer SentenceTokenizer
	log       *slog.Logger
}

// NewPacer creates a Pacer over svc.
func NewPacer(svc StreamingService, cfg PacerConfig, log *slog.Logger) *Pacer {
	if cfg.Synthesis.SampleRate <= 0 {
		cfg.Synthesis.SampleRate = DefaultSynthesisConfig().SampleRate
	}
	return &Pacer{
		svc:       svc,
		cfg:       cfg,
		tokenizer: SentenceTokenizer{MinSentenceLen: cfg.MinSentenceLen},
		log:       logger.OrDiscard(log),
	}
}

// Provider returns the underlying service name.
func (p *Pacer) Provider() string {
	return p.svc.Name()
}

// Speak synthesizes text and writes it to sink. onSentence, if set, is
// called after each sentence has been fully written. When ctx is cancelled
// Speak stops between chunks and returns a report with Interrupted set and
// the context's error.
func (p *Pacer) Speak(ctx context.Context, text string, sink AudioSink, onSentence func()) (SpeechReport, error) {
	var report SpeechReport
	sentences := p.tokenizer.Split(text)
	if len(sentences) == 0 {
		return report, ErrEmptyText
	}

	var limiter *rate.Limiter
	bytesPerSecond := p.cfg.Synthesis.SampleRate * bytesPerSample
	if p.cfg.Pacing {
		burst := int(int64(bytesPerSecond) * int64(pacingBurst) / int64(time.Second))
		limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
	}

	start := time.Now()
	for _, sentence := range sentences {
		if err := p.speakSentence(ctx, sentence, sink, limiter, start, &report); err != nil {
			report.AudioDuration = durationOf(report.AudioBytes, bytesPerSecond)
			if ctx.Err() != nil {
				report.Interrupted = true
				return report, ctx.Err()
			}
			return report, err
		}
		report.Sentences++
		if onSentence != nil {
			onSentence()
		}
	}

	report.AudioDuration = durationOf(report.AudioBytes, bytesPerSecond)
	return report, nil
}

func (p *Pacer) speakSentence(
	ctx context.Context, sentence string, sink AudioSink, limiter *rate.Limiter, start time.Time, report *SpeechReport,
) error {
	chunks, err := p.svc.SynthesizeStream(ctx, sentence, p.cfg.Synthesis)
	if err != nil {
		return wrapSynthesis(p.svc.Name(), sentence, err)
	}
	report.Characters += utf8.RuneCountInString(sentence)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			if chunk.Error != nil {
				return wrapSynthesis(p.svc.Name(), sentence, chunk.Error)
			}
			if len(chunk.Data) == 0 {
				continue
			}
			if report.TTFB == 0 {
				report.TTFB = time.Since(start)
			}
			if err := p.write(ctx, chunk.Data, sink, limiter); err != nil {
				return err
			}
			report.AudioBytes += len(chunk.Data)
		}
	}
}

// write sends data to sink, split so no piece exceeds the limiter burst.
func (p *Pacer) write(ctx context.Context, data []byte, sink AudioSink, limiter *rate.Limiter) error {
	for len(data) > 0 {
		n := len(data)
		if limiter != nil {
			if b := limiter.Burst(); n > b {
				n = b
			}
			if err := limiter.WaitN(ctx, n); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.Send(ctx, data[:n]); err != nil {
			return fmt.Errorf("sending audio: %w", err)
		}
		data = data[n:]
	}
	return nil
}

func wrapSynthesis(provider, sentence string, err error) error {
	var se *SynthesisError
	if errors.As(err, &se) {
		if se.Sentence == "" {
			se.Sentence = sentence
		}
		return err
	}
	e := NewSynthesisError(provider, "", "synthesis failed", err)
	e.Sentence = sentence
	return e
}

func durationOf(n, bytesPerSecond int) time.Duration {
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}
