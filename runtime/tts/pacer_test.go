package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService returns bytesPerChar bytes of silence per character in chunks of chunkSize.
type fakeService struct {
	bytesPerChar int
	chunkSize    int
	failOn       string
	calls        []string
}

func (s *fakeService) Name() string { return "fake" }

func (s *fakeService) SynthesizeStream(ctx context.Context, text string, _ SynthesisConfig) (<-chan AudioChunk, error) {
	s.calls = append(s.calls, text)
	out := make(chan AudioChunk)
	go func() {
		defer close(out)
		if text == s.failOn {
			out <- AudioChunk{Error: ErrServiceUnavailable}
			return
		}
		remaining := len(text) * s.bytesPerChar
		for i := 0; remaining > 0; i++ {
			n := min(s.chunkSize, remaining)
			remaining -= n
			select {
			case out <- AudioChunk{Data: make([]byte, n), Index: i, Final: remaining == 0}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type recordingSink struct {
	mu    sync.Mutex
	bytes int
	sends int
}

func (s *recordingSink) Send(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytes += len(pcm)
	s.sends++
	return nil
}

func unpaced() PacerConfig {
	cfg := DefaultPacerConfig()
	cfg.Pacing = false
	return cfg
}

func TestPacer_SpeaksEverySentence(t *testing.T) {
	svc := &fakeService{bytesPerChar: 10, chunkSize: 64}
	sink := &recordingSink{}
	p := NewPacer(svc, unpaced(), nil)

	var boundaries int
	report, err := p.Speak(context.Background(), "Hi! What can I get you?", sink, func() { boundaries++ })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi!", "What can I get you?"}, svc.calls)
	assert.Equal(t, 2, report.Sentences)
	assert.Equal(t, 2, boundaries)
	assert.Equal(t, len("Hi!")+len("What can I get you?"), report.Characters)
	assert.Equal(t, report.Characters*10, sink.bytes)
	assert.Equal(t, sink.bytes, report.AudioBytes)
	assert.Positive(t, report.TTFB)
	assert.False(t, report.Interrupted)
}

func TestPacer_CountsCharactersNotBytes(t *testing.T) {
	svc := &fakeService{bytesPerChar: 1, chunkSize: 64}
	p := NewPacer(svc, unpaced(), nil)

	text := "Un café crème, s'il vous plaît."
	report, err := p.Speak(context.Background(), text, &recordingSink{}, nil)
	require.NoError(t, err)

	assert.Equal(t, utf8.RuneCountInString(text), report.Characters)
	assert.Less(t, report.Characters, len(text))
}

func TestPacer_EmptyText(t *testing.T) {
	p := NewPacer(&fakeService{}, unpaced(), nil)
	_, err := p.Speak(context.Background(), "  ", &recordingSink{}, nil)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestPacer_PacesAtPlaybackSpeed(t *testing.T) {
	cfg := DefaultPacerConfig()
	cfg.Synthesis.SampleRate = 8000 // 16000 bytes per second, 3200 byte burst

	svc := &fakeService{bytesPerChar: 1000, chunkSize: 4000}
	sink := &recordingSink{}
	p := NewPacer(svc, cfg, nil)

	start := time.Now()
	report, err := p.Speak(context.Background(), "Latte.", sink, nil) // 6000 bytes
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 6000, sink.bytes)
	assert.Greater(t, sink.sends, 1, "chunks larger than the burst must be split")
	assert.Equal(t, 375*time.Millisecond, report.AudioDuration)
}

func TestPacer_CancelStopsBetweenSentences(t *testing.T) {
	svc := &fakeService{bytesPerChar: 10, chunkSize: 64}
	sink := &recordingSink{}
	p := NewPacer(svc, unpaced(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	report, err := p.Speak(ctx, "First sentence. Second sentence. Third one.", sink, cancel)

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Interrupted)
	assert.Equal(t, 1, report.Sentences)
	assert.Len(t, svc.calls, 2)
}

func TestPacer_SynthesisFailure(t *testing.T) {
	svc := &fakeService{bytesPerChar: 10, chunkSize: 64, failOn: "Broken."}
	p := NewPacer(svc, unpaced(), nil)

	report, err := p.Speak(context.Background(), "Fine. Broken. Never.", &recordingSink{}, nil)

	var se *SynthesisError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fake", se.Provider)
	assert.Equal(t, "Broken.", se.Sentence)
	assert.True(t, errors.Is(err, ErrServiceUnavailable))
	assert.Equal(t, 1, report.Sentences)
	assert.False(t, report.Interrupted)
}
