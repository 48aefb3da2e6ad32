package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/tts"
)

const (
	ttsName          = "mock-tts"
	defaultMsPerChar = 10
	defaultChunkMs   = 40
)

// TTS is a scripted tts.StreamingService producing silence whose length is
// proportional to the text.
type TTS struct {
	script TTSScript

	mu     sync.Mutex
	spoken []string
}

var _ tts.StreamingService = (*TTS)(nil)

// NewTTS returns a synthesizer following script.
func NewTTS(script TTSScript) *TTS {
	if script.MsPerChar <= 0 {
		script.MsPerChar = defaultMsPerChar
	}
	if script.ChunkMs <= 0 {
		script.ChunkMs = defaultChunkMs
	}
	return &TTS{script: script}
}

// Name implements tts.StreamingService.
func (t *TTS) Name() string { return ttsName }

// Spoken returns every text passed to SynthesizeStream, in order.
func (t *TTS) Spoken() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.spoken...)
}

// SynthesizeStream implements tts.StreamingService.
func (t *TTS) SynthesizeStream(ctx context.Context, text string, cfg tts.SynthesisConfig) (<-chan tts.AudioChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	if t.script.FailOn != "" && strings.Contains(text, t.script.FailOn) {
		return nil, tts.NewSynthesisError(ttsName, "scripted", "synthesis refused", nil)
	}

	t.mu.Lock()
	t.spoken = append(t.spoken, text)
	t.mu.Unlock()

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = tts.DefaultSynthesisConfig().SampleRate
	}
	total := bytesFor(time.Duration(len(text)*t.script.MsPerChar)*time.Millisecond, rate)
	chunk := bytesFor(time.Duration(t.script.ChunkMs)*time.Millisecond, rate)

	out := make(chan tts.AudioChunk)
	go func() {
		defer close(out)
		for i, sent := 0, 0; sent < total; i++ {
			n := min(chunk, total-sent)
			sent += n
			select {
			case out <- tts.AudioChunk{Data: make([]byte, n), Index: i, Final: sent >= total}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// bytesFor returns the even byte length of d of mono 16-bit PCM at rate.
func bytesFor(d time.Duration, rate int) int {
	n := int(int64(rate) * int64(d) / int64(time.Second))
	return n * 2
}
