package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Common sample rates.
const (
	SampleRate16kHz = 16000
	SampleRate24kHz = 24000
	SampleRate48kHz = 48000
)

// ErrChannelClosed is returned by a SpeechChannel once the remote side has
// gone away. It ends the session rather than a single turn.
var ErrChannelClosed = errors.New("speech channel closed")

// Frame is a chunk of mono 16-bit little-endian PCM audio.
type Frame struct {
	Data       []byte
	SampleRate int
	Timestamp  time.Time
}

// Duration returns the play time of the frame.
func (f Frame) Duration() time.Duration {
	return pcmDuration(len(f.Data), f.SampleRate)
}

// Resample returns the frame converted to toRate using linear interpolation.
// The input frame is never modified.
func (f Frame) Resample(toRate int) (Frame, error) {
	if f.SampleRate <= 0 || toRate <= 0 {
		return Frame{}, fmt.Errorf("invalid sample rate conversion %d -> %d", f.SampleRate, toRate)
	}
	if f.SampleRate == toRate || len(f.Data) < pcmBytesPerSample {
		out := f
		out.Data = append([]byte(nil), f.Data...)
		out.SampleRate = toRate
		return out, nil
	}

	in := len(f.Data) / pcmBytesPerSample
	outSamples := int(int64(in) * int64(toRate) / int64(f.SampleRate))
	if outSamples == 0 {
		outSamples = 1
	}

	sample := func(i int) float64 {
		// #nosec G115 -- signed PCM reinterpretation
		return float64(int16(binary.LittleEndian.Uint16(f.Data[i*pcmBytesPerSample:])))
	}

	data := make([]byte, outSamples*pcmBytesPerSample)
	step := float64(f.SampleRate) / float64(toRate)
	for i := 0; i < outSamples; i++ {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= in-1 {
			lo = in - 1
		}
		hi := lo + 1
		if hi >= in {
			hi = lo
		}
		frac := pos - float64(lo)
		v := sample(lo)*(1-frac) + sample(hi)*frac
		// #nosec G115 -- value is interpolated between two int16 samples
		binary.LittleEndian.PutUint16(data[i*pcmBytesPerSample:], uint16(int16(v)))
	}

	return Frame{Data: data, SampleRate: toRate, Timestamp: f.Timestamp}, nil
}

// SpeechChannel is the bidirectional audio link to the customer.
//
// Recv blocks until a frame arrives, ctx is done or the channel closes
// (ErrChannelClosed). Send publishes synthesized PCM. Interrupt tells the
// remote side to discard any audio it has buffered for playback.
type SpeechChannel interface {
	Recv(ctx context.Context) (Frame, error)
	Send(ctx context.Context, pcm []byte) error
	Interrupt(ctx context.Context) error
	Close() error
}

// NoiseFilter cleans inbound frames before they reach VAD and STT.
type NoiseFilter interface {
	Name() string
	Process(ctx context.Context, f Frame) (Frame, error)
}

// PassthroughFilter returns frames unchanged. It stands in when no noise
// suppression model is configured.
type PassthroughFilter struct{}

// Name returns the filter identifier.
func (PassthroughFilter) Name() string { return "passthrough" }

// Process returns f.
func (PassthroughFilter) Process(_ context.Context, f Frame) (Frame, error) { return f, nil }
