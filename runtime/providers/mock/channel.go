package mock

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
)

const (
	// FrameDuration is the length of frames produced by PushSpeech and PushSilence.
	FrameDuration = 20 * time.Millisecond

	speechAmplitude = 16000
	inboundBuffer   = 1024
)

// Channel is an in-memory audio.SpeechChannel. Tests push customer audio
// in and inspect what the agent sent back.
type Channel struct {
	sampleRate int

	in     chan audio.Frame
	closed chan struct{}
	hangup chan struct{}

	closeOnce  sync.Once
	hangupOnce sync.Once

	mu         sync.Mutex
	sentBytes  int
	interrupts int
	sendErr    error
}

var _ audio.SpeechChannel = (*Channel)(nil)

// NewChannel returns a channel carrying audio at sampleRate.
func NewChannel(sampleRate int) *Channel {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate16kHz
	}
	return &Channel{
		sampleRate: sampleRate,
		in:         make(chan audio.Frame, inboundBuffer),
		closed:     make(chan struct{}),
		hangup:     make(chan struct{}),
	}
}

// Push queues one inbound frame.
func (c *Channel) Push(ctx context.Context, f audio.Frame) error {
	select {
	case c.in <- f:
		return nil
	case <-c.closed:
		return audio.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushSpeech queues d of loud audio in FrameDuration frames.
func (c *Channel) PushSpeech(ctx context.Context, d time.Duration) error {
	return c.pushFrames(ctx, d, speechAmplitude)
}

// PushSilence queues d of silence in FrameDuration frames.
func (c *Channel) PushSilence(ctx context.Context, d time.Duration) error {
	return c.pushFrames(ctx, d, 0)
}

// PushUtterance queues speech followed by enough silence for the default
// VAD to return to quiet.
func (c *Channel) PushUtterance(ctx context.Context, speech time.Duration) error {
	if err := c.PushSpeech(ctx, speech); err != nil {
		return err
	}
	return c.PushSilence(ctx, 800*time.Millisecond)
}

func (c *Channel) pushFrames(ctx context.Context, d time.Duration, amplitude int16) error {
	samples := int(int64(c.sampleRate) * int64(FrameDuration) / int64(time.Second))
	for elapsed := time.Duration(0); elapsed < d; elapsed += FrameDuration {
		data := make([]byte, samples*2)
		for i := 0; i < samples; i++ {
			v := amplitude
			if i%2 == 1 {
				v = -amplitude
			}
			// #nosec G115 -- signed PCM reinterpretation
			binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
		}
		if err := c.Push(ctx, audio.Frame{Data: data, SampleRate: c.sampleRate, Timestamp: time.Now()}); err != nil {
			return err
		}
	}
	return nil
}

// Hangup makes Recv report audio.ErrChannelClosed once queued frames are read.
func (c *Channel) Hangup() {
	c.hangupOnce.Do(func() { close(c.hangup) })
}

// FailSends makes every later Send return err.
func (c *Channel) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Recv implements audio.SpeechChannel.
func (c *Channel) Recv(ctx context.Context) (audio.Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	default:
	}
	select {
	case f := <-c.in:
		return f, nil
	case <-c.hangup:
		select {
		case f := <-c.in:
			return f, nil
		default:
			return audio.Frame{}, audio.ErrChannelClosed
		}
	case <-c.closed:
		return audio.Frame{}, audio.ErrChannelClosed
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// Send implements audio.SpeechChannel.
func (c *Channel) Send(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return audio.ErrChannelClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sentBytes += len(pcm)
	return nil
}

// Interrupt implements audio.SpeechChannel.
func (c *Channel) Interrupt(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupts++
	return nil
}

// Close implements audio.SpeechChannel.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// SentBytes returns the total PCM bytes the agent sent.
func (c *Channel) SentBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sentBytes
}

// Interrupts returns how many times the agent flushed playback.
func (c *Channel) Interrupts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupts
}
