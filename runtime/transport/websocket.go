// Package transport carries session audio over the network.
//
// WebSocketChannel implements audio.SpeechChannel on a gorilla/websocket
// connection: binary messages are 16-bit mono PCM in both directions, and
// text messages are small JSON control messages.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/logger"
)

// Default connection constants.
const (
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 1 << 20
	DefaultCloseGracePeriod = 2 * time.Second
	defaultFrameBuffer      = 64
)

// Control message types.
const (
	// ControlInterrupt is sent to the client on barge-in: drop buffered playback.
	ControlInterrupt = "interrupt"
	// ControlHangup may be sent by the client to end the session.
	ControlHangup = "hangup"
)

// ControlMessage is the JSON body of a text message.
type ControlMessage struct {
	Type string `json:"type"`
}

// Config configures a WebSocketChannel.
type Config struct {
	// InputSampleRate is the rate of PCM the client sends.
	InputSampleRate int `yaml:"input_sample_rate"`

	// SampleRate is the rate frames are delivered at; input is resampled
	// when the two differ.
	SampleRate int `yaml:"sample_rate"`

	WriteWait        time.Duration `yaml:"write_wait"`
	MaxMessageSize   int64         `yaml:"max_message_size"`
	CloseGracePeriod time.Duration `yaml:"close_grace_period"`
}

// DefaultConfig returns 16 kHz in and out.
func DefaultConfig() Config {
	return Config{
		InputSampleRate:  audio.SampleRate16kHz,
		SampleRate:       audio.SampleRate16kHz,
		WriteWait:        DefaultWriteWait,
		MaxMessageSize:   DefaultMaxMessageSize,
		CloseGracePeriod: DefaultCloseGracePeriod,
	}
}

func (c *Config) defaults() {
	d := DefaultConfig()
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = d.InputSampleRate
	}
	if c.SampleRate <= 0 {
		c.SampleRate = c.InputSampleRate
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.CloseGracePeriod <= 0 {
		c.CloseGracePeriod = d.CloseGracePeriod
	}
}

// WebSocketChannel is a SpeechChannel over one websocket connection.
type WebSocketChannel struct {
	conn *websocket.Conn
	cfg  Config
	log  *slog.Logger

	frames chan audio.Frame
	done   chan struct{} // closed when the read loop exits
	quit   chan struct{} // closed by Close

	writeMu sync.Mutex // serializes writes (gorilla/websocket requirement)

	mu      sync.Mutex
	readErr error
	closed  bool
}

// NewWebSocketChannel wraps an established connection and starts reading
// from it.
func NewWebSocketChannel(conn *websocket.Conn, cfg Config, log *slog.Logger) *WebSocketChannel {
	cfg.defaults()
	conn.SetReadLimit(cfg.MaxMessageSize)
	c := &WebSocketChannel{
		conn:   conn,
		cfg:    cfg,
		log:    logger.OrDiscard(log),
		frames: make(chan audio.Frame, defaultFrameBuffer),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Upgrader upgrades HTTP requests into WebSocketChannels.
type Upgrader struct {
	Config Config
	Log    *slog.Logger

	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

// Upgrade upgrades r and returns the channel.
func (u Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*WebSocketChannel, error) {
	check := u.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	up := websocket.Upgrader{CheckOrigin: check}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewWebSocketChannel(conn, u.Config, u.Log), nil
}

// Dial connects to a websocket session endpoint. It is the client side of
// Upgrade and is mostly useful for tools and tests.
func Dial(ctx context.Context, url string, cfg Config, log *slog.Logger) (*WebSocketChannel, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return NewWebSocketChannel(conn, cfg, log), nil
}

func (c *WebSocketChannel) readLoop() {
	defer close(c.done)
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			if !c.deliver(data) {
				return
			}
		case websocket.TextMessage:
			var msg ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.log.Debug("ignoring malformed control message", "error", err)
				continue
			}
			if msg.Type == ControlHangup {
				c.finish(audio.ErrChannelClosed)
				return
			}
		}
	}
}

func (c *WebSocketChannel) deliver(data []byte) bool {
	frame := audio.Frame{Data: data, SampleRate: c.cfg.InputSampleRate, Timestamp: time.Now()}
	if c.cfg.SampleRate != c.cfg.InputSampleRate {
		resampled, err := frame.Resample(c.cfg.SampleRate)
		if err != nil {
			c.log.Warn("dropping frame", "error", err)
			return true
		}
		frame = resampled
	}
	select {
	case c.frames <- frame:
		return true
	case <-c.quit:
		return false
	}
}

func (c *WebSocketChannel) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr == nil {
		c.readErr = err
	}
}

func (c *WebSocketChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Err returns the error that ended the read side, if any.
func (c *WebSocketChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Recv returns the next inbound frame. Once the connection is gone it
// returns audio.ErrChannelClosed, after every buffered frame was delivered.
func (c *WebSocketChannel) Recv(ctx context.Context) (audio.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	default:
	}
	select {
	case f := <-c.frames:
		return f, nil
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-c.done:
		select {
		case f := <-c.frames:
			return f, nil
		default:
		}
		return audio.Frame{}, c.closedErr()
	}
}

func (c *WebSocketChannel) closedErr() error {
	err := c.Err()
	if err == nil || errors.Is(err, audio.ErrChannelClosed) || isNormalClose(err) {
		return audio.ErrChannelClosed
	}
	return fmt.Errorf("%w: %v", audio.ErrChannelClosed, err)
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}

// Send writes synthesized PCM as one binary message.
func (c *WebSocketChannel) Send(ctx context.Context, pcm []byte) error {
	return c.write(ctx, websocket.BinaryMessage, pcm)
}

// Interrupt tells the client to drop buffered playback.
func (c *WebSocketChannel) Interrupt(ctx context.Context) error {
	data, _ := json.Marshal(ControlMessage{Type: ControlInterrupt})
	return c.write(ctx, websocket.TextMessage, data)
}

func (c *WebSocketChannel) write(ctx context.Context, mt int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return c.closedErr()
	default:
	}

	deadline := time.Now().Add(c.cfg.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return audio.ErrChannelClosed
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(mt, data); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrChannelClosed, err)
	}
	return nil
}

// Close sends a close frame and closes the connection. It is safe to call
// more than once.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.quit)

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.CloseGracePeriod))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

var _ audio.SpeechChannel = (*WebSocketChannel)(nil)
