package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
)

// pair starts a server that upgrades one connection into a channel and
// returns it together with the raw client connection.
func pair(t *testing.T, cfg Config) (*WebSocketChannel, *websocket.Conn) {
	t.Helper()
	chans := make(chan *WebSocketChannel, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch, err := Upgrader{Config: cfg}.Upgrade(w, r)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		chans <- ch
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ch := <-chans:
		t.Cleanup(func() { _ = ch.Close() })
		return ch, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never upgraded")
		return nil, nil
	}
}

func recvCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWebSocketChannel_RecvFrames(t *testing.T) {
	ch, client := pair(t, DefaultConfig())

	pcm := make([]byte, 640)
	pcm[0] = 7
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, pcm))

	f, err := ch.Recv(recvCtx(t))
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate16kHz, f.SampleRate)
	assert.Equal(t, pcm, f.Data)
	assert.Equal(t, 20*time.Millisecond, f.Duration())
}

func TestWebSocketChannel_ResamplesInput(t *testing.T) {
	ch, client := pair(t, Config{InputSampleRate: audio.SampleRate48kHz, SampleRate: audio.SampleRate16kHz})

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, make([]byte, 1920)))

	f, err := ch.Recv(recvCtx(t))
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate16kHz, f.SampleRate)
	assert.Len(t, f.Data, 640)
}

func TestWebSocketChannel_SendAndInterrupt(t *testing.T) {
	ch, client := pair(t, DefaultConfig())
	ctx := recvCtx(t)

	require.NoError(t, ch.Send(ctx, []byte{1, 2, 3, 4}))
	require.NoError(t, ch.Interrupt(ctx))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)

	mt, data, err = client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.JSONEq(t, `{"type":"interrupt"}`, string(data))
}

func TestWebSocketChannel_ClientCloseEndsRecv(t *testing.T) {
	ch, client := pair(t, DefaultConfig())

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, make([]byte, 320)))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, client.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	ctx := recvCtx(t)
	_, err := ch.Recv(ctx)
	require.NoError(t, err, "buffered frame is still delivered")

	_, err = ch.Recv(ctx)
	assert.ErrorIs(t, err, audio.ErrChannelClosed)
	assert.ErrorIs(t, ch.Send(ctx, []byte{0, 0}), audio.ErrChannelClosed)
}

func TestWebSocketChannel_Hangup(t *testing.T) {
	ch, client := pair(t, DefaultConfig())

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"hangup"}`)))

	_, err := ch.Recv(recvCtx(t))
	assert.ErrorIs(t, err, audio.ErrChannelClosed)
}

func TestWebSocketChannel_RecvHonoursContext(t *testing.T) {
	ch, _ := pair(t, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSocketChannel_CloseIsIdempotent(t *testing.T) {
	ch, client := pair(t, DefaultConfig())

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Send(context.Background(), []byte{0, 0}), audio.ErrChannelClosed)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
