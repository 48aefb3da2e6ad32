package mock

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/dialogue"
	"github.com/AltairaLabs/voicebarista/runtime/order"
	"github.com/AltairaLabs/voicebarista/runtime/stt"
	"github.com/AltairaLabs/voicebarista/runtime/tools"
	"github.com/AltairaLabs/voicebarista/runtime/tts"
)

func collect(t *testing.T, ch <-chan dialogue.Chunk) (string, []dialogue.Chunk) {
	t.Helper()
	var text string
	var chunks []dialogue.Chunk
	for c := range ch {
		text += c.Text
		chunks = append(chunks, c)
	}
	return text, chunks
}

func userReq(text string, phase dialogue.Phase, draft order.Snapshot) dialogue.Request {
	return dialogue.Request{
		Messages: []dialogue.Message{{Role: dialogue.RoleUser, Content: text}},
		Phase:    phase,
		Draft:    draft,
	}
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(`
engine:
  greeting: Hello there
  chunk_delay: 5ms
  rules:
    - when: latte
      say: A latte it is
      update:
        drink_type: Latte
    - when: "yes"
      phase: awaiting_confirmation
      save: true
stt:
  utterances: ["a latte please", "yes"]
  fail_after: 1
tts:
  ms_per_char: 5
eot:
  probability: 0.8
  delay: 10ms
`))
	require.NoError(t, err)
	assert.Equal(t, "Hello there", s.Engine.Greeting)
	assert.Equal(t, 5*time.Millisecond, s.Engine.ChunkDelay)
	require.Len(t, s.Engine.Rules, 2)
	assert.Equal(t, "Latte", *s.Engine.Rules[0].Update.OrderUpdate().DrinkType)
	assert.Nil(t, s.Engine.Rules[0].Update.OrderUpdate().Size)
	assert.True(t, s.Engine.Rules[1].Save)
	assert.Equal(t, []string{"a latte please", "yes"}, s.STT.Utterances)
	assert.Equal(t, 1, s.STT.FailAfter)
	assert.Equal(t, 5, s.TTS.MsPerChar)
	assert.Equal(t, 10*time.Millisecond, s.EOT.Delay)
}

func TestParseScript_RejectsEmptyRule(t *testing.T) {
	_, err := ParseScript([]byte("engine:\n  rules:\n    - when: latte\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to say")
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  greeting: hi\n"), 0o600))

	s, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "hi", s.Engine.Greeting)

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEngine_GreetingAndDefault(t *testing.T) {
	e := NewEngine(DefaultScript().Engine)
	ctx := context.Background()

	ch, err := e.Generate(ctx, dialogue.Request{})
	require.NoError(t, err)
	text, chunks := collect(t, ch)
	assert.Equal(t, DefaultScript().Engine.Greeting, text)
	require.NotNil(t, chunks[len(chunks)-1].Usage)

	ch, err = e.Generate(ctx, userReq("what's the weather", dialogue.PhaseCollecting, order.Snapshot{}))
	require.NoError(t, err)
	text, _ = collect(t, ch)
	assert.Equal(t, "Sorry, could you say that again?", text)
	assert.Equal(t, 2, e.Calls())
	assert.Equal(t, "mock", e.Name())
}

func TestEngine_RuleUpdateAndReadBack(t *testing.T) {
	e := NewEngine(DefaultScript().Engine)
	draft := order.Snapshot{
		DrinkType: "Latte", Size: "Medium", Milk: "Oat",
		Extras: []string{"Vanilla syrup"}, ExtrasSet: true,
	}

	ch, err := e.Generate(context.Background(), userReq("It's for Sam", dialogue.PhaseCollecting, draft))
	require.NoError(t, err)
	text, chunks := collect(t, ch)

	assert.Equal(t, "So that's a Medium Latte with Oat milk, extras: Vanilla syrup, for Sam. Is that right?", text)
	assert.True(t, chunks[0].ReadBack)
	require.NotNil(t, chunks[0].Update)
	assert.Equal(t, "Sam", *chunks[0].Update.Name)
}

func TestEngine_PhaseRestrictsRule(t *testing.T) {
	e := NewEngine(DefaultScript().Engine)

	// "yes" only saves while awaiting confirmation.
	ch, err := e.Generate(context.Background(), userReq("yes", dialogue.PhaseCollecting, order.Snapshot{}))
	require.NoError(t, err)
	_, chunks := collect(t, ch)
	for _, c := range chunks {
		assert.Empty(t, c.SaveArgs)
	}
}

func TestEngine_SaveFromDraft(t *testing.T) {
	e := NewEngine(DefaultScript().Engine)
	draft := order.Snapshot{
		DrinkType: "Latte", Size: "Medium", Milk: "Oat", ExtrasSet: true, Name: "Sam",
	}

	ch, err := e.Generate(context.Background(), userReq("Yes that's right", dialogue.PhaseAwaitingConfirmation, draft))
	require.NoError(t, err)
	_, chunks := collect(t, ch)
	require.Len(t, chunks, 1)

	o, err := tools.DecodeSaveArgs(chunks[0].SaveArgs)
	require.NoError(t, err)
	assert.True(t, o.Equal(order.ConfirmedOrder{DrinkType: "Latte", Size: "Medium", Milk: "Oat", Name: "Sam"}))
}

func TestEngine_ToolResults(t *testing.T) {
	e := NewEngine(DefaultScript().Engine)
	req := func(content string) dialogue.Request {
		return dialogue.Request{Messages: []dialogue.Message{{Role: dialogue.RoleTool, Content: content}}}
	}

	ch, err := e.Generate(context.Background(), req(tools.MessageSaved))
	require.NoError(t, err)
	text, _ := collect(t, ch)
	assert.Equal(t, DefaultScript().Engine.AfterSave, text)

	ch, err = e.Generate(context.Background(), req(tools.MessageWriteError))
	require.NoError(t, err)
	text, _ = collect(t, ch)
	assert.Equal(t, DefaultScript().Engine.AfterError, text)
}

func TestEngine_FailAndRawArgs(t *testing.T) {
	e := NewEngine(EngineScript{Rules: []Rule{
		{When: "boom", Fail: "model overloaded"},
		{When: "raw", SaveArgs: `{"drinkType":"Tea"}`},
	}})

	ch, err := e.Generate(context.Background(), userReq("boom", dialogue.PhaseCollecting, order.Snapshot{}))
	require.NoError(t, err)
	_, chunks := collect(t, ch)
	require.Len(t, chunks, 1)
	assert.EqualError(t, chunks[0].Err, "model overloaded")

	ch, err = e.Generate(context.Background(), userReq("raw", dialogue.PhaseCollecting, order.Snapshot{}))
	require.NoError(t, err)
	_, chunks = collect(t, ch)
	assert.JSONEq(t, `{"drinkType":"Tea"}`, string(chunks[0].SaveArgs))
}

func TestEngine_CancelStopsStream(t *testing.T) {
	e := NewEngine(EngineScript{Greeting: "one two three four five", ChunkDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := e.Generate(ctx, dialogue.Request{})
	require.NoError(t, err)
	first := <-ch
	assert.Equal(t, "one", first.Text)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func TestEngine_SaveArgsKeepEmptyExtras(t *testing.T) {
	e := NewEngine(DefaultScript().Engine)
	draft := order.Snapshot{DrinkType: "Latte", Size: "Medium", Milk: "Oat", ExtrasSet: true, Name: "Sam"}

	ch, err := e.Generate(context.Background(), userReq("yes", dialogue.PhaseAwaitingConfirmation, draft))
	require.NoError(t, err)
	_, chunks := collect(t, ch)

	var args map[string]any
	require.NoError(t, json.Unmarshal(chunks[0].SaveArgs, &args))
	assert.Equal(t, []any{}, args["extras"])
}

func TestSTT_EmitsUtterancePerSpeechStretch(t *testing.T) {
	ctx := context.Background()
	svc := NewSTT(STTScript{Utterances: []string{"a latte please", "medium"}}, audio.DefaultVADParams())
	stream, err := svc.OpenStream(ctx, stt.DefaultStreamConfig())
	require.NoError(t, err)
	defer stream.Close()

	ch := NewChannel(audio.SampleRate16kHz)
	require.NoError(t, ch.PushUtterance(ctx, 600*time.Millisecond))
	require.NoError(t, ch.PushUtterance(ctx, 400*time.Millisecond))
	ch.Hangup()

	for {
		f, err := ch.Recv(ctx)
		if errors.Is(err, audio.ErrChannelClosed) {
			break
		}
		require.NoError(t, err)
		require.NoError(t, stream.Send(ctx, f))
	}

	first := <-stream.Transcripts()
	assert.Equal(t, "a latte please", first.Text)
	assert.True(t, first.Final)
	assert.Greater(t, first.AudioDuration, 400*time.Millisecond)

	second := <-stream.Transcripts()
	assert.Equal(t, "medium", second.Text)
}

func TestSTT_RejectsWrongSampleRate(t *testing.T) {
	ctx := context.Background()
	svc := NewSTT(STTScript{Utterances: []string{"one"}}, audio.DefaultVADParams())
	stream, err := svc.OpenStream(ctx, stt.DefaultStreamConfig())
	require.NoError(t, err)

	err = stream.Send(ctx, audio.Frame{Data: make([]byte, 320), SampleRate: audio.SampleRate24kHz})
	require.ErrorIs(t, err, stt.ErrInvalidFormat)
	assert.True(t, stt.IsPermanent(err))
	assert.ErrorIs(t, stream.Err(), stt.ErrInvalidFormat)

	_, open := <-stream.Transcripts()
	assert.False(t, open)
}

func TestSTT_ScriptedFailureThenReopen(t *testing.T) {
	ctx := context.Background()
	svc := NewSTT(STTScript{Utterances: []string{"one", "two"}, FailAfter: 1}, audio.DefaultVADParams())

	feed := func(s stt.Stream) {
		ch := NewChannel(audio.SampleRate16kHz)
		require.NoError(t, ch.PushUtterance(ctx, 400*time.Millisecond))
		ch.Hangup()
		for {
			f, err := ch.Recv(ctx)
			if err != nil {
				return
			}
			_ = s.Send(ctx, f)
		}
	}

	s1, err := svc.OpenStream(ctx, stt.DefaultStreamConfig())
	require.NoError(t, err)
	feed(s1)

	var texts []string
	for tr := range s1.Transcripts() {
		texts = append(texts, tr.Text)
	}
	assert.Equal(t, []string{"one"}, texts)
	assert.True(t, stt.IsRetryable(s1.Err()))
	assert.ErrorIs(t, s1.Err(), ErrSTTFailure)

	s2, err := svc.OpenStream(ctx, stt.DefaultStreamConfig())
	require.NoError(t, err)
	feed(s2)
	tr := <-s2.Transcripts()
	assert.Equal(t, "two", tr.Text)
	require.NoError(t, s2.Close())
	assert.NoError(t, s2.Err())
	assert.Equal(t, 2, svc.Opened())
}

func TestTTS_SilenceProportionalToText(t *testing.T) {
	svc := NewTTS(TTSScript{MsPerChar: 10, ChunkMs: 20})
	cfg := tts.SynthesisConfig{SampleRate: audio.SampleRate16kHz}

	ch, err := svc.SynthesizeStream(context.Background(), "Hello.", cfg)
	require.NoError(t, err)

	total := 0
	var last tts.AudioChunk
	for c := range ch {
		total += len(c.Data)
		last = c
	}
	// 6 chars * 10ms = 60ms at 16kHz mono 16-bit.
	assert.Equal(t, 1920, total)
	assert.True(t, last.Final)
	assert.Equal(t, []string{"Hello."}, svc.Spoken())
}

func TestTTS_Errors(t *testing.T) {
	svc := NewTTS(TTSScript{FailOn: "boom"})
	_, err := svc.SynthesizeStream(context.Background(), "  ", tts.SynthesisConfig{})
	assert.ErrorIs(t, err, tts.ErrEmptyText)

	_, err = svc.SynthesizeStream(context.Background(), "it goes boom", tts.SynthesisConfig{})
	var se *tts.SynthesisError
	assert.ErrorAs(t, err, &se)
}

func TestEOTModel(t *testing.T) {
	m := NewEOTModel(EOTScript{Probability: 0.7})
	p, err := m.PredictEndOfTurn(context.Background(), "anything")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, p, 1e-9)

	slow := &EOTModel{Probability: 1, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slow.PredictEndOfTurn(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChannel(t *testing.T) {
	ctx := context.Background()
	ch := NewChannel(0)

	require.NoError(t, ch.PushSpeech(ctx, 40*time.Millisecond))
	ch.Hangup()

	for i := 0; i < 2; i++ {
		f, err := ch.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, FrameDuration, f.Duration())
	}
	_, err := ch.Recv(ctx)
	assert.ErrorIs(t, err, audio.ErrChannelClosed)

	require.NoError(t, ch.Send(ctx, make([]byte, 100)))
	require.NoError(t, ch.Interrupt(ctx))
	assert.Equal(t, 100, ch.SentBytes())
	assert.Equal(t, 1, ch.Interrupts())

	sendErr := errors.New("socket gone")
	ch.FailSends(sendErr)
	assert.ErrorIs(t, ch.Send(ctx, []byte{0, 0}), sendErr)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.True(t, ch.Closed())
	assert.ErrorIs(t, ch.Send(ctx, []byte{0, 0}), audio.ErrChannelClosed)
}
