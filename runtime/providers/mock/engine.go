package mock

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/dialogue"
	"github.com/AltairaLabs/voicebarista/runtime/order"
	"github.com/AltairaLabs/voicebarista/runtime/tools"
)

const defaultEngineName = "mock"

// Engine is a rule-based dialogue.Engine. It looks only at the request, so
// a speculative run and a committed run of the same request agree.
type Engine struct {
	script EngineScript
	calls  atomic.Int64
}

var _ dialogue.Engine = (*Engine)(nil)

// NewEngine returns an engine following script.
func NewEngine(script EngineScript) *Engine {
	return &Engine{script: script}
}

// Name implements dialogue.Engine.
func (e *Engine) Name() string {
	if e.script.Name != "" {
		return e.script.Name
	}
	return defaultEngineName
}

// Calls returns how many generations were started.
func (e *Engine) Calls() int {
	return int(e.calls.Load())
}

// Generate implements dialogue.Engine.
func (e *Engine) Generate(ctx context.Context, req dialogue.Request) (<-chan dialogue.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.calls.Add(1)

	chunks := e.respond(req)
	out := make(chan dialogue.Chunk)
	go func() {
		defer close(out)
		for i, c := range chunks {
			if i > 0 && e.script.ChunkDelay > 0 {
				t := time.NewTimer(e.script.ChunkDelay)
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// respond builds the full chunk sequence for req.
func (e *Engine) respond(req dialogue.Request) []dialogue.Chunk {
	if result := req.LastToolResult(); result != "" {
		if result == tools.MessageSaved {
			return e.speak(req, e.script.AfterSave, nil, false, false)
		}
		return e.speak(req, e.script.AfterError, nil, false, false)
	}

	user := req.LastUserText()
	if user == "" {
		return e.speak(req, e.script.Greeting, nil, false, false)
	}

	rule, ok := e.match(user, req.Phase)
	if !ok {
		return e.speak(req, e.script.DefaultResponse, nil, false, false)
	}

	switch {
	case rule.Fail != "":
		return []dialogue.Chunk{{Err: errors.New(rule.Fail)}}
	case rule.SaveArgs != "":
		return []dialogue.Chunk{{SaveArgs: json.RawMessage(rule.SaveArgs), Usage: usage(req, "")}}
	case rule.Save:
		o, _ := project(req.Draft, rule.Update.OrderUpdate())
		return []dialogue.Chunk{{SaveArgs: tools.EncodeSaveArgs(o), Usage: usage(req, "")}}
	}
	return e.speak(req, rule.Say, rule.Update.OrderUpdate(), rule.ReadBack, rule.End)
}

func (e *Engine) match(user string, phase dialogue.Phase) (Rule, bool) {
	text := strings.ToLower(user)
	for _, r := range e.script.Rules {
		if r.Phase != "" && r.Phase != phase.String() {
			continue
		}
		if r.When == "" || strings.Contains(text, strings.ToLower(r.When)) {
			return r, true
		}
	}
	return Rule{}, false
}

// speak splits the rendered text into word chunks. Structured fields ride
// on the first chunk and usage on the last.
func (e *Engine) speak(req dialogue.Request, say string, u *order.Update, readBack, end bool) []dialogue.Chunk {
	text := render(say, req.Draft, u)
	words := strings.Fields(text)
	chunks := make([]dialogue.Chunk, 0, len(words)+1)
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		chunks = append(chunks, dialogue.Chunk{Text: w})
	}
	if len(chunks) == 0 {
		chunks = append(chunks, dialogue.Chunk{})
	}
	chunks[0].Update = u
	chunks[0].ReadBack = readBack
	chunks[0].EndSession = end
	chunks[len(chunks)-1].Usage = usage(req, text)
	return chunks
}

// render fills {summary} and {missing} from the draft as it will be once u
// is applied.
func render(say string, s order.Snapshot, u *order.Update) string {
	if !strings.Contains(say, "{") {
		return say
	}
	o, missing := project(s, u)
	summary := ""
	if len(missing) == 0 {
		summary = o.Summary()
	}
	say = strings.ReplaceAll(say, "{summary}", summary)
	return strings.ReplaceAll(say, "{missing}", strings.Join(missing, ", "))
}

// project rebuilds the draft from a snapshot, applies u and returns the
// resulting order and the fields still missing.
func project(s order.Snapshot, u *order.Update) (order.ConfirmedOrder, []string) {
	d := order.NewDraft()
	base := &order.Update{Extras: s.Extras, ExtrasNone: s.ExtrasSet && len(s.Extras) == 0}
	for _, f := range []struct {
		dst **string
		v   string
	}{
		{&base.DrinkType, s.DrinkType},
		{&base.Size, s.Size},
		{&base.Milk, s.Milk},
		{&base.Name, s.Name},
	} {
		if f.v != "" {
			v := f.v
			*f.dst = &v
		}
	}
	_ = d.Apply(base)
	_ = d.Apply(u)

	o, err := d.Confirm()
	var ie *order.IncompleteError
	if errors.As(err, &ie) {
		missing := make([]string, len(ie.Missing))
		for i, f := range ie.Missing {
			missing[i] = f.String()
		}
		snap := d.Snapshot()
		return order.ConfirmedOrder{
			DrinkType: snap.DrinkType, Size: snap.Size, Milk: snap.Milk,
			Extras: snap.Extras, Name: snap.Name,
		}, missing
	}
	return o, nil
}

// usage approximates tokens as whitespace-separated words.
func usage(req dialogue.Request, completion string) *dialogue.Usage {
	prompt := len(strings.Fields(req.Instructions))
	for _, m := range req.Messages {
		prompt += len(strings.Fields(m.Content))
	}
	return &dialogue.Usage{PromptTokens: prompt, CompletionTokens: len(strings.Fields(completion))}
}
