package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/logger"
	"github.com/AltairaLabs/voicebarista/runtime/order"
	"github.com/AltairaLabs/voicebarista/runtime/tools"
)

// ErrConfirmationRequired is returned to the engine when it asks to save an
// order the customer has not just confirmed.
var ErrConfirmationRequired = errors.New(
	"the customer has not confirmed this order: read back all five details and ask for confirmation before calling save_order")

// Phase is where the conversation stands in the order protocol.
type Phase int

const (
	// PhaseCollecting means fields are still being gathered.
	PhaseCollecting Phase = iota
	// PhaseAwaitingConfirmation means the last agent turn read the order back.
	PhaseAwaitingConfirmation
	// PhaseOfferAnother means an order was just saved and the agent is
	// offering another drink.
	PhaseOfferAnother
	// PhaseEnded means the agent said goodbye.
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseAwaitingConfirmation:
		return "awaiting_confirmation"
	case PhaseOfferAnother:
		return "offer_another"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Config configures an Adapter.
type Config struct {
	Instructions string `yaml:"instructions"`
	HistoryLimit int    `yaml:"history_limit"`
}

// DefaultConfig returns the barista persona.
func DefaultConfig() Config {
	return Config{
		Instructions: DefaultInstructions,
		HistoryLimit: DefaultHistoryLimit,
	}
}

// Turn identifies the user input a generation answers. An empty UserText
// means the agent speaks first (greeting) or follows up on a tool result.
type Turn struct {
	ID       string
	UserText string
}

// Outcome is what Commit did with a result.
type Outcome struct {
	// Speak is the text to synthesize now. It may be empty.
	Speak string

	// FollowUp asks the caller to generate again with no new user text,
	// because a tool result was added to the history.
	FollowUp bool

	// EndSession means the session should shut down after Speak.
	EndSession bool

	// Save is set when a save request was dispatched to the gate.
	Save *tools.SaveResult

	// ConfirmationRequired is set when a save request was refused because
	// the customer had not just confirmed the order.
	ConfirmationRequired bool

	// UpdateErr is set when the response's draft update was rejected.
	UpdateErr error

	// ReadBack is set when the response was honoured as a read-back.
	ReadBack bool
}

// Adapter sequences one session's conversation against the order protocol.
// Generate may run on any goroutine; every other method belongs to the
// session loop.
type Adapter struct {
	engine  Engine
	gate    *tools.Gate
	draft   *order.Draft
	cfg     Config
	history *History
	log     *slog.Logger
	now     func() time.Time

	phase    Phase
	readBack *order.ConfirmedOrder
}

// NewAdapter creates an adapter driving draft through engine, with every
// save request going through gate.
func NewAdapter(engine Engine, gate *tools.Gate, draft *order.Draft, cfg Config, log *slog.Logger) *Adapter {
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	return &Adapter{
		engine:  engine,
		gate:    gate,
		draft:   draft,
		cfg:     cfg,
		history: NewHistory(cfg.HistoryLimit),
		log:     logger.OrDiscard(log),
		now:     time.Now,
	}
}

// Phase returns the current protocol phase.
func (a *Adapter) Phase() Phase { return a.phase }

// Provider returns the engine name.
func (a *Adapter) Provider() string { return a.engine.Name() }

// History returns a copy of the committed transcript.
func (a *Adapter) History() []Message { return a.history.Messages() }

// Prepare snapshots everything the engine needs to answer turn. The
// returned request shares nothing mutable with the adapter.
func (a *Adapter) Prepare(turn Turn) Request {
	msgs := a.history.Messages()
	if text := strings.TrimSpace(turn.UserText); text != "" {
		msgs = append(msgs, Message{Role: RoleUser, Content: text, At: a.now()})
	}
	return Request{
		Instructions: a.cfg.Instructions,
		Messages:     msgs,
		Draft:        a.draft.Snapshot(),
		Phase:        a.phase,
		Tools:        []*tools.ToolDescriptor{a.gate.Descriptor()},
	}
}

// Generate runs the engine on req and assembles the stream into a Result.
// It has no side effects and returns ctx.Err() when cancelled.
func (a *Adapter) Generate(ctx context.Context, req Request) (Result, Stats, error) {
	start := a.now()
	stats := Stats{Provider: a.engine.Name()}

	stream, err := a.engine.Generate(ctx, req)
	if err != nil {
		return nil, stats, err
	}

	var (
		text     strings.Builder
		update   *order.Update
		readBack bool
		end      bool
		save     []byte
		first    = true
	)
	for {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				stats.Duration = a.now().Sub(start)
				if save != nil {
					return SaveRequest{Args: save}, stats, nil
				}
				return SpokenResponse{
					Text:       strings.TrimSpace(text.String()),
					Update:     update,
					ReadBack:   readBack,
					EndSession: end,
				}, stats, nil
			}
			if chunk.Err != nil {
				return nil, stats, chunk.Err
			}
			if first {
				stats.TTFT = a.now().Sub(start)
				first = false
			}
			text.WriteString(chunk.Text)
			update = mergeUpdate(update, chunk.Update)
			readBack = readBack || chunk.ReadBack
			end = end || chunk.EndSession
			if len(chunk.SaveArgs) > 0 {
				save = append([]byte(nil), chunk.SaveArgs...)
			}
			if chunk.Usage != nil {
				stats.PromptTokens += chunk.Usage.PromptTokens
				stats.CompletionTokens += chunk.Usage.CompletionTokens
			}
		}
	}
}

// Commit applies res, generated for turn, to the session. It is the only
// place a result has any effect.
func (a *Adapter) Commit(ctx context.Context, turn Turn, res Result) Outcome {
	if text := strings.TrimSpace(turn.UserText); text != "" {
		a.history.Append(Message{Role: RoleUser, Content: text, At: a.now()})
	}

	switch r := res.(type) {
	case SpokenResponse:
		return a.commitSpoken(ctx, r, strings.TrimSpace(turn.UserText) != "")
	case SaveRequest:
		return a.commitSave(ctx, r)
	default:
		a.log.ErrorContext(ctx, "unknown dialogue result", "type", res)
		return Outcome{}
	}
}

func (a *Adapter) commitSpoken(ctx context.Context, r SpokenResponse, userSpoke bool) Outcome {
	var out Outcome
	if err := a.draft.Apply(r.Update); err != nil {
		a.log.WarnContext(ctx, "draft update rejected", "error", err)
		out.UpdateErr = err
	}

	a.readBack = nil
	if r.ReadBack {
		if o, err := a.draft.Confirm(); err == nil {
			a.readBack = &o
			out.ReadBack = true
		} else {
			a.log.WarnContext(ctx, "read-back ignored, draft incomplete", "error", err)
		}
	}

	switch {
	case r.EndSession:
		a.draft.Reset()
		a.phase = PhaseEnded
		out.EndSession = true
	case out.ReadBack:
		a.phase = PhaseAwaitingConfirmation
	case a.phase == PhaseOfferAnother && !userSpoke:
		// Still waiting for the answer to "anything else?".
	default:
		a.phase = PhaseCollecting
	}

	if r.Text != "" {
		a.history.Append(Message{Role: RoleAssistant, Content: r.Text, At: a.now()})
	}
	out.Speak = r.Text
	return out
}

func (a *Adapter) commitSave(ctx context.Context, r SaveRequest) Outcome {
	confirmed := a.readBack
	a.readBack = nil

	if !a.confirms(confirmed, r) {
		a.log.WarnContext(ctx, "save request refused, order not confirmed")
		a.phase = PhaseCollecting
		a.toolResult("Error: " + ErrConfirmationRequired.Error())
		return Outcome{FollowUp: true, ConfirmationRequired: true}
	}

	res := a.gate.RequestSave(ctx, r.Args)
	switch res.Status {
	case tools.SaveOK:
		a.draft.Reset()
		a.phase = PhaseOfferAnother
	default:
		// The draft keeps its values; the customer is told and asked to
		// confirm again.
		a.phase = PhaseCollecting
	}
	a.toolResult(res.Message())
	return Outcome{FollowUp: true, Save: &res}
}

// confirms reports whether a save request matches the read-back the
// customer just heard. Arguments that do not decode are left to the gate,
// which rejects them without touching the store.
func (a *Adapter) confirms(readBack *order.ConfirmedOrder, r SaveRequest) bool {
	if readBack == nil {
		return false
	}
	o, err := tools.DecodeSaveArgs(r.Args)
	if err != nil {
		return true
	}
	return o.Equal(*readBack)
}

func (a *Adapter) toolResult(content string) {
	a.history.Append(Message{Role: RoleTool, Tool: tools.SaveOrderTool, Content: content, At: a.now()})
}

// mergeUpdate folds next into acc; later values win.
func mergeUpdate(acc, next *order.Update) *order.Update {
	if next == nil {
		return acc
	}
	if acc == nil {
		acc = &order.Update{}
	}
	if next.DrinkType != nil {
		acc.DrinkType = next.DrinkType
	}
	if next.Size != nil {
		acc.Size = next.Size
	}
	if next.Milk != nil {
		acc.Milk = next.Milk
	}
	if next.Extras != nil {
		acc.Extras = append([]string(nil), next.Extras...)
		acc.ExtrasNone = false
	}
	if next.ExtrasNone {
		acc.ExtrasNone = true
		acc.Extras = nil
	}
	if next.Name != nil {
		acc.Name = next.Name
	}
	return acc
}
