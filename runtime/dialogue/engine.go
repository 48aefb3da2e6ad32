// Package dialogue adapts a language-model engine to the barista's order
// protocol.
//
// The Engine decides what to say and when to ask for a save; the Adapter
// decides what is allowed to happen. Generation is side-effect free and may
// be run speculatively or cancelled at any point. Every effect (draft
// updates, history, save dispatch) happens in Adapter.Commit, on the session
// loop goroutine, and a save request only ever reaches the tool gate after
// the customer heard a read-back of exactly those values.
package dialogue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/order"
	"github.com/AltairaLabs/voicebarista/runtime/tools"
)

// Engine is the language-model provider contract.
type Engine interface {
	// Name returns the provider name used in logs and metrics.
	Name() string

	// Generate streams the response to req. The channel is closed when the
	// response is complete. Cancelling ctx must stop generation promptly.
	Generate(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Request is everything the engine sees for one generation.
type Request struct {
	Instructions string
	Messages     []Message
	Draft        order.Snapshot
	Phase        Phase
	Tools        []*tools.ToolDescriptor
}

// LastUserText returns the content of the final user message, if the request
// ends with one.
func (r Request) LastUserText() string {
	if n := len(r.Messages); n > 0 && r.Messages[n-1].Role == RoleUser {
		return r.Messages[n-1].Content
	}
	return ""
}

// LastToolResult returns the content of the final tool message, if the
// request ends with one.
func (r Request) LastToolResult() string {
	if n := len(r.Messages); n > 0 && r.Messages[n-1].Role == RoleTool {
		return r.Messages[n-1].Content
	}
	return ""
}

// Chunk is one piece of a streamed response. Any field may be empty.
type Chunk struct {
	// Text is a delta of the spoken response.
	Text string

	// Update carries order fields the customer supplied this turn.
	Update *order.Update

	// ReadBack marks the response as the full-order summary asking for
	// confirmation.
	ReadBack bool

	// EndSession marks the response as the goodbye.
	EndSession bool

	// SaveArgs is a save_order tool call. A response carrying one is a
	// SaveRequest; its text is not spoken.
	SaveArgs json.RawMessage

	Usage *Usage
	Err   error
}

// Usage reports token consumption for a generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Stats describes one completed generation.
type Stats struct {
	Provider         string
	TTFT             time.Duration
	Duration         time.Duration
	PromptTokens     int
	CompletionTokens int
}
