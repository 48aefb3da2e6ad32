package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for session logging fields. Values stored under these keys
// are added to every record logged with that context.
const (
	// ContextKeySessionID identifies the customer session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyRoom identifies the transport room the session is attached to.
	ContextKeyRoom contextKey = "room"

	// ContextKeyTurnID identifies the current conversation turn.
	ContextKeyTurnID contextKey = "turn_id"

	// ContextKeyStage identifies the provider stage (stt, llm, tts, eou, tool).
	ContextKeyStage contextKey = "stage"

	// ContextKeyProvider identifies the provider serving the stage.
	ContextKeyProvider contextKey = "provider"

	// ContextKeyOrderID identifies a persisted order.
	ContextKeyOrderID contextKey = "order_id"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyRoom,
	ContextKeyTurnID,
	ContextKeyStage,
	ContextKeyProvider,
	ContextKeyOrderID,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithRoom returns a new context with the room name set.
func WithRoom(ctx context.Context, room string) context.Context {
	return context.WithValue(ctx, ContextKeyRoom, room)
}

// WithTurnID returns a new context with the turn ID set.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, ContextKeyTurnID, turnID)
}

// WithStage returns a new context with the provider stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// WithProvider returns a new context with the provider name set.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}

// WithOrderID returns a new context with the order ID set.
func WithOrderID(ctx context.Context, orderID string) context.Context {
	return context.WithValue(ctx, ContextKeyOrderID, orderID)
}

// Fields holds the session logging fields carried in a context.
type Fields struct {
	SessionID string
	Room      string
	TurnID    string
	Stage     string
	Provider  string
	OrderID   string
}

// WithFields sets every non-empty field on the context.
func WithFields(ctx context.Context, f Fields) context.Context {
	if f.SessionID != "" {
		ctx = WithSessionID(ctx, f.SessionID)
	}
	if f.Room != "" {
		ctx = WithRoom(ctx, f.Room)
	}
	if f.TurnID != "" {
		ctx = WithTurnID(ctx, f.TurnID)
	}
	if f.Stage != "" {
		ctx = WithStage(ctx, f.Stage)
	}
	if f.Provider != "" {
		ctx = WithProvider(ctx, f.Provider)
	}
	if f.OrderID != "" {
		ctx = WithOrderID(ctx, f.OrderID)
	}
	return ctx
}

// ExtractFields reads the logging fields stored in ctx.
func ExtractFields(ctx context.Context) Fields {
	str := func(k contextKey) string {
		s, _ := ctx.Value(k).(string)
		return s
	}
	return Fields{
		SessionID: str(ContextKeySessionID),
		Room:      str(ContextKeyRoom),
		TurnID:    str(ContextKeyTurnID),
		Stage:     str(ContextKeyStage),
		Provider:  str(ContextKeyProvider),
		OrderID:   str(ContextKeyOrderID),
	}
}
