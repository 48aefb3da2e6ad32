package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/voicebarista/runtime/logger"
	"github.com/AltairaLabs/voicebarista/runtime/order"
	"github.com/AltairaLabs/voicebarista/runtime/orderstore"
)

// SaveOrderTool is the name of the persistence tool.
const SaveOrderTool = "save_order"

// Status messages relayed back to the dialogue policy.
const (
	MessageSaved      = "Order saved successfully. You may now ask if the user wants another drink."
	MessageWriteError = "There was a technical error saving the order."
)

// SaveStatus classifies the outcome of a save request.
type SaveStatus int

const (
	// SaveOK means the order was durably appended.
	SaveOK SaveStatus = iota
	// SaveValidationFailed means the arguments were incomplete or malformed
	// and the store was not called.
	SaveValidationFailed
	// SaveWriteFailed means the store rejected the append.
	SaveWriteFailed
)

// String returns the status name.
func (s SaveStatus) String() string {
	switch s {
	case SaveOK:
		return "ok"
	case SaveValidationFailed:
		return "validation_failed"
	case SaveWriteFailed:
		return "write_error"
	default:
		return "unknown"
	}
}

// SaveResult is the outcome of Gate.RequestSave.
type SaveResult struct {
	Status  SaveStatus
	OrderID string
	Order   order.ConfirmedOrder
	Ack     orderstore.Ack
	Err     error
	Latency time.Duration
}

// Message returns the status line handed back to the dialogue policy.
func (r SaveResult) Message() string {
	switch r.Status {
	case SaveOK:
		return MessageSaved
	case SaveValidationFailed:
		var ve *ValidationError
		if errors.As(r.Err, &ve) && len(ve.Fields) > 0 {
			return "The order was not saved. These details are missing or invalid: " +
				strings.Join(ve.Fields, ", ") + ". Ask the customer for them before saving."
		}
		return "The order was not saved because the order details were invalid."
	default:
		return MessageWriteError
	}
}

// Gate is the only path from the dialogue policy to the order store.
// It rejects incomplete or malformed save requests without touching the
// store, and never retries a failed append.
type Gate struct {
	descriptor *ToolDescriptor
	validator  *SchemaValidator
	store      orderstore.Store
	log        *slog.Logger
}

// NewGate builds a gate over store using the save_order definition in registry.
func NewGate(registry *Registry, store orderstore.Store, log *slog.Logger) (*Gate, error) {
	descriptor, err := registry.GetTool(SaveOrderTool)
	if err != nil {
		return nil, err
	}
	return &Gate{
		descriptor: descriptor,
		validator:  registry.Validator(),
		store:      store,
		log:        logger.OrDiscard(log),
	}, nil
}

// Descriptor returns the save_order definition the gate enforces.
func (g *Gate) Descriptor() *ToolDescriptor {
	return g.descriptor
}

// RequestSave validates args and, if they describe a complete order,
// appends it to the store.
func (g *Gate) RequestSave(ctx context.Context, args json.RawMessage) SaveResult {
	start := time.Now()
	res := g.requestSave(ctx, args)
	res.Latency = time.Since(start)
	return res
}

func (g *Gate) requestSave(ctx context.Context, args json.RawMessage) SaveResult {
	if err := g.validator.ValidateArgs(g.descriptor, args); err != nil {
		g.log.WarnContext(ctx, "save request rejected", "error", err)
		return SaveResult{Status: SaveValidationFailed, Err: err}
	}

	o, err := DecodeSaveArgs(args)
	if err != nil {
		g.log.WarnContext(ctx, "save request rejected", "error", err)
		return SaveResult{Status: SaveValidationFailed, Err: err}
	}

	id := uuid.NewString()
	ctx = logger.WithOrderID(ctx, id)

	appendCtx := ctx
	if g.descriptor.TimeoutMs > 0 {
		var cancel context.CancelFunc
		appendCtx, cancel = context.WithTimeout(ctx, time.Duration(g.descriptor.TimeoutMs)*time.Millisecond)
		defer cancel()
	}
	ack, err := g.store.Append(appendCtx, o)
	if err != nil {
		g.log.ErrorContext(ctx, "failed to save order", "backend", g.store.Backend(), "error", err)
		return SaveResult{Status: SaveWriteFailed, OrderID: id, Order: o, Err: err}
	}

	g.log.InfoContext(ctx, "order saved", "backend", ack.Backend, "ref", ack.Ref, "order", o.Summary())
	return SaveResult{Status: SaveOK, OrderID: id, Order: o, Ack: ack}
}

type saveArgs struct {
	DrinkType string   `json:"drinkType"`
	Size      string   `json:"size"`
	Milk      string   `json:"milk"`
	Extras    []string `json:"extras"`
	Name      string   `json:"name"`
}

// DecodeSaveArgs parses save_order arguments into a normalized order and
// checks that every field is present once trimmed. Extras may be empty.
func DecodeSaveArgs(args json.RawMessage) (order.ConfirmedOrder, error) {
	var a saveArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return order.ConfirmedOrder{}, &ValidationError{
			Type:   "args_invalid",
			Tool:   SaveOrderTool,
			Detail: fmt.Sprintf("cannot decode arguments: %v", err),
		}
	}

	o := order.ConfirmedOrder{
		DrinkType: strings.TrimSpace(a.DrinkType),
		Size:      strings.TrimSpace(a.Size),
		Milk:      strings.TrimSpace(a.Milk),
		Extras:    order.NormalizeExtras(a.Extras),
		Name:      strings.TrimSpace(a.Name),
	}

	var missing []string
	for _, f := range []struct {
		field order.Field
		value string
	}{
		{order.FieldDrinkType, o.DrinkType},
		{order.FieldSize, o.Size},
		{order.FieldMilk, o.Milk},
		{order.FieldName, o.Name},
	} {
		if f.value == "" {
			missing = append(missing, f.field.String())
		}
	}
	if len(missing) > 0 {
		return o, &ValidationError{
			Type:   "order_incomplete",
			Tool:   SaveOrderTool,
			Detail: "required order fields are empty",
			Fields: missing,
		}
	}
	return o, nil
}

// EncodeSaveArgs renders o as save_order arguments.
func EncodeSaveArgs(o order.ConfirmedOrder) json.RawMessage {
	data, _ := o.MarshalJSON()
	return data
}
