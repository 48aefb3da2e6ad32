package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/voicebarista/runtime/order"
	"github.com/AltairaLabs/voicebarista/runtime/orderstore"
)

func newTestGate(t *testing.T) (*Gate, *orderstore.MemoryStore) {
	t.Helper()
	registry, err := NewDefaultRegistry()
	require.NoError(t, err)
	store := orderstore.NewMemoryStore()
	gate, err := NewGate(registry, store, nil)
	require.NoError(t, err)
	return gate, store
}

const samArgs = `{"drinkType":"Latte","size":"Medium","milk":"Oat","extras":["Vanilla syrup"],"name":"Sam"}`

func TestGate_SavesCompleteOrder(t *testing.T) {
	gate, store := newTestGate(t)

	res := gate.RequestSave(context.Background(), json.RawMessage(samArgs))

	require.Equal(t, SaveOK, res.Status, "err: %v", res.Err)
	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, orderstore.BackendMemory, res.Ack.Backend)
	assert.Equal(t, MessageSaved, res.Message())

	orders := store.Orders()
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Equal(order.ConfirmedOrder{
		DrinkType: "Latte", Size: "Medium", Milk: "Oat", Extras: []string{"Vanilla syrup"}, Name: "Sam",
	}))
}

func TestGate_NormalizesArguments(t *testing.T) {
	gate, store := newTestGate(t)

	res := gate.RequestSave(context.Background(),
		json.RawMessage(`{"drinkType":" Mocha ","size":"Large","milk":"Whole","extras":["none"],"name":"Kim"}`))

	require.Equal(t, SaveOK, res.Status)
	assert.Equal(t, "Mocha", store.Orders()[0].DrinkType)
	assert.Empty(t, store.Orders()[0].Extras)
}

func TestGate_RejectsIncompleteWithoutCallingStore(t *testing.T) {
	tests := []struct {
		name   string
		args   string
		fields []string
	}{
		{
			name:   "missing name",
			args:   `{"drinkType":"Latte","size":"Medium","milk":"Oat","extras":[]}`,
			fields: []string{"name"},
		},
		{
			name:   "blank size",
			args:   `{"drinkType":"Latte","size":"  ","milk":"Oat","extras":[],"name":"Sam"}`,
			fields: []string{"size"},
		},
		{
			name:   "empty milk",
			args:   `{"drinkType":"Latte","size":"Medium","milk":"","extras":[],"name":"Sam"}`,
			fields: []string{"milk"},
		},
		{
			name:   "extras missing",
			args:   `{"drinkType":"Latte","size":"Medium","milk":"Oat","name":"Sam"}`,
			fields: []string{"extras"},
		},
		{
			name: "not json",
			args: `save it`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, store := newTestGate(t)

			res := gate.RequestSave(context.Background(), json.RawMessage(tt.args))

			assert.Equal(t, SaveValidationFailed, res.Status)
			assert.Zero(t, store.Calls())
			var ve *ValidationError
			require.ErrorAs(t, res.Err, &ve)
			if tt.fields != nil {
				assert.Equal(t, tt.fields, ve.Fields)
				for _, f := range tt.fields {
					assert.Contains(t, res.Message(), f)
				}
			}
		})
	}
}

func TestGate_WriteFailureIsReportedNotRetried(t *testing.T) {
	gate, store := newTestGate(t)
	store.FailWith(errors.New("storage unavailable"))

	res := gate.RequestSave(context.Background(), json.RawMessage(samArgs))

	assert.Equal(t, SaveWriteFailed, res.Status)
	assert.Equal(t, MessageWriteError, res.Message())
	assert.Equal(t, 1, store.Calls())
	var we *orderstore.WriteError
	assert.ErrorAs(t, res.Err, &we)
	assert.Equal(t, "Sam", res.Order.Name)
}

func TestNewGate_RequiresSaveOrderTool(t *testing.T) {
	_, err := NewGate(NewRegistry(), orderstore.NewMemoryStore(), nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestSaveArgsRoundTrip(t *testing.T) {
	o := order.ConfirmedOrder{DrinkType: "Tea", Size: "Small", Milk: "None", Name: "Al"}
	decoded, err := DecodeSaveArgs(EncodeSaveArgs(o))
	require.NoError(t, err)
	assert.True(t, decoded.Equal(order.ConfirmedOrder{DrinkType: "Tea", Size: "Small", Milk: "None", Extras: []string{}, Name: "Al"}))
}

func TestSaveStatus_String(t *testing.T) {
	assert.Equal(t, "ok", SaveOK.String())
	assert.Equal(t, "validation_failed", SaveValidationFailed.String())
	assert.Equal(t, "write_error", SaveWriteFailed.String())
	assert.Equal(t, "unknown", SaveStatus(9).String())
}
