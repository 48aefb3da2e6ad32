package dialogue

import (
	"encoding/json"

	"github.com/AltairaLabs/voicebarista/runtime/order"
)

// Result is what a generation produced: a SpokenResponse or a SaveRequest.
type Result interface {
	isResult()
	// Kind returns "spoken" or "save".
	Kind() string
}

// SpokenResponse is text for the customer plus whatever it changes.
type SpokenResponse struct {
	Text       string
	Update     *order.Update
	ReadBack   bool
	EndSession bool
}

func (SpokenResponse) isResult() {}

// Kind implements Result.
func (SpokenResponse) Kind() string { return "spoken" }

// SaveRequest asks for the order to be persisted with Args.
type SaveRequest struct {
	Args json.RawMessage
}

func (SaveRequest) isResult() {}

// Kind implements Result.
func (SaveRequest) Kind() string { return "save" }
