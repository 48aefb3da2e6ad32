// Package orderstore persists confirmed orders to an append-only log.
//
// Every backend writes one self-delimited record per order and never reads
// back, rewrites or deduplicates what is already there. The file backend is
// safe for many sessions and many processes sharing one file: each record is
// a single write made under an exclusive advisory lock. The Redis backend
// appends to a stream, which additionally gives every record a total order.
package orderstore

import (
	"context"
	"errors"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/order"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// ErrStoreClosed is returned by Append after Close.
var ErrStoreClosed = errors.New("order store closed")

// Store is a durable append-only log of confirmed orders.
type Store interface {
	// Append writes o as one record. Failures are *WriteError and are never retried.
	Append(ctx context.Context, o order.ConfirmedOrder) (Ack, error)

	// Backend returns the backend name.
	Backend() string

	// Close releases resources. Later appends fail with ErrStoreClosed.
	Close() error
}

// Ack acknowledges a durable append.
type Ack struct {
	Backend string
	// Ref locates the record in the backend: a byte offset for files, a
	// stream entry ID for Redis, an index for memory.
	Ref string
	At  time.Time
}

// WriteError reports a failed append.
type WriteError struct {
	Backend string
	Err     error
}

func (e *WriteError) Error() string {
	return "orderstore: " + e.Backend + " append failed: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

func writeErr(backend string, err error) error {
	return &WriteError{Backend: backend, Err: err}
}

// encode renders o as a single newline-terminated JSON record.
func encode(o order.ConfirmedOrder) ([]byte, error) {
	data, err := o.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
