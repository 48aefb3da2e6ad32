package orderstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/AltairaLabs/voicebarista/runtime/order"
)

// MemoryStore keeps orders in memory. It is meant for tests and demos and
// can be told to fail so error paths can be exercised.
type MemoryStore struct {
	mu      sync.Mutex
	orders  []order.ConfirmedOrder
	failErr error
	calls   int
	closed  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FailWith makes every later Append fail with err. A nil err clears it.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Backend returns "memory".
func (s *MemoryStore) Backend() string {
	return BackendMemory
}

// Append records o.
func (s *MemoryStore) Append(ctx context.Context, o order.ConfirmedOrder) (Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	switch {
	case s.closed:
		return Ack{}, writeErr(BackendMemory, ErrStoreClosed)
	case s.failErr != nil:
		return Ack{}, writeErr(BackendMemory, s.failErr)
	case ctx.Err() != nil:
		return Ack{}, writeErr(BackendMemory, ctx.Err())
	}

	o.Extras = append([]string{}, o.Extras...)
	s.orders = append(s.orders, o)
	return Ack{
		Backend: BackendMemory,
		Ref:     strconv.Itoa(len(s.orders) - 1),
		At:      time.Now(),
	}, nil
}

// Orders returns a copy of every stored order.
func (s *MemoryStore) Orders() []order.ConfirmedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]order.ConfirmedOrder(nil), s.orders...)
}

// Calls returns how many times Append was invoked, including failures.
func (s *MemoryStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
