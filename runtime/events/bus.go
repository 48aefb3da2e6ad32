// Package events provides a lightweight pub/sub bus for session observability.
//
// The session orchestrator publishes lifecycle events (turns, barge-ins,
// generations, order saves, provider failures) through an Emitter. Listeners
// such as the Prometheus and OpenTelemetry adapters subscribe on the bus.
// Events are delivered in publish order from a single dispatch goroutine, so
// a slow listener delays other listeners but never the publisher.
package events

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the number of undelivered events a bus buffers before
// dropping.
const DefaultQueueSize = 1024

// Listener is a function that handles events.
type Listener func(*Event)

type subscription struct {
	id       uint64
	listener Listener
}

// EventBus manages event distribution to listeners.
type EventBus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]subscription
	globalListeners []subscription
	nextID          uint64
	closed          bool

	queue   chan *Event
	done    chan struct{}
	dropped atomic.Int64
	once    sync.Once
}

// NewEventBus creates a bus and starts its dispatch goroutine. Close stops it.
func NewEventBus() *EventBus {
	return NewEventBusWithQueue(DefaultQueueSize)
}

// NewEventBusWithQueue creates a bus buffering up to size events.
func NewEventBusWithQueue(size int) *EventBus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	eb := &EventBus{
		listeners: make(map[EventType][]subscription),
		queue:     make(chan *Event, size),
		done:      make(chan struct{}),
	}
	go eb.dispatch()
	return eb
}

// Subscribe registers a listener for a specific event type and returns a
// function that removes it.
func (eb *EventBus) Subscribe(eventType EventType, listener Listener) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.listeners[eventType] = append(eb.listeners[eventType], subscription{id: id, listener: listener})
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.listeners[eventType] = remove(eb.listeners[eventType], id)
	}
}

// SubscribeAll registers a listener for all event types and returns a
// function that removes it.
func (eb *EventBus) SubscribeAll(listener Listener) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.globalListeners = append(eb.globalListeners, subscription{id: id, listener: listener})
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.globalListeners = remove(eb.globalListeners, id)
	}
}

// Publish queues an event for delivery. It never blocks; when the queue is
// full the event is dropped and counted. Publishing on a closed bus is a no-op.
func (eb *EventBus) Publish(event *Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	select {
	case eb.queue <- event:
	default:
		eb.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to a full queue.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}

// Close stops accepting events, delivers everything already queued and
// waits for the dispatch goroutine to exit.
func (eb *EventBus) Close() {
	eb.once.Do(func() {
		eb.mu.Lock()
		eb.closed = true
		close(eb.queue)
		eb.mu.Unlock()
	})
	<-eb.done
}

func (eb *EventBus) dispatch() {
	defer close(eb.done)
	for event := range eb.queue {
		eb.mu.RLock()
		specific := append([]subscription(nil), eb.listeners[event.Type]...)
		global := append([]subscription(nil), eb.globalListeners...)
		eb.mu.RUnlock()

		for _, s := range specific {
			safeInvoke(s.listener, event)
		}
		for _, s := range global {
			safeInvoke(s.listener, event)
		}
	}
}

func remove(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
