package metrics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the number of records an Aggregator queues before
// dropping.
const DefaultBufferSize = 256

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("metrics: aggregator already running")

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBufferSize sets the record queue size.
func WithBufferSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.bufferSize = n
		}
	}
}

// WithSinks registers sinks that observe every folded record.
func WithSinks(sinks ...Sink) Option {
	return func(a *Aggregator) {
		a.sinks = append(a.sinks, sinks...)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// Aggregator folds UsageRecords for one session into a SessionSummary.
//
// Record never blocks: when the queue is full the record is dropped and
// counted. Finalize seals the aggregator exactly once; records arriving
// after that are ignored.
type Aggregator struct {
	bufferSize int
	sinks      []Sink
	now        func() time.Time

	records chan UsageRecord
	stop    chan struct{}
	runDone chan struct{}
	running atomic.Bool
	dropped atomic.Int64

	// closedMu guards closed. Record holds the read side while sending so
	// Finalize can be sure no send is in flight once it holds the write side.
	closedMu sync.RWMutex
	closed   bool

	mu      sync.Mutex
	summary SessionSummary
	sealed  bool

	finalizeOnce sync.Once
	final        SessionSummary
}

// NewAggregator creates an aggregator for sessionID.
func NewAggregator(sessionID string, opts ...Option) *Aggregator {
	a := &Aggregator{
		bufferSize: DefaultBufferSize,
		now:        time.Now,
		stop:       make(chan struct{}),
		runDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.records = make(chan UsageRecord, a.bufferSize)
	a.summary = newSummary(sessionID, a.now())
	return a
}

// Record queues rec without blocking.
func (a *Aggregator) Record(rec UsageRecord) {
	a.closedMu.RLock()
	defer a.closedMu.RUnlock()
	if a.closed {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = a.now()
	}
	select {
	case a.records <- rec:
	default:
		a.dropped.Add(1)
	}
}

// Run folds queued records until ctx is done or Finalize is called.
func (a *Aggregator) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(a.runDone)
	for {
		select {
		case rec := <-a.records:
			a.fold(rec)
		case <-a.stop:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Finalize stops accepting records, folds whatever is still queued and
// returns the summary. Only the first call does any work; later calls
// return the same summary.
func (a *Aggregator) Finalize() SessionSummary {
	a.finalizeOnce.Do(func() {
		a.closedMu.Lock()
		a.closed = true
		a.closedMu.Unlock()

		close(a.stop)
		if a.running.Load() {
			<-a.runDone
		}

	drain:
		for {
			select {
			case rec := <-a.records:
				a.fold(rec)
			default:
				break drain
			}
		}

		a.mu.Lock()
		a.sealed = true
		a.summary.EndedAt = a.now()
		a.summary.Dropped = a.dropped.Load()
		a.final = a.summary.clone()
		a.mu.Unlock()
	})
	return a.final
}

// Snapshot returns the summary accumulated so far.
func (a *Aggregator) Snapshot() SessionSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.summary.clone()
	s.Dropped = a.dropped.Load()
	return s
}

// Dropped returns the number of records lost to a full buffer.
func (a *Aggregator) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Aggregator) fold(rec UsageRecord) {
	a.mu.Lock()
	if a.sealed {
		a.mu.Unlock()
		return
	}
	a.summary.add(rec)
	a.mu.Unlock()

	for _, s := range a.sinks {
		s.Observe(rec)
	}
}
