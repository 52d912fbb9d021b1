package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/streamscope/internal/ir"
)

// Engine is the single-writer event loop around an Accumulator.
//
// Ingest goroutines call Enqueue; one goroutine calls Run, which applies
// queued events in FIFO order. Readers take a snapshot under a read lock.
//
// Thread-safety model:
//   - Enqueue(), Apply(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Snapshot(), Track(), LastSeq(): safe from any goroutine
//   - Listeners run on the Run goroutine while the write lock is held and
//     must not call back into the Engine's readers
type Engine struct {
	mu      sync.RWMutex
	acc     *Accumulator
	clock   *Clock
	queue   *eventQueue
	session string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the clock used to order in-process events. Used after a
// replay to resume above the replayed seqs.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine applying events to acc. gen names the session.
func New(acc *Accumulator, gen SessionIDGenerator, opts ...EngineOption) *Engine {
	e := &Engine{
		acc:     acc,
		clock:   NewClockAt(acc.LastSeq()),
		queue:   newEventQueue(),
		session: gen.Generate(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the session id.
func (e *Engine) Session() string {
	return e.session
}

// Clock returns the engine's clock. In-process instrumentation stamps its
// events with it so that they stay ordered with ingested ones.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Enqueue validates a batch of externally produced events and queues it.
// The whole batch is rejected if any event is malformed.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Enqueue(evs ...ir.Event) error {
	for i, ev := range evs {
		if ev.Seq <= 0 {
			return &IngestError{Code: ErrCodeInvalidEvent, Message: "seq must be positive", Index: i}
		}
		if err := ev.Validate(); err != nil {
			return &IngestError{Code: ErrCodeInvalidEvent, Message: err.Error(), Seq: ev.Seq, Index: i}
		}
	}
	for _, ev := range evs {
		e.clock.Observe(ev.Seq)
	}
	if !e.queue.Enqueue(evs...) {
		return &IngestError{Code: ErrCodeStopped, Message: "engine stopped"}
	}
	return nil
}

// Apply queues one in-process event, so an Engine can be the sink of an
// instrumented runtime. Rejections are logged.
func (e *Engine) Apply(ev ir.Event) {
	if err := e.Enqueue(ev); err != nil {
		slog.Warn("event rejected", "event", ev.String(), "error", err)
	}
}

// Run starts the single-writer loop. It blocks until ctx is cancelled or
// Stop is called, and drains events queued before a Stop.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "session", e.session)

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			e.process(ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled", "session", e.session)
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue; an empty queue
			// after a wakeup means we were stopped.
			if e.queue.Len() == 0 && e.stopped() {
				slog.Info("engine stopping: queue closed", "session", e.session)
				return nil
			}
		}
	}
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// Stop closes the queue; Run returns once it is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) process(ev ir.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.acc.Apply(ev)
}

// Subscribe registers a listener on the underlying accumulator.
func (e *Engine) Subscribe(fn Listener) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inner := e.acc.Subscribe(fn)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		inner()
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() ir.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.acc.Snapshot()
}

// Track returns the track registered under key.
func (e *Engine) Track(key string) (ir.Track, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.acc.Track(key)
}

// LastSeq returns the seq of the last applied event.
func (e *Engine) LastSeq() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.acc.LastSeq()
}

// QueueLen returns the number of events waiting to be applied.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// String identifies the engine in logs.
func (e *Engine) String() string {
	return fmt.Sprintf("engine(session=%s)", e.session)
}
