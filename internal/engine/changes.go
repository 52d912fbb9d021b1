package engine

import (
	"log/slog"

	"github.com/roach88/streamscope/internal/ir"
)

// ChangeKind tags a state-change notification.
type ChangeKind string

const (
	// ChangeApplied follows every event that changed state.
	ChangeApplied ChangeKind = "applied"
	// ChangeBound reports the first binding of a track.
	ChangeBound ChangeKind = "bound"
	// ChangeRebound reports a track switching to a different Node.
	ChangeRebound ChangeKind = "rebound"
	// ChangeDropped reports a track removed by an orphan sweep.
	ChangeDropped ChangeKind = "dropped"
)

// Change is one notification delivered to listeners after an Apply.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	Seq        int64      `json:"seq"`
	Key        string     `json:"key,omitempty"`
	Node       int64      `json:"node,omitempty"`
	Version    int        `json:"version,omitempty"`
	Structural bool       `json:"structural,omitempty"`

	// Live is the handle of the new binding for bound/rebound changes.
	Live ir.Handle `json:"-"`
}

// Listener receives changes. A listener may call Apply; the nested
// changes are queued and delivered after the current one.
type Listener func(Change)

type listenerEntry struct {
	fn     Listener
	active bool
}

// Subscribe registers fn for every future change and returns a function
// that removes it. Cancelling is idempotent.
func (a *Accumulator) Subscribe(fn Listener) (cancel func()) {
	entry := &listenerEntry{fn: fn, active: true}
	a.listeners = append(a.listeners, entry)
	return func() {
		if !entry.active {
			return
		}
		entry.active = false
		for i, l := range a.listeners {
			if l == entry {
				a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
				break
			}
		}
	}
}

func (a *Accumulator) publish(c Change) {
	a.pending = append(a.pending, c)
}

// flush delivers pending changes in FIFO order. Re-entrant Apply calls made
// by listeners only queue; the outermost flush drains everything.
func (a *Accumulator) flush() {
	if a.flushing {
		return
	}
	a.flushing = true
	defer func() { a.flushing = false }()

	for len(a.pending) > 0 {
		c := a.pending[0]
		a.pending[0] = Change{}
		a.pending = a.pending[1:]

		listeners := append([]*listenerEntry(nil), a.listeners...)
		for _, l := range listeners {
			if !l.active {
				continue
			}
			a.deliver(l.fn, c)
		}
	}
	a.pending = nil
}

func (a *Accumulator) deliver(fn Listener, c Change) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("change listener panicked",
				slog.String("change", string(c.Kind)),
				slog.String("key", c.Key),
				slog.Any("panic", r))
		}
	}()
	fn(c)
}
