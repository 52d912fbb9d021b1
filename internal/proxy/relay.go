package proxy

import (
	"github.com/roach88/streamscope/internal/ir"
	"github.com/roach88/streamscope/internal/rx"
)

// hotSource is a bound Subject a Relay mirrors.
type hotSource interface {
	subscribable
	rx.Observer
}

// Relay is the stable stand-in for a hot track. It owns a multicast
// channel. Values pushed into the bound Subject reach the channel, and
// values pushed into the Relay go to the bound Subject first and then to
// the channel. The forwarding flag keeps a value from echoing back.
type Relay struct {
	key        string
	own        *rx.Subject
	target     hotSource
	inner      *rx.Subscription
	forwarding bool
	dropped    bool
}

func newRelay(rt *rx.Runtime, key string) *Relay {
	return &Relay{key: key, own: rt.NamedSubject("trackSubject", key)}
}

func (r *Relay) kind() ir.TrackKind { return ir.TrackHot }

// Key returns the effective track key.
func (r *Relay) Key() string {
	return r.key
}

// Observable returns the Relay's own channel.
func (r *Relay) Observable() *rx.Observable {
	return r.own.Observable
}

// Subscribe attaches obs to the Relay's own channel.
func (r *Relay) Subscribe(obs rx.Observer) *rx.Subscription {
	return r.own.Subscribe(obs)
}

// ID implements rx.Source. It is the Node of the Relay's own channel, or
// 0 when uninstrumented.
func (r *Relay) ID() int64 {
	return r.own.ID()
}

// Dropped reports whether the track was removed by an orphan sweep.
func (r *Relay) Dropped() bool {
	return r.dropped
}

// Next pushes v into the bound Subject, then into the Relay's channel.
func (r *Relay) Next(v any) {
	r.toInner(func(t hotSource) { t.Next(v) })
	r.own.Next(v)
}

// Error terminates the bound Subject and the Relay's channel.
func (r *Relay) Error(err error) {
	r.toInner(func(t hotSource) { t.Error(err) })
	r.own.Error(err)
}

// Complete terminates the bound Subject and the Relay's channel.
func (r *Relay) Complete() {
	r.toInner(func(t hotSource) { t.Complete() })
	r.own.Complete()
}

func (r *Relay) toInner(fn func(hotSource)) {
	if r.target == nil {
		return
	}
	r.forwarding = true
	defer func() { r.forwarding = false }()
	fn(r.target)
}

func (r *Relay) bind(target any) {
	t, ok := target.(hotSource)
	if !ok || r.dropped {
		return
	}
	r.release()
	r.target = t
	r.inner = t.Subscribe(rx.ObserverFuncs{
		OnNext: func(v any) {
			if !r.forwarding {
				r.own.Next(v)
			}
		},
		OnError: func(err error) {
			if !r.forwarding {
				r.own.Error(err)
			}
		},
		OnComplete: func() {
			if !r.forwarding {
				r.own.Complete()
			}
		},
	})
}

func (r *Relay) release() {
	if r.inner != nil {
		r.inner.Unsubscribe()
		r.inner = nil
	}
	r.target = nil
}

func (r *Relay) drop() {
	if r.dropped {
		return
	}
	r.dropped = true
	r.release()
	r.own.Complete()
}
