package proxy

import (
	"slices"

	"github.com/roach88/streamscope/internal/ir"
	"github.com/roach88/streamscope/internal/rx"
)

// subscribable is a bound stream a proxy can attach to.
type subscribable interface {
	Subscribe(rx.Observer) *rx.Subscription
}

// Switcher is the stable stand-in for a cold track. Each subscriber is
// attached to the currently bound stream; on rebind the attachment moves to
// the new stream without any signal reaching the subscriber. Terminal
// signals of the bound stream itself are forwarded.
type Switcher struct {
	key     string
	obs     *rx.Observable
	target  subscribable
	outers  []*outer
	dropped bool
}

// outer is one downstream subscription of a Switcher.
type outer struct {
	dest  rx.Observer
	inner *rx.Subscription
	gen   int
	done  bool
}

// newSwitcher creates the Switcher for key. Its stream is constructed
// through rt, inside the track scope, so pipelines built on it record it as
// their origin.
func newSwitcher(rt *rx.Runtime, key string) *Switcher {
	s := &Switcher{key: key}
	s.obs = rt.Create("track", s.attach, key)
	return s
}

func (s *Switcher) kind() ir.TrackKind { return ir.TrackCold }

// Key returns the effective track key.
func (s *Switcher) Key() string {
	return s.key
}

// Observable returns the Switcher as a plain stream, for use in pipes.
func (s *Switcher) Observable() *rx.Observable {
	return s.obs
}

// Subscribe attaches obs. If the track is not bound yet the connection is
// made on the first bind.
func (s *Switcher) Subscribe(obs rx.Observer) *rx.Subscription {
	return s.obs.Subscribe(obs)
}

// ID implements rx.Source. It is the Switcher's own Node, or 0 when
// uninstrumented.
func (s *Switcher) ID() int64 {
	return s.obs.ID()
}

// Subscribers returns the number of attached subscribers.
func (s *Switcher) Subscribers() int {
	return len(s.outers)
}

// Dropped reports whether the track was removed by an orphan sweep.
func (s *Switcher) Dropped() bool {
	return s.dropped
}

func (s *Switcher) attach(dest rx.Observer) func() {
	if s.dropped {
		dest.Complete()
		return nil
	}
	o := &outer{dest: dest}
	s.outers = append(s.outers, o)
	s.connect(o)
	return func() {
		o.done = true
		o.gen++
		if o.inner != nil {
			o.inner.Unsubscribe()
			o.inner = nil
		}
		s.outers = slices.DeleteFunc(s.outers, func(x *outer) bool { return x == o })
	}
}

// connect attaches o to the bound stream. Signals from an earlier
// attachment are discarded by the generation check.
func (s *Switcher) connect(o *outer) {
	if s.target == nil || o.done {
		return
	}
	o.gen++
	g := o.gen
	live := func() bool { return o.gen == g && !o.done }

	sub := s.target.Subscribe(rx.ObserverFuncs{
		OnNext: func(v any) {
			if live() {
				o.dest.Next(v)
			}
		},
		OnError: func(err error) {
			if live() {
				o.dest.Error(err)
			}
		},
		OnComplete: func() {
			if live() {
				o.dest.Complete()
			}
		},
	})
	if live() {
		o.inner = sub
		return
	}
	sub.Unsubscribe()
}

func (s *Switcher) bind(target any) {
	t, ok := target.(subscribable)
	if !ok || s.dropped {
		return
	}
	s.target = t
	for _, o := range slices.Clone(s.outers) {
		o.gen++
		if o.inner != nil {
			old := o.inner
			o.inner = nil
			old.Unsubscribe()
		}
		s.connect(o)
	}
}

func (s *Switcher) drop() {
	if s.dropped {
		return
	}
	s.dropped = true
	s.target = nil
	for _, o := range slices.Clone(s.outers) {
		o.dest.Complete()
	}
}
