package proxy

import (
	"log/slog"

	"github.com/roach88/streamscope/internal/engine"
	"github.com/roach88/streamscope/internal/ir"
	"github.com/roach88/streamscope/internal/rx"
)

// Tracker is the part of the Accumulator a Registry reads.
type Tracker interface {
	OpenTrack() (ir.Track, bool)
	Subscribe(fn engine.Listener) (cancel func())
}

type proxy interface {
	kind() ir.TrackKind
	bind(target any)
	drop()
}

// Registry memoizes proxies by effective track key.
type Registry struct {
	rt      *rx.Runtime
	tracker Tracker
	cancel  func()
	proxies map[string]proxy
}

// NewRegistry returns a Registry that opens track scopes through rt and
// follows the bindings recorded by tracker.
func NewRegistry(rt *rx.Runtime, tracker Tracker) *Registry {
	r := &Registry{
		rt:      rt,
		tracker: tracker,
		proxies: make(map[string]proxy),
	}
	if tracker != nil {
		r.cancel = tracker.Subscribe(r.onChange)
	}
	return r
}

// Close stops following track changes. Existing proxies keep their
// current binding.
func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Len returns the number of live proxies.
func (r *Registry) Len() int {
	return len(r.proxies)
}

func (r *Registry) onChange(c engine.Change) {
	p, ok := r.proxies[c.Key]
	if !ok {
		return
	}
	switch c.Kind {
	case engine.ChangeBound, engine.ChangeRebound:
		if c.Live == nil {
			return
		}
		target, ok := c.Live.Resolve()
		if !ok {
			slog.Warn("bound stream already collected",
				slog.String("key", c.Key),
				slog.Int64("node", c.Node))
			return
		}
		p.bind(target)
	case engine.ChangeDropped:
		delete(r.proxies, c.Key)
		p.drop()
	}
}

// scope evaluates build inside a track scope for key and returns the proxy
// memoized under the effective key, creating it with create on first use.
func (r *Registry) scope(key string, kind ir.TrackKind, build func() rx.Source, create func(key string) proxy) proxy {
	seq := r.rt.BeginTrack(key, kind)

	effective := key
	if r.tracker != nil {
		if t, ok := r.tracker.OpenTrack(); ok {
			effective = t.Key
		}
	}

	p, ok := r.proxies[effective]
	if ok && p.kind() != kind {
		// The call site switched between Track and TrackSubject.
		slog.Debug("track proxy kind changed", slog.String("key", effective))
		p.drop()
		ok = false
	}
	if !ok {
		p = create(effective)
		r.proxies[effective] = p
	}

	src := build()
	if seq != 0 {
		r.rt.EndTrack(seq, src)
	}
	if src != nil && (seq == 0 || r.tracker == nil || src.ID() == 0) {
		// No Node, or no tracker, so nothing will report the binding.
		p.bind(src)
	}
	return p
}

// Track evaluates build as the cold track key and returns the Switcher
// that stands for it. The same Switcher is returned on every call for the
// life of the track.
func (r *Registry) Track(key string, build func() rx.Source) *Switcher {
	return r.scope(key, ir.TrackCold, build, func(k string) proxy { return newSwitcher(r.rt, k) }).(*Switcher)
}

// TrackSubject evaluates build as the hot track key and returns its Relay.
func (r *Registry) TrackSubject(key string, build func() rx.Source) *Relay {
	return r.scope(key, ir.TrackHot, build, func(k string) proxy { return newRelay(r.rt, k) }).(*Relay)
}

// TrackFunc wraps a stream factory so each call re-enters the track scope
// for key. Calls made while an emission is being handled get their own
// derived key and so their own Switcher.
func (r *Registry) TrackFunc(key string, fn func(args ...any) rx.Source) func(args ...any) *Switcher {
	return func(args ...any) *Switcher {
		return r.Track(key, func() rx.Source { return fn(args...) })
	}
}
