package rx

import (
	"weak"

	"github.com/roach88/streamscope/internal/ir"
)

// Sink receives instrumentation events.
type Sink interface {
	Apply(ir.Event)
}

// Clock issues event seqs.
type Clock interface {
	Next() int64
}

// Source is anything that is backed by a Node.
type Source interface {
	ID() int64
}

// Runtime stamps and delivers events for the streams it creates.
type Runtime struct {
	sink  Sink
	clock Clock
}

// NewRuntime returns a Runtime reporting to sink with seqs from clock.
// A nil sink disables instrumentation.
func NewRuntime(sink Sink, clock Clock) *Runtime {
	return &Runtime{sink: sink, clock: clock}
}

func (rt *Runtime) instrumented() bool {
	return rt != nil && rt.sink != nil && rt.clock != nil
}

// begin emits the begin half of kind and returns its seq, or 0 when
// uninstrumented.
func (rt *Runtime) begin(kind ir.EventKind, ev ir.Event) int64 {
	if !rt.instrumented() {
		return 0
	}
	ev.Seq = rt.clock.Next()
	ev.Kind = kind
	ev.Phase = ir.PhaseBegin
	rt.sink.Apply(ev)
	return ev.Seq
}

// end closes scope. A zero scope means begin was not instrumented.
func (rt *Runtime) end(kind ir.EventKind, scope int64, ev ir.Event) {
	if scope == 0 || !rt.instrumented() {
		return
	}
	ev.Seq = rt.clock.Next()
	ev.Kind = kind
	ev.Phase = ir.PhaseEnd
	ev.Scope = scope
	rt.sink.Apply(ev)
}

// invoke runs a captured closure inside an argument-invocation scope. When
// the closure returns a stream, its Node is reported as the result.
func (rt *Runtime) invoke(owner int64, position int, fn func() any) any {
	scope := rt.begin(ir.KindArgCall, ir.Event{Owner: owner, Position: position})
	out := fn()
	var node int64
	if src, ok := out.(Source); ok && src != nil {
		node = src.ID()
	}
	rt.end(ir.KindArgCall, scope, ir.Event{Node: node})
	return out
}

// BeginTrack opens a track scope for key and returns its scope seq.
func (rt *Runtime) BeginTrack(key string, kind ir.TrackKind) int64 {
	return rt.begin(ir.KindTrack, ir.Event{Key: key, TrackKind: kind})
}

// EndTrack closes a track scope, binding it to src. The track keeps a
// strong reference to src until it is rebound or dropped.
func (rt *Runtime) EndTrack(scope int64, src Source) {
	ev := ir.Event{}
	if src != nil {
		ev.Node = src.ID()
		ev.Handle = strongHandle{v: src}
	}
	rt.end(ir.KindTrack, scope, ev)
}

// Module evaluates body as one version of the named module. The module
// end, and so the orphan sweep, runs even if body panics.
func (rt *Runtime) Module(name string, body func()) {
	scope := rt.begin(ir.KindModule, ir.Event{Module: name})
	defer rt.end(ir.KindModule, scope, ir.Event{})
	body()
}

type weakHandle[T any] struct {
	p weak.Pointer[T]
}

func (h weakHandle[T]) Resolve() (any, bool) {
	v := h.p.Value()
	if v == nil {
		return nil, false
	}
	return v, true
}

func weakOf[T any](v *T) ir.Handle {
	return weakHandle[T]{p: weak.Make(v)}
}

type strongHandle struct {
	v any
}

func (h strongHandle) Resolve() (any, bool) {
	return h.v, h.v != nil
}
