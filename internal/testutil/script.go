package testutil

import (
	"github.com/roach88/streamscope/internal/ir"
)

// Sink receives events as a Script produces them.
type Sink interface {
	Apply(ir.Event)
}

// Script builds well-formed begin/end event sequences with deterministic
// seqs, the way an instrumented pipeline would emit them.
//
// Events are recorded and, when a sink is given, applied as they are
// produced, so a test can inspect state between steps. Nested scopes are
// written as closures:
//
//	s := testutil.NewScript(acc)
//	s.Module("app", func() {
//	    s.Track("t", ir.TrackCold, func() int64 {
//	        src := s.Construct("source")
//	        return s.Pipe(src, s.Operator("map", ir.Closure()))
//	    })
//	})
type Script struct {
	seq    *Seq
	sink   Sink
	events []ir.Event
	ops    map[int64]ir.Event
}

// NewScript creates a script. sink may be nil.
func NewScript(sink Sink) *Script {
	return &Script{
		seq:  NewSeq(0),
		sink: sink,
		ops:  make(map[int64]ir.Event),
	}
}

// Events returns every event produced so far.
func (s *Script) Events() []ir.Event {
	return append([]ir.Event(nil), s.events...)
}

// Seq returns the script's seq source. Pass it to rx.NewRuntime to
// interleave runtime events with scripted ones.
func (s *Script) Seq() *Seq {
	return s.seq
}

// Emit stamps ev with the next seq and records it.
func (s *Script) Emit(ev ir.Event) int64 {
	ev.Seq = s.seq.Next()
	s.events = append(s.events, ev)
	if s.sink != nil {
		s.sink.Apply(ev)
	}
	return ev.Seq
}

// Begin emits the begin half of kind with the given payload.
func (s *Script) Begin(kind ir.EventKind, payload ir.Event) int64 {
	payload.Kind = kind
	payload.Phase = ir.PhaseBegin
	return s.Emit(payload)
}

// End emits the end half of the scope opened at scope.
func (s *Script) End(kind ir.EventKind, scope int64, payload ir.Event) int64 {
	payload.Kind = kind
	payload.Phase = ir.PhaseEnd
	payload.Scope = scope
	return s.Emit(payload)
}

// Construct creates a Node and returns its id.
func (s *Script) Construct(name string, args ...ir.Arg) int64 {
	id := s.Begin(ir.KindConstruct, ir.Event{Name: name, Args: args})
	s.End(ir.KindConstruct, id, ir.Event{})
	return id
}

// Operator creates an OperatorKind and returns its id.
func (s *Script) Operator(name string, args ...ir.Arg) int64 {
	payload := ir.Event{Name: name, Args: args}
	id := s.Begin(ir.KindOperator, payload)
	s.End(ir.KindOperator, id, ir.Event{})
	s.ops[id] = payload
	return id
}

// Pipe builds a chain from source through ops and returns the output Node.
func (s *Script) Pipe(source int64, ops ...int64) int64 {
	build := s.Begin(ir.KindBuild, ir.Event{Node: source})
	cur := source
	for _, op := range ops {
		step := s.Begin(ir.KindStep, ir.Event{Operator: op, Node: cur})
		meta := s.ops[op]
		cur = s.Construct(meta.Name, meta.Args...)
		s.End(ir.KindStep, step, ir.Event{Node: cur})
	}
	s.End(ir.KindBuild, build, ir.Event{Node: cur})
	return cur
}

// Track opens a track scope around body and binds it to the Node body
// returns (0 leaves it unbound). Returns the track scope seq.
func (s *Script) Track(key string, kind ir.TrackKind, body func() int64) int64 {
	scope := s.Begin(ir.KindTrack, ir.Event{Key: key, TrackKind: kind})
	node := body()
	s.End(ir.KindTrack, scope, ir.Event{Node: node})
	return scope
}

// Module evaluates body as one version of a module.
func (s *Script) Module(name string, body func()) int64 {
	scope := s.Begin(ir.KindModule, ir.Event{Module: name})
	body()
	s.End(ir.KindModule, scope, ir.Event{})
	return scope
}

// Subscribe opens a subscription to node. body runs inside the subscribe
// call and receives the subscription id; it may be nil.
func (s *Script) Subscribe(node int64, body func(sub int64)) int64 {
	sub := s.Begin(ir.KindSubscribe, ir.Event{Node: node})
	if body != nil {
		body(sub)
	}
	s.End(ir.KindSubscribe, sub, ir.Event{})
	return sub
}

// Unsubscribe tears down sub.
func (s *Script) Unsubscribe(sub int64) {
	scope := s.Begin(ir.KindUnsubscribe, ir.Event{Subscription: sub})
	s.End(ir.KindUnsubscribe, scope, ir.Event{})
}

// Signal emits one signal on node through sub. body runs while the
// emission is open; it may be nil. Returns the emission seq.
func (s *Script) Signal(node, sub int64, sig ir.Signal, value string, body func()) int64 {
	scope := s.Begin(ir.KindEmit, ir.Event{Node: node, Subscription: sub, Signal: sig, Value: value})
	if body != nil {
		body()
	}
	s.End(ir.KindEmit, scope, ir.Event{})
	return scope
}

// ArgCall runs closure argument position of owner. body returns the Node
// the closure built, or 0.
func (s *Script) ArgCall(owner int64, position int, body func() int64) int64 {
	scope := s.Begin(ir.KindArgCall, ir.Event{Owner: owner, Position: position})
	var result int64
	if body != nil {
		result = body()
	}
	s.End(ir.KindArgCall, scope, ir.Event{Node: result})
	return scope
}
