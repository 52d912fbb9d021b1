package rx

import (
	"github.com/roach88/streamscope/internal/ir"
)

// Observer receives the signals of a stream.
type Observer interface {
	Next(v any)
	Error(err error)
	Complete()
}

// ObserverFuncs adapts functions to Observer. Nil fields ignore the signal.
type ObserverFuncs struct {
	OnNext     func(any)
	OnError    func(error)
	OnComplete func()
}

func (f ObserverFuncs) Next(v any) {
	if f.OnNext != nil {
		f.OnNext(v)
	}
}

func (f ObserverFuncs) Error(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

func (f ObserverFuncs) Complete() {
	if f.OnComplete != nil {
		f.OnComplete()
	}
}

// Producer starts a stream for one observer and returns its teardown,
// which may be nil.
type Producer func(Observer) (teardown func())

// Subscription is the handle of one subscriber attachment.
type Subscription struct {
	rt        *Runtime
	id        int64
	closed    bool
	teardowns []func()
}

// ID returns the subscription id, or 0 when uninstrumented.
func (s *Subscription) ID() int64 {
	return s.id
}

// Closed reports whether the subscription was torn down.
func (s *Subscription) Closed() bool {
	return s.closed
}

// Add registers a teardown. It runs at once if s is already closed.
func (s *Subscription) Add(fn func()) {
	if fn == nil {
		return
	}
	if s.closed {
		fn()
		return
	}
	s.teardowns = append(s.teardowns, fn)
}

// Unsubscribe runs the teardowns in reverse order. Repeated calls do
// nothing.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.closed {
		return
	}
	s.closed = true

	scope := s.rt.begin(ir.KindUnsubscribe, ir.Event{Subscription: s.id})
	fns := s.teardowns
	s.teardowns = nil
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
	s.rt.end(ir.KindUnsubscribe, scope, ir.Event{})
}

// Observable is a cold stream: each subscription runs its producer anew.
type Observable struct {
	rt      *Runtime
	id      int64
	name    string
	produce Producer
}

// New returns an uninstrumented Observable around produce.
func New(produce Producer) *Observable {
	return &Observable{name: "observable", produce: produce}
}

// construct creates an Observable inside a construct scope.
func (rt *Runtime) construct(name string, args []any, produce Producer) *Observable {
	o := &Observable{rt: rt, name: name, produce: produce}
	o.id = rt.begin(ir.KindConstruct, ir.Event{Name: name, Args: ir.RenderArgs(args...)})
	rt.end(ir.KindConstruct, o.id, ir.Event{Handle: weakOf(o)})
	return o
}

// ID returns the Node id, or 0 when uninstrumented.
func (o *Observable) ID() int64 {
	if o == nil {
		return 0
	}
	return o.id
}

// Name returns the constructor or operator name.
func (o *Observable) Name() string {
	return o.name
}

// Subscribe attaches obs and starts the stream.
func (o *Observable) Subscribe(obs Observer) *Subscription {
	sub := &Subscription{rt: o.rt}
	if o.id != 0 {
		sub.id = o.rt.begin(ir.KindSubscribe, ir.Event{Node: o.id})
	}

	s := &subscriber{rt: o.rt, node: o.id, sub: sub, dest: obs}
	sub.Add(o.produce(s))

	o.rt.end(ir.KindSubscribe, sub.id, ir.Event{})
	return sub
}

// Pipe chains ops onto o inside one build scope and returns the last
// stage. An uninstrumented source takes the runtime of its operators, so
// stages piped off a plain stream are still recorded.
func (o *Observable) Pipe(ops ...*Operator) *Observable {
	if len(ops) == 0 {
		return o
	}
	rt := o.rt
	for _, op := range ops {
		if rt.instrumented() {
			break
		}
		rt = op.rt
	}

	build := rt.begin(ir.KindBuild, ir.Event{Node: o.id})
	cur := o
	for _, op := range ops {
		step := rt.begin(ir.KindStep, ir.Event{Operator: op.id, Node: cur.id})
		next := rt.construct(op.name, op.args, op.lift(cur))
		rt.end(ir.KindStep, step, ir.Event{Node: next.id})
		cur = next
	}
	rt.end(ir.KindBuild, build, ir.Event{Node: cur.id})
	return cur
}

// subscriber guards one observer: nothing is delivered after a terminal
// signal or an unsubscribe, and each delivery is wrapped in an emission
// scope.
type subscriber struct {
	rt      *Runtime
	node    int64
	sub     *Subscription
	dest    Observer
	stopped bool
}

func (s *subscriber) active() bool {
	return !s.stopped && !s.sub.closed
}

func (s *subscriber) signal(sig ir.Signal, value string) int64 {
	if s.sub.id == 0 {
		return 0
	}
	return s.rt.begin(ir.KindEmit, ir.Event{
		Node:         s.node,
		Subscription: s.sub.id,
		Signal:       sig,
		Value:        value,
	})
}

func (s *subscriber) Next(v any) {
	if !s.active() {
		return
	}
	scope := s.signal(ir.SignalNext, ir.RenderValue(v))
	s.dest.Next(v)
	s.rt.end(ir.KindEmit, scope, ir.Event{})
}

func (s *subscriber) Error(err error) {
	if !s.active() {
		return
	}
	s.stopped = true
	scope := s.signal(ir.SignalError, errorText(err))
	s.dest.Error(err)
	s.rt.end(ir.KindEmit, scope, ir.Event{})
	s.sub.Unsubscribe()
}

func (s *subscriber) Complete() {
	if !s.active() {
		return
	}
	s.stopped = true
	scope := s.signal(ir.SignalComplete, "")
	s.dest.Complete()
	s.rt.end(ir.KindEmit, scope, ir.Event{})
	s.sub.Unsubscribe()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
