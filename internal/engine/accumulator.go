package engine

import (
	"log/slog"

	"github.com/roach88/streamscope/internal/ir"
)

// Accumulator folds instrumentation events into the relational store and
// the track registry. It is the only writer of that state.
//
// Apply is total: unknown kinds, stale seqs, end events without an open
// scope and emissions on untracked Nodes are ignored, and a panic while
// handling one event is logged and swallowed.
//
// Thread-safety: none. An Accumulator is driven from one call stack; use
// Engine to feed it from several goroutines.
type Accumulator struct {
	st      state
	lastSeq int64

	constructs   Stack[*constructFrame]
	operators    Stack[*operatorFrame]
	builds       Stack[*ir.BuildScope]
	steps        Stack[*ir.CompositionStep]
	subscribes   Stack[*ir.Subscription]
	unsubscribes Stack[int64]
	emits        Stack[*ir.Emission]
	argcalls     Stack[*ir.ArgumentInvocation]
	tracks       Stack[*trackFrame]
	modules      Stack[*moduleState]

	listeners []*listenerEntry
	pending   []Change
	flushing  bool

	metrics *Metrics
	logger  *slog.Logger
}

type constructFrame struct {
	node *ir.Node
	args []ir.Arg
}

type operatorFrame struct {
	op   *ir.OperatorKind
	args []ir.Arg
}

// trackFrame is an open track scope. Derived frames are pushed for the
// duration of an emission on a tracked Node; key is then the derived key
// and owner the key of the emitting track.
type trackFrame struct {
	key     string
	owner   string
	derived bool
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithMetrics records event and track counters.
func WithMetrics(m *Metrics) Option {
	return func(a *Accumulator) {
		a.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Accumulator) {
		a.logger = l
	}
}

// NewAccumulator returns an Accumulator with an empty store.
func NewAccumulator(opts ...Option) *Accumulator {
	a := &Accumulator{
		st:     newState(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply folds one event into state, then delivers the resulting changes.
func (a *Accumulator) Apply(ev ir.Event) {
	a.apply(ev)
	a.flush()
}

// apply handles one event. When a handler panics, the changes it queued
// are withdrawn and lastSeq stays put, but store mutations made before the
// panic are kept.
func (a *Accumulator) apply(ev ir.Event) {
	mark := len(a.pending)
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("event handler panicked",
				slog.String("event", ev.String()),
				slog.Any("panic", r))
			clear(a.pending[mark:])
			a.pending = a.pending[:mark]
			a.metrics.event(ev.Kind, outcomePanic)
		}
	}()

	if ev.Seq <= a.lastSeq {
		a.logger.Debug("stale event ignored",
			slog.String("event", ev.String()),
			slog.Int64("last_seq", a.lastSeq))
		a.metrics.event(ev.Kind, outcomeStale)
		return
	}

	outcome := a.dispatch(ev)
	a.metrics.event(ev.Kind, outcome)
	if outcome != outcomeApplied {
		a.logger.Debug("event not applied",
			slog.String("event", ev.String()),
			slog.String("outcome", outcome))
		return
	}

	a.lastSeq = ev.Seq
	a.metrics.trackCount(len(a.st.tracks))
	a.publish(Change{Kind: ChangeApplied, Seq: ev.Seq})
}

func (a *Accumulator) dispatch(ev ir.Event) string {
	begin := ev.Phase == ir.PhaseBegin
	if !begin && ev.Phase != ir.PhaseEnd {
		return outcomeIgnored
	}

	switch ev.Kind {
	case ir.KindConstruct:
		if begin {
			return a.constructBegin(ev)
		}
		return a.constructEnd(ev)
	case ir.KindOperator:
		if begin {
			return a.operatorBegin(ev)
		}
		return a.operatorEnd(ev)
	case ir.KindBuild:
		if begin {
			return a.buildBegin(ev)
		}
		return a.buildEnd(ev)
	case ir.KindStep:
		if begin {
			return a.stepBegin(ev)
		}
		return a.stepEnd(ev)
	case ir.KindSubscribe:
		if begin {
			return a.subscribeBegin(ev)
		}
		return a.subscribeEnd(ev)
	case ir.KindUnsubscribe:
		if begin {
			return a.unsubscribeBegin(ev)
		}
		return a.unsubscribeEnd(ev)
	case ir.KindEmit:
		if begin {
			return a.emitBegin(ev)
		}
		return a.emitEnd(ev)
	case ir.KindArgCall:
		if begin {
			return a.argcallBegin(ev)
		}
		return a.argcallEnd(ev)
	case ir.KindTrack:
		if begin {
			return a.trackBegin(ev)
		}
		return a.trackEnd(ev)
	case ir.KindModule:
		if begin {
			return a.moduleBegin(ev)
		}
		return a.moduleEnd(ev)
	default:
		return outcomeIgnored
	}
}

func (a *Accumulator) discarded(kind ir.EventKind, n int) {
	if n == 0 {
		return
	}
	a.logger.Debug("abandoned scopes discarded",
		slog.String("kind", string(kind)),
		slog.Int("count", n))
}

// causalTop returns the seq of the innermost open emission or closure
// call. Build and subscription frames opened before it do not own work done
// inside it.
func (a *Accumulator) causalTop() int64 {
	return max(a.emits.TopID(), a.argcalls.TopID())
}

func (a *Accumulator) moduleName() string {
	_, m, ok := a.modules.Top()
	if !ok {
		return ""
	}
	return m.Name
}

func (a *Accumulator) constructBegin(ev ir.Event) string {
	name := ir.RenderCall(ev.Name, ev.Args)
	node := &ir.Node{
		ID:        ev.Seq,
		Name:      name,
		Shape:     name,
		Module:    a.moduleName(),
		CreatedAt: ev.Seq,
	}

	if stepID, step, ok := a.steps.Top(); ok && stepID > a.causalTop() {
		node.Step = step.ID
		node.Build = step.Build
		if src, ok := a.st.shapeOf(step.Source); ok {
			node.Shape = ir.ChainShape(src, name)
		}
	}

	node.TrackKey = a.attributeTrack(ev.Seq)
	a.constructs.Push(ev.Seq, &constructFrame{node: node, args: ev.Args})
	return outcomeApplied
}

func (a *Accumulator) constructEnd(ev ir.Event) string {
	f, dropped, ok := a.constructs.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindConstruct, dropped)

	f.node.CompletedAt = ev.Seq
	f.node.Impl = ev.Handle
	a.st.nodes[f.node.ID] = f.node
	a.st.addArguments(f.node.ID, f.args)
	return outcomeApplied
}

func (a *Accumulator) operatorBegin(ev ir.Event) string {
	op := &ir.OperatorKind{
		ID:        ev.Seq,
		Name:      ev.Name,
		Rendered:  ir.RenderCall(ev.Name, ev.Args),
		CreatedAt: ev.Seq,
	}
	a.operators.Push(ev.Seq, &operatorFrame{op: op, args: ev.Args})
	return outcomeApplied
}

func (a *Accumulator) operatorEnd(ev ir.Event) string {
	f, dropped, ok := a.operators.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindOperator, dropped)

	f.op.CompletedAt = ev.Seq
	a.st.operators[f.op.ID] = f.op
	a.st.addArguments(f.op.ID, f.args)
	return outcomeApplied
}

func (a *Accumulator) buildBegin(ev ir.Event) string {
	a.builds.Push(ev.Seq, &ir.BuildScope{
		ID:        ev.Seq,
		Origin:    ev.Node,
		Steps:     []int64{},
		CreatedAt: ev.Seq,
	})
	return outcomeApplied
}

func (a *Accumulator) buildEnd(ev ir.Event) string {
	b, dropped, ok := a.builds.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindBuild, dropped)

	b.Output = ev.Node
	b.CompletedAt = ev.Seq
	a.st.builds[b.ID] = b
	for _, id := range b.Steps {
		step, ok := a.st.steps[id]
		if !ok {
			continue
		}
		if n, ok := a.st.nodes[step.Target]; ok {
			n.Output = b.Output
		}
	}
	return outcomeApplied
}

func (a *Accumulator) stepBegin(ev ir.Event) string {
	step := &ir.CompositionStep{
		ID:        ev.Seq,
		Operator:  ev.Operator,
		Source:    ev.Node,
		CreatedAt: ev.Seq,
	}
	if buildID, b, ok := a.builds.Top(); ok && buildID > a.causalTop() {
		step.Build = b.ID
		step.Index = len(b.Steps)
		b.Steps = append(b.Steps, step.ID)
	}
	a.steps.Push(ev.Seq, step)
	return outcomeApplied
}

func (a *Accumulator) stepEnd(ev ir.Event) string {
	step, dropped, ok := a.steps.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindStep, dropped)

	step.Target = ev.Node
	step.CompletedAt = ev.Seq
	a.st.steps[step.ID] = step
	return outcomeApplied
}

// subscribeBegin records the subscription immediately: a synchronous
// source can complete, and so unsubscribe, before the subscribe call
// returns.
func (a *Accumulator) subscribeBegin(ev ir.Event) string {
	sub := &ir.Subscription{
		ID:        ev.Seq,
		Node:      ev.Node,
		Module:    a.moduleName(),
		CreatedAt: ev.Seq,
	}

	emitID, emission, emitting := a.emits.Top()
	if emitting {
		sub.Emission = emitID
	}
	if parentID := a.subscribes.TopID(); emitting && emitID > parentID {
		sub.Parent = emission.Subscription
	} else {
		sub.Parent = parentID
	}

	a.st.subscriptions[sub.ID] = sub
	a.subscribes.Push(ev.Seq, sub)
	return outcomeApplied
}

func (a *Accumulator) subscribeEnd(ev ir.Event) string {
	sub, dropped, ok := a.subscribes.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindSubscribe, dropped)
	sub.CompletedAt = ev.Seq
	return outcomeApplied
}

// unsubscribeBegin stamps the first observed teardown. Repeats, including
// those following a synthesized sweep teardown, keep the first stamp.
func (a *Accumulator) unsubscribeBegin(ev ir.Event) string {
	if sub, ok := a.st.subscriptions[ev.Subscription]; ok && sub.Open() {
		sub.UnsubscribedAt = ev.Seq
	}
	a.unsubscribes.Push(ev.Seq, ev.Subscription)
	return outcomeApplied
}

func (a *Accumulator) unsubscribeEnd(ev ir.Event) string {
	_, dropped, ok := a.unsubscribes.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindUnsubscribe, dropped)
	return outcomeApplied
}

// emitBegin drops emissions on Nodes no live track owns. Otherwise it
// opens the emission and a derived track frame, so pipelines built while
// handling the value are attributed to this track and subscription.
func (a *Accumulator) emitBegin(ev ir.Event) string {
	node, ok := a.st.nodes[ev.Node]
	if !ok || node.TrackKey == "" {
		return outcomeDropped
	}
	if _, ok := a.st.tracks[node.TrackKey]; !ok {
		return outcomeDropped
	}

	emission := &ir.Emission{
		ID:           ev.Seq,
		Node:         ev.Node,
		Subscription: ev.Subscription,
		Signal:       ev.Signal,
		Value:        ev.Value,
		TrackKey:     node.TrackKey,
		CreatedAt:    ev.Seq,
	}
	a.st.emissions[emission.ID] = emission
	a.emits.Push(ev.Seq, emission)
	a.tracks.Push(ev.Seq, &trackFrame{
		key:     ir.DeriveKey(node.TrackKey, ev.Subscription),
		owner:   node.TrackKey,
		derived: true,
	})
	return outcomeApplied
}

func (a *Accumulator) emitEnd(ev ir.Event) string {
	emission, dropped, ok := a.emits.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindEmit, dropped)
	emission.CompletedAt = ev.Seq

	if _, dropped, ok := a.tracks.PopTo(ev.Scope); ok {
		a.discarded(ir.KindTrack, dropped)
	}
	return outcomeApplied
}

func (a *Accumulator) argcallBegin(ev ir.Event) string {
	inv := &ir.ArgumentInvocation{
		ID:        ev.Seq,
		Argument:  ir.ArgRef{Owner: ev.Owner, Position: ev.Position},
		Emission:  a.emits.TopID(),
		CreatedAt: ev.Seq,
	}
	a.argcalls.Push(ev.Seq, inv)
	return outcomeApplied
}

// argcallEnd records the invocation. A closure that built a Node while a
// derived frame was open rebinds that frame's dynamic track to it.
func (a *Accumulator) argcallEnd(ev ir.Event) string {
	inv, dropped, ok := a.argcalls.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindArgCall, dropped)

	inv.Result = ev.Node
	inv.CompletedAt = ev.Seq
	a.st.invocations[inv.ID] = inv

	if inv.Result == 0 {
		return outcomeApplied
	}
	_, frame, ok := a.tracks.Top()
	if !ok || !frame.derived {
		return outcomeApplied
	}
	node, ok := a.st.nodes[inv.Result]
	if !ok || node.TrackKey != frame.key {
		return outcomeApplied
	}
	if t, ok := a.st.tracks[frame.key]; ok {
		a.bind(t, node.ID, node.Impl, ev.Seq)
	}
	return outcomeApplied
}

// LastSeq returns the seq of the last applied event.
func (a *Accumulator) LastSeq() int64 {
	return a.lastSeq
}

// Snapshot returns a copy of the store and track registry.
func (a *Accumulator) Snapshot() ir.Snapshot {
	return a.st.snapshot(a.lastSeq)
}

// Node returns the node with the given id.
func (a *Accumulator) Node(id int64) (ir.Node, bool) {
	n, ok := a.st.nodes[id]
	if !ok {
		return ir.Node{}, false
	}
	return *n, true
}

// OpenScopes reports how many scopes of each kind are open. Derived track
// frames are counted under KindTrack.
func (a *Accumulator) OpenScopes() map[ir.EventKind]int {
	return map[ir.EventKind]int{
		ir.KindConstruct:   a.constructs.Len(),
		ir.KindOperator:    a.operators.Len(),
		ir.KindBuild:       a.builds.Len(),
		ir.KindStep:        a.steps.Len(),
		ir.KindSubscribe:   a.subscribes.Len(),
		ir.KindUnsubscribe: a.unsubscribes.Len(),
		ir.KindEmit:        a.emits.Len(),
		ir.KindArgCall:     a.argcalls.Len(),
		ir.KindTrack:       a.tracks.Len(),
		ir.KindModule:      a.modules.Len(),
	}
}
