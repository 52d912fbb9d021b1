package ir

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EventKind tags which lifecycle action an event describes.
type EventKind string

const (
	KindConstruct   EventKind = "construct"   // a source or stage Node is created
	KindOperator    EventKind = "operator"    // an operator factory is called with its arguments
	KindBuild       EventKind = "build"       // a chain of steps is assembled (pipe)
	KindStep        EventKind = "step"        // one stage inside a build
	KindSubscribe   EventKind = "subscribe"   // a subscriber attaches to a Node
	KindUnsubscribe EventKind = "unsubscribe" // a subscription is torn down
	KindEmit        EventKind = "emit"        // a next/error/complete signal passes a subscription
	KindArgCall     EventKind = "argcall"     // a captured closure argument runs
	KindTrack       EventKind = "track"       // a stable-key scope is entered/exited
	KindModule      EventKind = "module"      // a reloadable unit is (re-)evaluated
)

var knownKinds = map[EventKind]bool{
	KindConstruct: true, KindOperator: true, KindBuild: true, KindStep: true,
	KindSubscribe: true, KindUnsubscribe: true, KindEmit: true,
	KindArgCall: true, KindTrack: true, KindModule: true,
}

// Known reports whether k is one of the defined kinds.
func (k EventKind) Known() bool {
	return knownKinds[k]
}

// Phase distinguishes the opening and closing event of a pair.
type Phase string

const (
	PhaseBegin Phase = "begin"
	PhaseEnd   Phase = "end"
)

// Signal is the kind of notification an emission carries.
type Signal string

const (
	SignalNext     Signal = "next"
	SignalError    Signal = "error"
	SignalComplete Signal = "complete"
)

// Terminal reports whether the signal ends a subscription.
func (s Signal) Terminal() bool {
	return s == SignalError || s == SignalComplete
}

// TrackKind selects the proxy flavour for a track.
type TrackKind string

const (
	TrackCold TrackKind = "cold"
	TrackHot  TrackKind = "hot"
)

// Handle is a reference to a live implementation object.
// Resolve returns false once the referent is gone. Handles never travel in
// serialized events or snapshots.
type Handle interface {
	Resolve() (any, bool)
}

// Event is one half of a begin/end pair.
//
// Begin events carry the facts known when the action starts; end events
// carry Scope (the Seq of their begin) plus facts known only at completion.
// Which payload fields are meaningful depends on Kind and Phase:
//
//	construct begin:    Name, Args
//	construct end:      Handle (weak reference to the created object)
//	operator begin:     Name, Args
//	build begin:        Node (origin)
//	build end:          Node (output)
//	step begin:         Operator, Node (source)
//	step end:           Node (target)
//	subscribe begin:    Node (target)
//	unsubscribe begin:  Subscription
//	emit begin:         Node, Subscription, Signal, Value
//	argcall begin:      Owner, Position
//	argcall end:        Node (result, 0 when the closure built nothing)
//	track begin:        Key, TrackKind
//	track end:          Node (resolved), Handle (strong reference)
//	module begin:       Module
//
// Parents (subscription, build, step, track, module) are never carried on
// the event; they come from the scopes open when it is applied.
type Event struct {
	Seq   int64     `json:"seq" yaml:"seq"`
	Kind  EventKind `json:"kind" yaml:"kind"`
	Phase Phase     `json:"phase" yaml:"phase"`
	Scope int64     `json:"scope,omitempty" yaml:"scope,omitempty"`

	Name         string    `json:"name,omitempty" yaml:"name,omitempty"`
	Args         []Arg     `json:"args,omitempty" yaml:"args,omitempty"`
	Node         int64     `json:"node,omitempty" yaml:"node,omitempty"`
	Operator     int64     `json:"operator,omitempty" yaml:"operator,omitempty"`
	Subscription int64     `json:"subscription,omitempty" yaml:"subscription,omitempty"`
	Owner        int64     `json:"owner,omitempty" yaml:"owner,omitempty"`
	Position     int       `json:"position,omitempty" yaml:"position,omitempty"`
	Signal       Signal    `json:"signal,omitempty" yaml:"signal,omitempty"`
	Value        string    `json:"value,omitempty" yaml:"value,omitempty"`
	Key          string    `json:"key,omitempty" yaml:"key,omitempty"`
	TrackKind    TrackKind `json:"track_kind,omitempty" yaml:"track_kind,omitempty"`
	Module       string    `json:"module,omitempty" yaml:"module,omitempty"`

	Handle Handle `json:"-" yaml:"-"`
}

// Begin reports whether e opens a scope.
func (e Event) Begin() bool {
	return e.Phase == PhaseBegin
}

// String renders a short description for logs.
func (e Event) String() string {
	if e.Phase == PhaseEnd {
		return fmt.Sprintf("#%d %s/end scope=%d", e.Seq, e.Kind, e.Scope)
	}
	return fmt.Sprintf("#%d %s/begin", e.Seq, e.Kind)
}

// Validate checks the envelope of an event received from outside the
// process. The accumulator itself never rejects events; it ignores them.
func (e Event) Validate() error {
	if e.Seq < 0 {
		return fmt.Errorf("seq must not be negative: %d", e.Seq)
	}
	if !e.Kind.Known() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	switch e.Phase {
	case PhaseBegin:
	case PhaseEnd:
		if e.Scope <= 0 {
			return fmt.Errorf("%s end event requires scope", e.Kind)
		}
	default:
		return fmt.Errorf("unknown phase %q", e.Phase)
	}
	if e.Kind == KindTrack && e.Phase == PhaseBegin && e.Key == "" {
		return fmt.Errorf("track begin requires key")
	}
	if e.Kind == KindModule && e.Phase == PhaseBegin && e.Module == "" {
		return fmt.Errorf("module begin requires module name")
	}
	return nil
}

// maxEventLine bounds one JSON line in an event log.
const maxEventLine = 4 << 20

// DecodeEvents reads an event log with one JSON object per line.
// Blank lines are skipped.
func DecodeEvents(r io.Reader) ([]Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var events []Event
	line := 0
	for sc.Scan() {
		line++
		data := sc.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// EventWriter encodes events as JSON lines. It satisfies the sink interface
// used by instrumented code, so a live pipeline can be recorded and replayed.
// The first write error is kept and later events are discarded.
type EventWriter struct {
	enc *json.Encoder
	err error
}

// NewEventWriter returns an EventWriter that writes to w.
func NewEventWriter(w io.Writer) *EventWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &EventWriter{enc: enc}
}

// Apply writes one event.
func (w *EventWriter) Apply(ev Event) {
	if w.err != nil {
		return
	}
	if err := w.enc.Encode(ev); err != nil {
		w.err = fmt.Errorf("write event %d: %w", ev.Seq, err)
	}
}

// Err returns the first write error, if any.
func (w *EventWriter) Err() error {
	return w.err
}
