package engine

import (
	"cmp"
	"maps"
	"slices"

	"github.com/roach88/streamscope/internal/ir"
)

// state is the relational store: one map per entity kind, keyed by id.
// Records are only ever added or updated in place; tracks are the one kind
// an orphan sweep may delete.
type state struct {
	nodes         map[int64]*ir.Node
	operators     map[int64]*ir.OperatorKind
	builds        map[int64]*ir.BuildScope
	steps         map[int64]*ir.CompositionStep
	subscriptions map[int64]*ir.Subscription
	emissions     map[int64]*ir.Emission
	arguments     map[ir.ArgRef]*ir.Argument
	invocations   map[int64]*ir.ArgumentInvocation
	tracks        map[string]*ir.Track
	modules       map[string]*moduleState
}

// moduleState carries the key sets as sets; ir.Module exposes them sorted.
type moduleState struct {
	ir.Module
	previous map[string]bool
	touched  map[string]bool
}

func newState() state {
	return state{
		nodes:         make(map[int64]*ir.Node),
		operators:     make(map[int64]*ir.OperatorKind),
		builds:        make(map[int64]*ir.BuildScope),
		steps:         make(map[int64]*ir.CompositionStep),
		subscriptions: make(map[int64]*ir.Subscription),
		emissions:     make(map[int64]*ir.Emission),
		arguments:     make(map[ir.ArgRef]*ir.Argument),
		invocations:   make(map[int64]*ir.ArgumentInvocation),
		tracks:        make(map[string]*ir.Track),
		modules:       make(map[string]*moduleState),
	}
}

func (s *state) addArguments(owner int64, args []ir.Arg) {
	for i, a := range args {
		ref := ir.ArgRef{Owner: owner, Position: i}
		s.arguments[ref] = &ir.Argument{ArgRef: ref, Kind: a.Kind, Text: a.Text}
	}
}

func (s *state) shapeOf(id int64) (string, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return "", false
	}
	return n.Shape, true
}

func copyTrack(t *ir.Track) ir.Track {
	c := *t
	c.History = slices.Clone(t.History)
	if c.History == nil {
		c.History = []int64{}
	}
	return c
}

func (m *moduleState) snapshot() ir.Module {
	out := m.Module
	out.Previous = slices.Sorted(maps.Keys(m.previous))
	out.Touched = slices.Sorted(maps.Keys(m.touched))
	if out.Previous == nil {
		out.Previous = []string{}
	}
	if out.Touched == nil {
		out.Touched = []string{}
	}
	return out
}

// sortedValues copies the records of m in ascending key order.
func sortedValues[K int64 | string, V any](m map[K]*V) []V {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, *m[k])
	}
	return out
}

func (s *state) snapshot(seq int64) ir.Snapshot {
	snap := ir.Snapshot{
		Seq:           seq,
		Nodes:         sortedValues(s.nodes),
		Operators:     sortedValues(s.operators),
		Builds:        sortedValues(s.builds),
		Steps:         sortedValues(s.steps),
		Subscriptions: sortedValues(s.subscriptions),
		Emissions:     sortedValues(s.emissions),
		Invocations:   sortedValues(s.invocations),
	}
	for i := range snap.Builds {
		snap.Builds[i].Steps = slices.Clone(snap.Builds[i].Steps)
		if snap.Builds[i].Steps == nil {
			snap.Builds[i].Steps = []int64{}
		}
	}

	snap.Arguments = make([]ir.Argument, 0, len(s.arguments))
	for _, a := range s.arguments {
		snap.Arguments = append(snap.Arguments, *a)
	}
	slices.SortFunc(snap.Arguments, func(a, b ir.Argument) int {
		if a.Owner != b.Owner {
			return cmp.Compare(a.Owner, b.Owner)
		}
		return a.Position - b.Position
	})

	snap.Tracks = make([]ir.Track, 0, len(s.tracks))
	for _, k := range slices.Sorted(maps.Keys(s.tracks)) {
		snap.Tracks = append(snap.Tracks, copyTrack(s.tracks[k]))
	}

	snap.Modules = make([]ir.Module, 0, len(s.modules))
	for _, k := range slices.Sorted(maps.Keys(s.modules)) {
		snap.Modules = append(snap.Modules, s.modules[k].snapshot())
	}
	return snap
}
