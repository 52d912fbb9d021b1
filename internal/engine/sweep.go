package engine

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/streamscope/internal/ir"
)

// moduleBegin starts a new version of the module. Keys are collected into
// touched until the matching module end runs the sweep.
func (a *Accumulator) moduleBegin(ev ir.Event) string {
	m, ok := a.st.modules[ev.Module]
	if !ok {
		m = &moduleState{
			Module:   ir.Module{Name: ev.Module, CreatedAt: ev.Seq},
			previous: map[string]bool{},
		}
		a.st.modules[ev.Module] = m
	}
	m.Version++
	m.ReloadedAt = ev.Seq
	m.CompletedAt = 0
	m.touched = map[string]bool{}

	a.modules.Push(ev.Seq, m)
	return outcomeApplied
}

func (a *Accumulator) moduleEnd(ev ir.Event) string {
	m, dropped, ok := a.modules.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindModule, dropped)

	touched := len(m.touched)
	swept := a.sweep(m, ev.Seq)
	m.CompletedAt = ev.Seq

	a.logger.Info("module reloaded",
		slog.String("module", m.Name),
		slog.Int("version", m.Version),
		slog.Int("touched", touched),
		slog.Int("dropped", len(swept)))
	return outcomeApplied
}

// sweep deletes the tracks the previous version touched and this one did
// not, then promotes touched to previous. It runs once per module end.
func (a *Accumulator) sweep(m *moduleState, seq int64) []string {
	var dropped []string
	for key := range m.previous {
		if m.touched[key] {
			continue
		}
		t, ok := a.st.tracks[key]
		if !ok || t.Module != m.Name {
			continue
		}
		dropped = append(dropped, key)
	}
	slices.Sort(dropped)

	var swept []string
	for _, key := range dropped {
		swept = append(swept, a.dropTrack(key, m.Name, seq)...)
	}

	m.previous = m.touched
	m.touched = map[string]bool{}
	a.metrics.sweep(len(swept))
	return swept
}

// dropTrack deletes key and the dynamic tracks derived from it. Open
// subscriptions on the track's Nodes, and those nested under them, are
// marked unsubscribed at seq as synthesized teardowns. A ChangeDropped is
// published per deleted key so proxies complete.
func (a *Accumulator) dropTrack(key, module string, seq int64) []string {
	t, ok := a.st.tracks[key]
	if !ok {
		return nil
	}

	var swept []string
	for _, child := range slices.Sorted(maps.Keys(a.st.tracks)) {
		if c := a.st.tracks[child]; c.Dynamic && c.Parent == key {
			swept = append(swept, a.dropTrack(child, module, seq)...)
		}
	}

	nodes := map[int64]bool{}
	if t.Node != 0 {
		nodes[t.Node] = true
	}
	for _, id := range t.History {
		nodes[id] = true
	}
	for id, n := range a.st.nodes {
		if n.TrackKey == key {
			nodes[id] = true
		}
	}

	closed := map[int64]bool{}
	for _, id := range slices.Sorted(maps.Keys(a.st.subscriptions)) {
		sub := a.st.subscriptions[id]
		if !sub.Open() {
			continue
		}
		if !closed[sub.Parent] && !(nodes[sub.Node] && ownedBy(sub, module)) {
			continue
		}
		sub.UnsubscribedAt = seq
		sub.Synthesized = true
		closed[id] = true
	}

	delete(a.st.tracks, key)
	a.logger.Debug("track dropped",
		slog.String("key", key),
		slog.String("module", module),
		slog.Int("subscriptions_closed", len(closed)))
	a.publish(Change{Kind: ChangeDropped, Seq: seq, Key: key, Node: t.Node, Version: t.Version})
	return append(swept, key)
}

// ownedBy reports whether module may tear down sub. Subscriptions opened
// while another module evaluated belong to that module.
func ownedBy(sub *ir.Subscription, module string) bool {
	return sub.Module == "" || sub.Module == module
}
