package engine

import (
	"log/slog"

	"github.com/roach88/streamscope/internal/ir"
)

// attributeTrack returns the key of the track that owns a Node constructed
// at seq, creating the dynamic track for a derived frame on first use.
func (a *Accumulator) attributeTrack(seq int64) string {
	_, frame, ok := a.tracks.Top()
	if !ok {
		return ""
	}
	if frame.derived {
		a.ensureDynamic(frame, seq)
	}
	return frame.key
}

func (a *Accumulator) ensureDynamic(frame *trackFrame, seq int64) *ir.Track {
	if t, ok := a.st.tracks[frame.key]; ok {
		return t
	}
	t := &ir.Track{
		Key:       frame.key,
		Kind:      ir.TrackCold,
		History:   []int64{},
		Parent:    frame.owner,
		Dynamic:   true,
		CreatedAt: seq,
	}
	if owner, ok := a.st.tracks[frame.owner]; ok {
		t.Module = owner.Module
		t.ModuleVersion = owner.ModuleVersion
	}
	a.st.tracks[t.Key] = t
	return t
}

// trackBegin inserts or re-touches the track at once so that lookups made
// inside the scope find it. Keys opened inside a derived frame are
// qualified with the derived key and are dynamic.
func (a *Accumulator) trackBegin(ev ir.Event) string {
	key := ev.Key
	parent := ""
	dynamic := false
	if _, frame, ok := a.tracks.Top(); ok {
		parent = frame.key
		if frame.derived {
			key = ir.NestKey(frame.key, key)
			dynamic = true
			a.ensureDynamic(frame, ev.Seq)
		}
	}

	t, exists := a.st.tracks[key]
	if !exists {
		kind := ev.TrackKind
		if kind == "" {
			kind = ir.TrackCold
		}
		t = &ir.Track{
			Key:       key,
			Kind:      kind,
			History:   []int64{},
			CreatedAt: ev.Seq,
		}
		a.st.tracks[key] = t
	} else if ev.TrackKind != "" {
		// The call site may have switched between cold and hot.
		t.Kind = ev.TrackKind
	}
	t.Parent = parent
	t.Dynamic = dynamic

	if _, m, ok := a.modules.Top(); ok {
		t.Module = m.Name
		t.ModuleVersion = m.Version
		if !dynamic {
			m.touched[key] = true
		}
	}

	a.tracks.Push(ev.Seq, &trackFrame{key: key})
	return outcomeApplied
}

func (a *Accumulator) trackEnd(ev ir.Event) string {
	frame, dropped, ok := a.tracks.PopTo(ev.Scope)
	if !ok {
		return outcomeIgnored
	}
	a.discarded(ir.KindTrack, dropped)

	t, ok := a.st.tracks[frame.key]
	if !ok || ev.Node == 0 {
		return outcomeApplied
	}
	a.bind(t, ev.Node, ev.Handle, ev.Seq)
	return outcomeApplied
}

// bind points t at node. The first bind keeps version 0. Binding a
// different Node later is a rebind: the old id goes to history, the
// version increments once, and the shapes decide structural vs cosmetic.
func (a *Accumulator) bind(t *ir.Track, node int64, live ir.Handle, seq int64) {
	if t.Node == node {
		if live != nil {
			t.Live = live
		}
		return
	}

	if t.Node == 0 {
		t.Node = node
		t.Live = live
		t.BoundAt = seq
		a.publish(Change{Kind: ChangeBound, Seq: seq, Key: t.Key, Node: node, Version: t.Version, Live: live})
		return
	}

	oldShape, oldOK := a.st.shapeOf(t.Node)
	newShape, newOK := a.st.shapeOf(node)

	t.History = append(t.History, t.Node)
	t.Version++
	t.Structural = !oldOK || !newOK || oldShape != newShape
	t.Node = node
	t.Live = live
	t.BoundAt = seq

	a.metrics.rebind(t.Structural)
	a.logger.Debug("track rebound",
		slog.String("key", t.Key),
		slog.Int("version", t.Version),
		slog.Bool("structural", t.Structural),
		slog.String("shape", newShape))
	a.publish(Change{
		Kind:       ChangeRebound,
		Seq:        seq,
		Key:        t.Key,
		Node:       node,
		Version:    t.Version,
		Structural: t.Structural,
		Live:       live,
	})
}

// Track returns a copy of the track registered under key.
func (a *Accumulator) Track(key string) (ir.Track, bool) {
	t, ok := a.st.tracks[key]
	if !ok {
		return ir.Track{}, false
	}
	return copyTrack(t), true
}

// OpenTrack returns the track of the innermost open track scope. Proxies
// use it to learn the effective key of the scope they were created in.
func (a *Accumulator) OpenTrack() (ir.Track, bool) {
	_, frame, ok := a.tracks.Top()
	if !ok {
		return ir.Track{}, false
	}
	return a.Track(frame.key)
}
