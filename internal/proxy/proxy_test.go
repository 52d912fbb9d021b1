package proxy_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamscope/internal/engine"
	"github.com/roach88/streamscope/internal/ir"
	"github.com/roach88/streamscope/internal/proxy"
	"github.com/roach88/streamscope/internal/rx"
)

type recorder struct {
	values    []any
	err       error
	completed bool
}

func (r *recorder) Next(v any)      { r.values = append(r.values, v) }
func (r *recorder) Error(err error) { r.err = err }
func (r *recorder) Complete()       { r.completed = true }

type fixture struct {
	acc *engine.Accumulator
	rt  *rx.Runtime
	reg *proxy.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	acc := engine.NewAccumulator()
	rt := rx.NewRuntime(acc, engine.NewClock())
	reg := proxy.NewRegistry(rt, acc)
	t.Cleanup(reg.Close)
	return &fixture{acc: acc, rt: rt, reg: reg}
}

// coldSubject evaluates module app with track key bound to a fresh
// Subject and returns both.
func (f *fixture) coldSubject(key string) (*proxy.Switcher, *rx.Subject) {
	var sw *proxy.Switcher
	var subj *rx.Subject
	f.rt.Module("app", func() {
		sw = f.reg.Track(key, func() rx.Source {
			subj = f.rt.Subject()
			return subj
		})
	})
	return sw, subj
}

func TestRegistry_StableIdentityAcrossReload(t *testing.T) {
	f := newFixture(t)

	define := func(n int) *proxy.Switcher {
		var sw *proxy.Switcher
		f.rt.Module("app", func() {
			sw = f.reg.Track("t", func() rx.Source { return f.rt.Of(n) })
		})
		return sw
	}

	first := define(1)
	second := define(2)
	assert.Same(t, first, second)
	assert.Equal(t, "t", first.Key())

	tr, ok := f.acc.Track("t")
	require.True(t, ok)
	assert.Equal(t, 1, tr.Version)
	assert.Equal(t, 1, f.reg.Len())
}

func TestSwitcher_SwapTransparency(t *testing.T) {
	f := newFixture(t)

	sw, old := f.coldSubject("t")
	rec := &recorder{}
	sw.Subscribe(rec)

	old.Next("a")
	require.Equal(t, []any{"a"}, rec.values)

	same, current := f.coldSubject("t")
	require.Same(t, sw, same)

	old.Next("stale")
	current.Next("b")

	assert.Equal(t, []any{"a", "b"}, rec.values)
	assert.False(t, rec.completed)
	assert.NoError(t, rec.err)
	assert.Zero(t, old.Observers())
	assert.Equal(t, 1, current.Observers())
	assert.Equal(t, 1, sw.Subscribers())
}

func TestSwitcher_ForwardsTerminalSignals(t *testing.T) {
	f := newFixture(t)

	sw, _ := f.coldSubject("t")
	rec := &recorder{}
	sub := sw.Subscribe(rec)

	_, current := f.coldSubject("t")
	current.Complete()

	assert.True(t, rec.completed)
	assert.True(t, sub.Closed())
	assert.Zero(t, sw.Subscribers())
}

func TestSwitcher_DefersUntilFirstBind(t *testing.T) {
	f := newFixture(t)

	var sw *proxy.Switcher
	f.rt.Module("app", func() {
		sw = f.reg.Track("t", func() rx.Source { return nil })
	})

	rec := &recorder{}
	sw.Subscribe(rec)
	assert.Empty(t, rec.values)
	assert.False(t, rec.completed)

	f.rt.Module("app", func() {
		f.reg.Track("t", func() rx.Source { return f.rt.Of(1, 2) })
	})

	assert.Equal(t, []any{1, 2}, rec.values)
	assert.True(t, rec.completed)
}

func TestSwitcher_UnsubscribeReleasesInner(t *testing.T) {
	f := newFixture(t)

	sw, subj := f.coldSubject("t")
	sub := sw.Subscribe(&recorder{})
	require.Equal(t, 1, subj.Observers())

	sub.Unsubscribe()
	assert.Zero(t, subj.Observers())
	assert.Zero(t, sw.Subscribers())
}

func TestRelay_NoDuplication(t *testing.T) {
	f := newFixture(t)

	var subj *rx.Subject
	var relay *proxy.Relay
	f.rt.Module("app", func() {
		relay = f.reg.TrackSubject("h", func() rx.Source {
			subj = f.rt.Subject()
			return subj
		})
	})

	own, inner := &recorder{}, &recorder{}
	relay.Subscribe(own)
	subj.Subscribe(inner)

	relay.Next(1)
	assert.Equal(t, []any{1}, own.values)
	assert.Equal(t, []any{1}, inner.values)

	subj.Next(2)
	assert.Equal(t, []any{1, 2}, own.values)
	assert.Equal(t, []any{1, 2}, inner.values)
}

func TestRelay_FollowsRebind(t *testing.T) {
	f := newFixture(t)

	define := func() (*proxy.Relay, *rx.Subject) {
		var subj *rx.Subject
		var relay *proxy.Relay
		f.rt.Module("app", func() {
			relay = f.reg.TrackSubject("h", func() rx.Source {
				subj = f.rt.Subject()
				return subj
			})
		})
		return relay, subj
	}

	relay, old := define()
	own := &recorder{}
	relay.Subscribe(own)

	same, current := define()
	require.Same(t, relay, same)

	old.Next("stale")
	currentRec := &recorder{}
	current.Subscribe(currentRec)
	relay.Next("x")
	current.Next("y")

	assert.Equal(t, []any{"x", "y"}, own.values)
	assert.Equal(t, []any{"x", "y"}, currentRec.values)

	relay.Complete()
	assert.True(t, own.completed)
	assert.True(t, current.Done())
}

func TestRegistry_OrphanSweepCompletesProxy(t *testing.T) {
	f := newFixture(t)

	var a, b *proxy.Switcher
	var bSubject *rx.Subject
	f.rt.Module("app", func() {
		a = f.reg.Track("A", func() rx.Source { return f.rt.Subject() })
		b = f.reg.Track("B", func() rx.Source {
			bSubject = f.rt.Subject()
			return bSubject
		})
	})

	rec := &recorder{}
	b.Subscribe(rec)
	bTrack, ok := f.acc.Track("B")
	require.True(t, ok)

	f.rt.Module("app", func() {
		f.reg.Track("A", func() rx.Source { return f.rt.Subject() })
	})

	_, ok = f.acc.Track("B")
	assert.False(t, ok)
	assert.True(t, b.Dropped())
	assert.False(t, a.Dropped())
	assert.True(t, rec.completed)
	assert.Zero(t, bSubject.Observers())
	assert.Equal(t, 1, f.reg.Len())

	snap := f.acc.Snapshot()
	mod, ok := snap.Module("app")
	require.True(t, ok)
	var onB int
	for _, s := range snap.Subscriptions {
		if s.Node != bTrack.Node {
			continue
		}
		onB++
		assert.False(t, s.Open())
		assert.True(t, s.Synthesized)
		assert.Equal(t, mod.CompletedAt, s.UnsubscribedAt)
	}
	assert.Equal(t, 1, onB)

	// Late subscribers to a dropped proxy complete at once.
	late := &recorder{}
	b.Subscribe(late)
	assert.True(t, late.completed)
}

func TestRegistry_TrackFunc(t *testing.T) {
	f := newFixture(t)

	stream := f.reg.TrackFunc("f", func(args ...any) rx.Source {
		return f.rt.Of(args...)
	})

	first := stream(1)
	second := stream(2)
	require.Same(t, first, second)

	rec := &recorder{}
	second.Subscribe(rec)
	assert.Equal(t, []any{2}, rec.values)

	tr, ok := f.acc.Track("f")
	require.True(t, ok)
	assert.Equal(t, 1, tr.Version)
	assert.True(t, tr.Structural)
}

func TestRegistry_KindChangeReplacesProxy(t *testing.T) {
	f := newFixture(t)

	sw, _ := f.coldSubject("k")
	rec := &recorder{}
	sw.Subscribe(rec)

	var relay *proxy.Relay
	f.rt.Module("app", func() {
		relay = f.reg.TrackSubject("k", func() rx.Source { return f.rt.Subject() })
	})

	require.NotNil(t, relay)
	assert.True(t, sw.Dropped())
	assert.True(t, rec.completed)

	tr, ok := f.acc.Track("k")
	require.True(t, ok)
	assert.Equal(t, ir.TrackHot, tr.Kind)
}

func TestRegistry_Uninstrumented(t *testing.T) {
	reg := proxy.NewRegistry(nil, nil)

	var rt *rx.Runtime
	sw := reg.Track("t", func() rx.Source { return rt.Of("a") })
	rec := &recorder{}
	sw.Subscribe(rec)
	assert.Equal(t, []any{"a"}, rec.values)

	assert.Same(t, sw, reg.Track("t", func() rx.Source { return rt.Of("b") }))
	assert.Equal(t, "t", sw.Key())
}

func double(v any) any { return v.(int) * 2 }

func TestRegistry_ComposesOnTrackedStream(t *testing.T) {
	f := newFixture(t)

	var a, b, c *proxy.Switcher
	var subj *rx.Subject
	f.rt.Module("app", func() {
		a = f.reg.Track("a", func() rx.Source {
			subj = f.rt.Subject()
			return subj
		})
		b = f.reg.Track("b", func() rx.Source { return a.Observable().Pipe(f.rt.Map(double)) })
		c = f.reg.Track("c", func() rx.Source { return a })
	})

	piped, direct := &recorder{}, &recorder{}
	b.Subscribe(piped)
	c.Subscribe(direct)
	subj.Next(2)

	assert.Equal(t, []any{4}, piped.values)
	assert.Equal(t, []any{2}, direct.values)

	tb, ok := f.acc.Track("b")
	require.True(t, ok)
	require.NotZero(t, tb.Node)
	node, ok := f.acc.Node(tb.Node)
	require.True(t, ok)
	assert.Equal(t, `track("a").map(fn)`, node.Shape)
	assert.NotZero(t, node.Step, "the map stage is recorded as a composition step")

	tc, ok := f.acc.Track("c")
	require.True(t, ok)
	assert.Equal(t, a.ID(), tc.Node)
}

func TestRegistry_BindsSourceWithoutNode(t *testing.T) {
	f := newFixture(t)

	var sw *proxy.Switcher
	f.rt.Module("app", func() {
		sw = f.reg.Track("plain", func() rx.Source {
			return rx.New(func(obs rx.Observer) func() {
				obs.Next("v")
				return nil
			})
		})
	})

	rec := &recorder{}
	sw.Subscribe(rec)
	assert.Equal(t, []any{"v"}, rec.values)
}

func TestRelay_ErrorReachesInnerThenChannel(t *testing.T) {
	f := newFixture(t)

	var subj *rx.Subject
	var relay *proxy.Relay
	f.rt.Module("app", func() {
		relay = f.reg.TrackSubject("h", func() rx.Source {
			subj = f.rt.Subject()
			return subj
		})
	})

	var order []string
	subj.Subscribe(rx.ObserverFuncs{OnError: func(error) { order = append(order, "inner") }})
	relay.Subscribe(rx.ObserverFuncs{OnError: func(error) { order = append(order, "own") }})

	boom := errors.New("boom")
	relay.Error(boom)

	assert.Equal(t, []string{"inner", "own"}, order, "one error per side, no echo")
	assert.True(t, subj.Done())
}

func TestRelay_CompletesWhenSwept(t *testing.T) {
	f := newFixture(t)

	var subj *rx.Subject
	var relay *proxy.Relay
	f.rt.Module("app", func() {
		relay = f.reg.TrackSubject("h", func() rx.Source {
			subj = f.rt.Subject()
			return subj
		})
		f.reg.Track("keep", func() rx.Source { return f.rt.Subject() })
	})

	own := &recorder{}
	relay.Subscribe(own)
	require.Equal(t, 1, subj.Observers())

	f.rt.Module("app", func() {
		f.reg.Track("keep", func() rx.Source { return f.rt.Subject() })
	})

	_, ok := f.acc.Track("h")
	assert.False(t, ok)
	assert.True(t, relay.Dropped())
	assert.True(t, own.completed)
	assert.Zero(t, subj.Observers())
	assert.Equal(t, 1, f.reg.Len())

	subj.Next("late")
	assert.Empty(t, own.values)
}
