package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/streamscope/internal/engine"
	"github.com/roach88/streamscope/internal/ir"
	"github.com/roach88/streamscope/internal/testutil"
)

// createTestStore creates a new store in a temporary directory with a
// fixed wall clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	calls := 0
	s.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// reloadSnapshot returns the snapshot after track "t" was bound to
// source.map(fn), rebound to source.map(fn).filter(fn), and "gone" was
// dropped by the second reload. One subscription on "t" stays open.
func reloadSnapshot(t *testing.T) ir.Snapshot {
	t.Helper()
	acc := engine.NewAccumulator()
	s := testutil.NewScript(acc)

	pipeline := func(extra ...string) int64 {
		src := s.Construct("source")
		ops := []int64{s.Operator("map", ir.Closure())}
		for _, name := range extra {
			ops = append(ops, s.Operator(name, ir.Closure()))
		}
		return s.Pipe(src, ops...)
	}

	s.Module("app", func() {
		s.Track("t", ir.TrackCold, func() int64 { return pipeline() })
		s.Track("gone", ir.TrackHot, func() int64 { return s.Construct("subject") })
	})
	s.Module("app", func() {
		s.Track("t", ir.TrackCold, func() int64 { return pipeline("filter") })
	})

	tr, ok := acc.Track("t")
	if !ok {
		t.Fatal("track t missing")
	}
	s.Subscribe(tr.Node, func(sub int64) {
		s.Signal(tr.Node, sub, ir.SignalNext, "1", nil)
	})
	return acc.Snapshot()
}
