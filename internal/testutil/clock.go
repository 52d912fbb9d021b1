package testutil

import "sync/atomic"

// Seq is a resettable seq source for tests. It satisfies rx.Clock, so a
// Script and an instrumented Runtime can share one counter and interleave
// their events.
type Seq struct {
	n atomic.Int64
}

// NewSeq returns a Seq whose first Next is start+1.
func NewSeq(start int64) *Seq {
	s := &Seq{}
	s.n.Store(start)
	return s
}

// Next issues the next seq.
func (s *Seq) Next() int64 { return s.n.Add(1) }

// Current is the last issued seq, or the start value.
func (s *Seq) Current() int64 { return s.n.Load() }

// Skip burns n seqs, leaving a gap the way filtered events would.
func (s *Seq) Skip(n int64) { s.n.Add(n) }

// Reset rewinds to zero so a scenario can be rebuilt with identical ids.
func (s *Seq) Reset() { s.n.Store(0) }
