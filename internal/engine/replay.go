package engine

import (
	"fmt"
	"io"

	"github.com/roach88/streamscope/internal/ir"
)

// Replay applies a recorded event log to a fresh Accumulator.
//
// Replay and live ingestion share the same Apply path. Because events
// carry their own seqs and the accumulator never consults wall time,
// replaying a log reproduces the snapshot the live run ended with, minus
// the live handles, which are never recorded.
func Replay(events []ir.Event, opts ...Option) *Accumulator {
	acc := NewAccumulator(opts...)
	for _, ev := range events {
		acc.Apply(ev)
	}
	return acc
}

// ReplayReader decodes a JSON-lines log from r and replays it.
func ReplayReader(r io.Reader, opts ...Option) (*Accumulator, error) {
	events, err := ir.DecodeEvents(r)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return Replay(events, opts...), nil
}
