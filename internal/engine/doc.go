// Package engine folds instrumentation events into a relational snapshot
// of a live stream graph.
//
// ARCHITECTURE:
//
// Accumulator:
// The single state-transition function. Each event pushes or pops a frame
// on the context stack of its kind; begin events allocate records and end
// events complete them. Parents (subscription, build, step, track,
// module) are read off the stacks, never off the event.
//
// Track Registry:
// Tracks are keyed by stable source keys. A track-end with a new Node is
// a rebind: history grows, version increments, and comparing the old and
// new shapes classifies the change as structural or cosmetic.
//
// Orphan Sweep:
// Module end diffs the keys the previous version touched against the
// keys this version touched and deletes the difference.
//
// Notifications:
// Changes are queued while an event is applied and delivered afterwards in
// FIFO order. Listeners may call Apply again; their changes join the queue.
//
// Engine:
// Wraps an Accumulator in a single-writer Run loop for goroutine-safe
// ingestion, the way a server feeds it.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every event carries a seq from Clock.Next(). Entity ids and timestamps
// are seqs. NEVER use wall-clock timestamps for ordering.
//
// Resilience:
// Apply never fails. Stale, unknown and unmatched events are ignored and
// counted; the tool must stay usable when the instrumented code misbehaves.
package engine
