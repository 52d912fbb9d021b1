// Package rx is a small push-based stream library that reports its own
// lifecycle as ir events.
//
// Every construction, operator call, pipe, subscription, emission and
// closure invocation is bracketed by a begin/end event pair sent to the
// Runtime's sink. A nil Runtime (or one without a sink) produces plain,
// uninstrumented streams.
//
// Streams are single-threaded: an Observable, its subscriptions and the
// sink must be driven from one goroutine.
package rx
