// Package proxy provides the stable stream objects that subscriber code
// holds across live reloads.
//
// A Registry hands out exactly one proxy per effective track key. Cold
// tracks get a Switcher, which moves its subscribers from one bound Node
// to the next without letting them see the swap. Hot tracks get a Relay,
// which owns a multicast channel and mirrors it onto whichever Subject is
// currently bound. Both follow the Track Registry through the change
// notifications of the Accumulator, and both complete when an orphan sweep
// drops their track.
package proxy
