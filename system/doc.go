// Package system provides the single-threaded event and timer layer that
// drives every endpoint in this module.
//
// A Layer owns a queue of posted events and a set of one-shot timers.
// Service performs one cooperative pass: it waits (bounded by the caller's
// timeout) for something to become ready, dispatches the events queued at
// the start of the pass, then fires any timers whose deadline has elapsed.
// All dispatch happens on the goroutine calling Service, so callbacks never
// run concurrently with each other or with the caller.
//
// Transport goroutines hand work to the layer with PostEvent; events posted
// from inside a callback are deferred to a later pass, which makes
// re-entrant scheduling safe.
package system
