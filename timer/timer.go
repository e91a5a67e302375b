// Package timer provides the Clock & Timer Service named as an
// external collaborator in spec §2: monotonic ticks, and one-shot
// timers with expired/restart semantics (§3, §5). Two implementations
// are provided: Realtime, backed by the standard library clock, for the binaries in
// cmd/; and a Virtual clock for deterministic tests that would
// otherwise need to sleep out §6's TIME_OUT/DATA_TIME constants.
package timer

import "time"

// Timer is a one-shot timer with expired/restart semantics, matching
// the Contiki `struct timer` this protocol was originally built on
// (spec §3 "NeighborEntry", §4.1 "parent_timer").
type Timer interface {
	// Restart (re)starts the timer for its configured duration, as if
	// freshly set. Restarting an expired or running timer both reset it.
	Restart()
	// Expired reports whether the timer's duration has elapsed since it
	// was last (re)started.
	Expired() bool
}

// Clock creates timers and reports the current time, insulating the
// rest of the system from wall-clock vs. virtual time.
type Clock interface {
	Now() time.Time
	// NewTimer returns a Timer already running for d.
	NewTimer(d time.Duration) Timer
	// After returns a channel that receives once after d elapses — the
	// jittered periodic tick wait point named in spec §5.
	After(d time.Duration) <-chan time.Time
}
