// Package engine implements the alarm scheduling and ringing engine: the
// authoritative alarm store with snapshot persistence, the clock loop that
// fires alarms at their scheduled minute, and the per-site ringing state
// machine (ring, repeat, hotword stop, timeout, snooze dialog).
//
// The engine consumes notification events as a typed union (see Event) and
// produces effects only through the Gateway interface and the store, so it
// can be exercised end to end with in-memory fakes.
package engine
