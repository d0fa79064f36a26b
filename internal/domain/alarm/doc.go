// Package alarm contains core domain types for the alarm clock business logic.
//
// It defines Alarm (a scheduled wake-up at minute precision), Site (a physical
// location with a speaker/microphone and its ringing state machine position)
// and the per-site settings the ring controller acts on, with Clone helpers to
// avoid leaking internal references.
package alarm
