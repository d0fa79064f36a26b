package engine

import "context"

// Event is the tagged union of inbound notification events the engine
// consumes. One dispatcher loop feeds these into the per-site ring
// controller, so handlers never race each other for the same site.
type Event interface {
	// Site returns the site identifier the event belongs to.
	Site() string
}

// PlaybackFinished reports that the audio server finished playing a sound.
type PlaybackFinished struct {
	// SiteID is the site the sound was played on.
	SiteID string
	// Token identifies the playback request that finished.
	Token string
}

// Site returns the site identifier the event belongs to.
func (e PlaybackFinished) Site() string { return e.SiteID }

// HotwordDetected reports that the wake word was heard on a site.
type HotwordDetected struct {
	// SiteID is the site the hotword was detected on.
	SiteID string
}

// Site returns the site identifier the event belongs to.
func (e HotwordDetected) Site() string { return e.SiteID }

// SessionStarted reports that the dialogue manager opened a session.
type SessionStarted struct {
	// SiteID is the site the session belongs to.
	SiteID string
	// SessionID identifies the dialogue session.
	SessionID string
}

// Site returns the site identifier the event belongs to.
func (e SessionStarted) Site() string { return e.SiteID }

// SessionEnded reports that a dialogue session terminated.
type SessionEnded struct {
	// SiteID is the site the session belonged to.
	SiteID string
	// SessionID identifies the dialogue session.
	SessionID string
	// Reason is the termination reason reported by the dialogue manager.
	Reason string
}

// Site returns the site identifier the event belongs to.
func (e SessionEnded) Site() string { return e.SiteID }

// Nominal reports whether the session terminated normally.
func (e SessionEnded) Nominal() bool { return e.Reason == TerminationNominal }

// TerminationNominal is the dialogue manager's reason for a normally ended session.
const TerminationNominal = "nominal"

// Gateway is the notification collaborator the ring controller drives.
// Calls are fire-and-forget requests; replies arrive later as Events.
type Gateway interface {
	// PlaySound requests playback of a sound file on a site and returns a
	// token identifying the request.
	PlaySound(ctx context.Context, siteID, resource string, volumePercent int) (string, error)
	// StartSession opens a dialogue session on a site with the given prompt.
	StartSession(ctx context.Context, siteID, text string) error
	// EndSession terminates a dialogue session, optionally speaking text.
	EndSession(ctx context.Context, sessionID, text string) error
}
