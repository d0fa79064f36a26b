package alarm

import "time"

// RingState is the ringing state machine position of a site.
type RingState int

const (
	// StateIdle means no alarm is ringing on the site.
	StateIdle RingState = iota
	// StateRinging means the ringtone is actively being (re)played.
	StateRinging
	// StateAwaitingSnoozeAnswer means ringing was stopped by a hotword and
	// the site waits for the user's snooze answer.
	StateAwaitingSnoozeAnswer
)

// String returns a human-readable state name for logging.
func (s RingState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRinging:
		return "ringing"
	case StateAwaitingSnoozeAnswer:
		return "awaiting_snooze_answer"
	default:
		return "unknown"
	}
}

// SiteSettings holds the per-site configuration the ring controller acts on.
type SiteSettings struct {
	// RingingTimeout is how long an alarm rings before it counts as missed.
	RingingTimeout time.Duration
	// RingtoneResource is the path of the ringtone sound file.
	RingtoneResource string
	// RingingVolume is the playback volume in percent (0-100).
	RingingVolume int
	// SnoozeEnabled controls whether a hotword stop offers a snooze dialog.
	SnoozeEnabled bool
	// SnoozeDefaultMinutes is the snooze duration used when the user names none.
	SnoozeDefaultMinutes int
	// SnoozeMaxMinutes caps user-requested snooze durations.
	SnoozeMaxMinutes int
}

// Site is a physical location with its own speaker and microphone.
type Site struct {
	// ID is the stable site identifier used on the wire.
	ID string
	// Settings are the per-site ringing and snooze settings.
	Settings SiteSettings
	// RingState is the current position in the ringing state machine.
	RingState RingState
	// CurrentAlarm is the alarm currently ringing or awaiting a snooze
	// answer on this site, nil when idle.
	CurrentAlarm *Alarm
	// SessionPending marks that a dialogue session outcome is awaited for
	// this site (snooze prompt or end-of-alarm announcement).
	SessionPending bool
}

// NewSite creates an idle site with the given settings.
func NewSite(id string, settings SiteSettings) *Site {
	return &Site{
		ID:       id,
		Settings: settings,
	}
}

// Clone returns a copy of the site, deep-copying the current alarm.
func (s *Site) Clone() *Site {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.CurrentAlarm = s.CurrentAlarm.Clone()

	return &cloned
}
