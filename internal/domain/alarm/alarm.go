package alarm

import (
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the minute-precision layout used for spoken alarm times and
// for the snapshot file on disk.
const TimeLayout = "2006-01-02 15:04"

// Kind distinguishes regular wake-up alarms from alert alarms.
type Kind string

const (
	// KindNormal is a regular wake-up alarm.
	KindNormal Kind = "normal"
	// KindAlert is an alert alarm (e.g. a timer or reminder chime).
	KindAlert Kind = "alert"
)

// ParseKind converts a string into a Kind, reporting whether it is known.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindNormal, KindAlert:
		return Kind(s), true
	default:
		return KindNormal, false
	}
}

// Alarm is a single scheduled wake-up.
type Alarm struct {
	// ID is the immutable unique identifier of the alarm.
	ID string
	// Datetime is the fire time, always truncated to whole minutes.
	Datetime time.Time
	// SiteID references the site the alarm rings on.
	SiteID string
	// Kind distinguishes normal alarms from alerts.
	Kind Kind
	// Missed is set once the alarm's ringing timed out without acknowledgment.
	// It never reverts to false.
	Missed bool
	// Passed is set exactly once, when the clock loop fires the alarm.
	// It gates re-firing.
	Passed bool
}

// New creates an alarm with a fresh ID and a minute-truncated fire time.
func New(datetime time.Time, siteID string, kind Kind) *Alarm {
	return &Alarm{
		ID:       uuid.NewString(),
		Datetime: Truncate(datetime),
		SiteID:   siteID,
		Kind:     kind,
	}
}

// Clone returns a copy of the alarm to avoid leaking internal references.
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Truncate drops seconds and sub-second precision from t.
// All alarm comparisons happen at minute granularity.
func Truncate(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
