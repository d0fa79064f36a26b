package hermes

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Intent names this skill reacts to. The dialogue layer performs the
// language understanding; only the recognized intent arrives here.
const (
	// IntentNewAlarm schedules a new alarm.
	IntentNewAlarm = "newAlarm"
	// IntentGetAlarms asks for pending alarms.
	IntentGetAlarms = "getAlarms"
	// IntentGetNextAlarm asks for the next alarm on a site.
	IntentGetNextAlarm = "getNextAlarm"
	// IntentGetMissedAlarms asks for (and consumes) missed alarms.
	IntentGetMissedAlarms = "getMissedAlarms"
	// IntentDeleteAlarms deletes matching alarms.
	IntentDeleteAlarms = "deleteAlarms"
	// IntentAnswerAlarm answers the snooze dialog.
	IntentAnswerAlarm = "answerAlarm"
)

// intentAnswerAlarm is the filter the snooze prompt session listens for.
const intentAnswerAlarm = IntentAnswerAlarm

// Intent is one recognized spoken command with its extracted slots.
type Intent struct {
	// Name is the intent name without its assistant namespace prefix.
	Name string
	// SiteID is the site the command was spoken on.
	SiteID string
	// SessionID identifies the dialogue session carrying the command.
	SessionID string
	// Slots are the values the language understanding layer extracted.
	Slots []IntentSlot
}

// Slot returns the named slot, reporting whether it is present.
func (i Intent) Slot(name string) (IntentSlot, bool) {
	for _, slot := range i.Slots {
		if slot.SlotName == name {
			return slot, true
		}
	}

	return IntentSlot{}, false
}

// IntentSlot is one extracted slot value.
type IntentSlot struct {
	// SlotName identifies the slot.
	SlotName string `json:"slotName"`
	// RawValue is the words the user actually said.
	RawValue string `json:"rawValue"`
	// Value is the normalized slot value.
	Value SlotValue `json:"value"`
}

// String returns the normalized slot value as text.
func (s IntentSlot) String() string {
	if s.Value.Value == nil {
		return s.RawValue
	}

	return fmt.Sprintf("%v", s.Value.Value)
}

// SlotValue is the normalized form of a slot.
type SlotValue struct {
	// Kind names the value type (e.g. InstantTime, Duration, Custom).
	Kind string `json:"kind"`
	// Value carries the normalized value for most kinds.
	Value any `json:"value"`
	// Minutes carries the duration for Duration slots.
	Minutes int `json:"minutes"`
}

// intentPayload is the wire form of a recognized intent.
type intentPayload struct {
	SessionID string `json:"sessionId"`
	SiteID    string `json:"siteId"`
	Intent    struct {
		IntentName string `json:"intentName"`
	} `json:"intent"`
	Slots []IntentSlot `json:"slots"`
}

// parseIntent decodes an intent message, stripping the topic path and the
// assistant namespace (e.g. "domi:newAlarm" becomes "newAlarm").
func parseIntent(topic string, payload []byte) (Intent, error) {
	var p intentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}

	name := p.Intent.IntentName
	if name == "" {
		name = topic[strings.LastIndex(topic, "/")+1:]
	}

	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}

	return Intent{
		Name:      name,
		SiteID:    p.SiteID,
		SessionID: p.SessionID,
		Slots:     p.Slots,
	}, nil
}

// playFinishedPayload is the audio server's completion message.
type playFinishedPayload struct {
	ID     string `json:"id"`
	SiteID string `json:"siteId"`
}

// hotwordPayload is the hotword detection message.
type hotwordPayload struct {
	SiteID string `json:"siteId"`
}

// sessionPayload is the dialogue manager's session open message.
type sessionPayload struct {
	SessionID string `json:"sessionId"`
	SiteID    string `json:"siteId"`
}

// sessionEndedPayload is the dialogue manager's session termination message.
type sessionEndedPayload struct {
	SessionID   string `json:"sessionId"`
	SiteID      string `json:"siteId"`
	Termination struct {
		Reason string `json:"reason"`
	} `json:"termination"`
}

// startSessionPayload asks the dialogue manager to open a session.
type startSessionPayload struct {
	SiteID string      `json:"siteId"`
	Init   sessionInit `json:"init"`
}

// sessionInit describes the session to open.
type sessionInit struct {
	Type          string   `json:"type"`
	Text          string   `json:"text"`
	CanBeEnqueued bool     `json:"canBeEnqueued"`
	IntentFilter  []string `json:"intentFilter"`
}

// endSessionPayload asks the dialogue manager to terminate a session.
type endSessionPayload struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text,omitempty"`
}
