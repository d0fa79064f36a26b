package hermes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIntent(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"sessionId": "sess-1",
		"siteId": "bedroom",
		"intent": {"intentName": "domi:newAlarm"},
		"slots": [
			{
				"slotName": "time",
				"rawValue": "seven tomorrow",
				"value": {"kind": "InstantTime", "value": "2026-08-30 07:00:00"}
			},
			{
				"slotName": "duration",
				"rawValue": "ten minutes",
				"value": {"kind": "Duration", "minutes": 10}
			}
		]
	}`)

	intent, err := parseIntent("hermes/intent/domi:newAlarm", payload)
	require.NoError(t, err)

	require.Equal(t, "newAlarm", intent.Name)
	require.Equal(t, "bedroom", intent.SiteID)
	require.Equal(t, "sess-1", intent.SessionID)

	slot, ok := intent.Slot("time")
	require.True(t, ok)
	require.Equal(t, "2026-08-30 07:00:00", slot.String())

	slot, ok = intent.Slot("duration")
	require.True(t, ok)
	require.Equal(t, 10, slot.Value.Minutes)

	_, ok = intent.Slot("room")
	require.False(t, ok)
}

func TestParseIntentNameFromTopic(t *testing.T) {
	t.Parallel()

	// Some assistants omit the intent object; the topic still names it.
	intent, err := parseIntent("hermes/intent/domi:getAlarms", []byte(`{"siteId": "kitchen"}`))
	require.NoError(t, err)
	require.Equal(t, "getAlarms", intent.Name)
	require.Equal(t, "kitchen", intent.SiteID)
}

func TestParseIntentWithoutNamespace(t *testing.T) {
	t.Parallel()

	intent, err := parseIntent("hermes/intent/answerAlarm",
		[]byte(`{"intent": {"intentName": "answerAlarm"}}`))
	require.NoError(t, err)
	require.Equal(t, "answerAlarm", intent.Name)
}

func TestParseIntentInvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := parseIntent("hermes/intent/domi:newAlarm", []byte("{not json"))
	require.Error(t, err)
}

func TestIntentSlotStringFallsBackToRawValue(t *testing.T) {
	t.Parallel()

	slot := IntentSlot{SlotName: "room", RawValue: "kitchen"}
	require.Equal(t, "kitchen", slot.String())
}
