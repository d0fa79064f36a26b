package intents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/engine"
	"github.com/oshokin/alarm-clock/internal/gateway/hermes"
)

type fakeEngine struct {
	addedDatetime time.Time
	addedSiteID   string
	addedKind     domain.Kind
	addErr        error

	alarms []*domain.Alarm
	next   *domain.Alarm
	missed []*domain.Alarm

	deletedIDs []string

	snoozedSiteID  string
	snoozedMinutes int
	snoozeResult   *domain.Alarm
	snoozeErr      error

	dismissedSiteID string
}

func (f *fakeEngine) AddAlarm(
	_ context.Context,
	datetime time.Time,
	siteID string,
	kind domain.Kind,
) (*domain.Alarm, error) {
	f.addedDatetime = datetime
	f.addedSiteID = siteID
	f.addedKind = kind

	if f.addErr != nil {
		return nil, f.addErr
	}

	return &domain.Alarm{ID: "added", Datetime: datetime, SiteID: siteID, Kind: kind}, nil
}

func (f *fakeEngine) Alarms(_ context.Context, _ engine.Query) []*domain.Alarm {
	return f.alarms
}

func (f *fakeEngine) NextAlarm(_ context.Context, _ string) *domain.Alarm {
	return f.next
}

func (f *fakeEngine) MissedAlarms(_ context.Context, _ string) []*domain.Alarm {
	return f.missed
}

func (f *fakeEngine) DeleteAlarms(_ context.Context, ids []string) int {
	f.deletedIDs = ids

	return len(ids)
}

func (f *fakeEngine) AnswerSnooze(_ context.Context, siteID string, minutes int) (*domain.Alarm, error) {
	f.snoozedSiteID = siteID
	f.snoozedMinutes = minutes

	return f.snoozeResult, f.snoozeErr
}

func (f *fakeEngine) DismissAlarm(_ context.Context, siteID string) error {
	f.dismissedSiteID = siteID

	return nil
}

type fakeResponder struct {
	sessionID string
	text      string
	calls     int
}

func (f *fakeResponder) EndSession(_ context.Context, sessionID, text string) error {
	f.sessionID = sessionID
	f.text = text
	f.calls++

	return nil
}

func newTestHandler(t *testing.T, eng *fakeEngine, rooms map[string]string) (*Handler, *fakeResponder) {
	t.Helper()

	responder := &fakeResponder{}
	h := NewHandler(eng, responder, rooms)
	h.now = func() time.Time {
		return time.Date(2026, 8, 30, 6, 0, 0, 0, time.Local)
	}

	return h, responder
}

func timeSlot(value string) hermes.IntentSlot {
	return hermes.IntentSlot{
		SlotName: "time",
		Value:    hermes.SlotValue{Kind: "InstantTime", Value: value},
	}
}

func TestHandleNewAlarm(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:      hermes.IntentNewAlarm,
		SiteID:    "bedroom",
		SessionID: "session-1",
		Slots:     []hermes.IntentSlot{timeSlot("2026-08-30 07:00:00")},
	})

	require.Equal(t, "bedroom", eng.addedSiteID)
	require.Equal(t, time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local), eng.addedDatetime)
	require.Equal(t, domain.KindNormal, eng.addedKind)
	require.Equal(t, "session-1", responder.sessionID)
	require.Equal(t, "The alarm will ring at 07:00.", responder.text)
}

func TestHandleNewAlarmRoomSlot(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	h, _ := newTestHandler(t, eng, map[string]string{"kitchen": "kitchen-site"})

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentNewAlarm,
		SiteID: "bedroom",
		Slots: []hermes.IntentSlot{
			timeSlot("2026-08-31 07:00:00"),
			{SlotName: "room", Value: hermes.SlotValue{Kind: "Custom", Value: "kitchen"}},
		},
	})

	require.Equal(t, "kitchen-site", eng.addedSiteID)
}

func TestHandleNewAlarmUnknownRoom(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentNewAlarm,
		SiteID: "bedroom",
		Slots: []hermes.IntentSlot{
			timeSlot("2026-08-31 07:00:00"),
			{SlotName: "room", Value: hermes.SlotValue{Kind: "Custom", Value: "attic"}},
		},
	})

	require.Empty(t, eng.addedSiteID)
	require.Equal(t, "This room has not been configured yet.", responder.text)
}

func TestHandleNewAlarmHereWord(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	h, _ := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentNewAlarm,
		SiteID: "bedroom",
		Slots: []hermes.IntentSlot{
			timeSlot("2026-08-31 07:00:00"),
			{SlotName: "room", Value: hermes.SlotValue{Kind: "Custom", Value: "here"}},
		},
	})

	require.Equal(t, "bedroom", eng.addedSiteID)
}

func TestHandleNewAlarmErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "past time",
			err:      engine.ErrInvalidTime,
			expected: "This time is in the past.",
		},
		{
			name:     "too soon",
			err:      engine.ErrTooSoon,
			expected: "This alarm would ring now.",
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eng := &fakeEngine{addErr: tt.err}
			h, responder := newTestHandler(t, eng, nil)

			h.Handle(context.Background(), hermes.Intent{
				Name:   hermes.IntentNewAlarm,
				SiteID: "bedroom",
				Slots:  []hermes.IntentSlot{timeSlot("2026-08-30 05:00:00")},
			})

			require.Equal(t, tt.expected, responder.text)
		})
	}
}

func TestHandleNewAlarmWithoutTimeSlot(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentNewAlarm,
		SiteID: "bedroom",
	})

	require.Equal(t, "Sorry, I did not understand you.", responder.text)
}

func TestHandleGetAlarms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		alarms   []*domain.Alarm
		expected string
	}{
		{
			name:     "none",
			alarms:   nil,
			expected: "There is no alarm.",
		},
		{
			name: "one",
			alarms: []*domain.Alarm{
				{ID: "a", Datetime: time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)},
			},
			expected: "There is one alarm at 07:00.",
		},
		{
			name: "several",
			alarms: []*domain.Alarm{
				{ID: "a", Datetime: time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)},
				{ID: "b", Datetime: time.Date(2026, 8, 31, 8, 0, 0, 0, time.Local)},
			},
			expected: "There are 2 alarms. The next one rings at 07:00.",
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eng := &fakeEngine{alarms: tt.alarms}
			h, responder := newTestHandler(t, eng, nil)

			h.Handle(context.Background(), hermes.Intent{
				Name:   hermes.IntentGetAlarms,
				SiteID: "bedroom",
			})

			require.Equal(t, tt.expected, responder.text)
		})
	}
}

func TestHandleGetNextAlarm(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		next: &domain.Alarm{ID: "a", Datetime: time.Date(2026, 8, 31, 6, 30, 0, 0, time.Local)},
	}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentGetNextAlarm,
		SiteID: "bedroom",
	})

	require.Equal(t, "The next alarm rings at 06:30 on August 31.", responder.text)
}

func TestHandleGetMissedAlarms(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		missed: []*domain.Alarm{
			{ID: "b", Datetime: time.Date(2026, 8, 30, 5, 30, 0, 0, time.Local), Missed: true},
			{ID: "a", Datetime: time.Date(2026, 8, 30, 5, 0, 0, 0, time.Local), Missed: true},
		},
	}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentGetMissedAlarms,
		SiteID: "bedroom",
	})

	require.Equal(t, "You missed 2 alarms. The last one was at 05:30.", responder.text)
}

func TestHandleDeleteAlarms(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		alarms: []*domain.Alarm{
			{ID: "a", Datetime: time.Date(2026, 8, 30, 7, 0, 0, 0, time.Local)},
			{ID: "b", Datetime: time.Date(2026, 8, 31, 8, 0, 0, 0, time.Local)},
		},
	}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentDeleteAlarms,
		SiteID: "bedroom",
	})

	require.Equal(t, []string{"a", "b"}, eng.deletedIDs)
	require.Equal(t, "Deleted 2 alarms.", responder.text)
}

func TestHandleAnswerAlarmSnooze(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		snoozeResult: &domain.Alarm{
			ID:       "snoozed",
			Datetime: time.Date(2026, 8, 30, 6, 10, 0, 0, time.Local),
		},
	}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentAnswerAlarm,
		SiteID: "bedroom",
		Slots: []hermes.IntentSlot{
			{SlotName: "answer", Value: hermes.SlotValue{Kind: "Custom", Value: "snooze"}},
			{SlotName: "duration", Value: hermes.SlotValue{Kind: "Duration", Minutes: 10}},
		},
	})

	require.Equal(t, "bedroom", eng.snoozedSiteID)
	require.Equal(t, 10, eng.snoozedMinutes)
	require.Equal(t, "I will wake you again at 06:10.", responder.text)
}

func TestHandleAnswerAlarmNoAnswerMeansSnooze(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		snoozeResult: &domain.Alarm{
			ID:       "snoozed",
			Datetime: time.Date(2026, 8, 30, 6, 5, 0, 0, time.Local),
		},
	}
	h, _ := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentAnswerAlarm,
		SiteID: "bedroom",
	})

	require.Equal(t, "bedroom", eng.snoozedSiteID)
	require.Equal(t, 0, eng.snoozedMinutes)
}

func TestHandleAnswerAlarmDismiss(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentAnswerAlarm,
		SiteID: "bedroom",
		Slots: []hermes.IntentSlot{
			{SlotName: "answer", Value: hermes.SlotValue{Kind: "Custom", Value: "stop"}},
		},
	})

	require.Equal(t, "bedroom", eng.dismissedSiteID)
	require.Empty(t, eng.snoozedSiteID)
	require.Equal(t, "Good morning.", responder.text)
}

func TestHandleAnswerAlarmWithoutPendingDialog(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{snoozeErr: engine.ErrNoSnoozePending}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   hermes.IntentAnswerAlarm,
		SiteID: "bedroom",
	})

	require.Equal(t, "There is no alarm to answer.", responder.text)
}

func TestHandleIgnoresUnrelatedIntent(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	h, responder := newTestHandler(t, eng, nil)

	h.Handle(context.Background(), hermes.Intent{
		Name:   "weatherForecast",
		SiteID: "bedroom",
	})

	require.Zero(t, responder.calls)
}

func TestRunStopsOnClosedChannel(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	h, _ := newTestHandler(t, eng, nil)

	intents := make(chan hermes.Intent)
	close(intents)

	done := make(chan struct{})

	go func() {
		h.Run(context.Background(), intents)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
}
