package intents

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/engine"
	"github.com/oshokin/alarm-clock/internal/gateway/hermes"
	"github.com/oshokin/alarm-clock/internal/logger"
)

// Engine abstracts the command API the handler calls into.
type Engine interface {
	AddAlarm(ctx context.Context, datetime time.Time, siteID string, kind domain.Kind) (*domain.Alarm, error)
	Alarms(ctx context.Context, q engine.Query) []*domain.Alarm
	NextAlarm(ctx context.Context, siteID string) *domain.Alarm
	MissedAlarms(ctx context.Context, siteID string) []*domain.Alarm
	DeleteAlarms(ctx context.Context, ids []string) int
	AnswerSnooze(ctx context.Context, siteID string, minutes int) (*domain.Alarm, error)
	DismissAlarm(ctx context.Context, siteID string) error
}

// Responder answers dialogue sessions.
type Responder interface {
	EndSession(ctx context.Context, sessionID, text string) error
}

// hereWord is the room slot value meaning "the site the command came from".
const hereWord = "here"

// Handler turns recognized intents into engine calls and spoken responses.
// Language understanding happens upstream; only pre-extracted slot values
// arrive here.
type Handler struct {
	// engine is the alarm engine the commands act on.
	engine Engine
	// responder ends dialogue sessions with the response text.
	responder Responder
	// rooms maps spoken room names to site identifiers.
	rooms map[string]string
	// now produces the current time; replaceable in tests.
	now func() time.Time
}

// NewHandler creates the intent handler.
func NewHandler(eng Engine, responder Responder, rooms map[string]string) *Handler {
	if rooms == nil {
		rooms = make(map[string]string)
	}

	return &Handler{
		engine:    eng,
		responder: responder,
		rooms:     rooms,
		now:       time.Now,
	}
}

// Run consumes intents until the channel closes or ctx is canceled.
func (h *Handler) Run(ctx context.Context, intents <-chan hermes.Intent) {
	ctx = logger.WithName(ctx, "intents")

	for {
		select {
		case <-ctx.Done():
			return
		case intent, ok := <-intents:
			if !ok {
				return
			}

			h.Handle(ctx, intent)
		}
	}
}

// Handle processes one intent and answers its session.
func (h *Handler) Handle(ctx context.Context, intent hermes.Intent) {
	logger.InfoKV(ctx, "Handling intent", "intent", intent.Name, "site_id", intent.SiteID)

	var text string

	switch intent.Name {
	case hermes.IntentNewAlarm:
		text = h.newAlarm(ctx, intent)
	case hermes.IntentGetAlarms:
		text = h.getAlarms(ctx, intent)
	case hermes.IntentGetNextAlarm:
		text = h.getNextAlarm(ctx, intent)
	case hermes.IntentGetMissedAlarms:
		text = h.getMissedAlarms(ctx, intent)
	case hermes.IntentDeleteAlarms:
		text = h.deleteAlarms(ctx, intent)
	case hermes.IntentAnswerAlarm:
		text = h.answerAlarm(ctx, intent)
	default:
		logger.DebugKV(ctx, "Ignoring unrelated intent", "intent", intent.Name)

		return
	}

	if err := h.responder.EndSession(ctx, intent.SessionID, text); err != nil {
		logger.WarnKV(ctx, "Failed to answer session", "session_id", intent.SessionID, "error", err)
	}
}

// newAlarm schedules an alarm from the time and room slots.
func (h *Handler) newAlarm(ctx context.Context, intent hermes.Intent) string {
	slot, ok := intent.Slot("time")
	if !ok {
		return "Sorry, I did not understand you."
	}

	datetime, err := parseTime(slot.String())
	if err != nil {
		return "Sorry, I did not understand you."
	}

	siteID, ok := h.siteFor(intent)
	if !ok {
		return "This room has not been configured yet."
	}

	kind := domain.KindNormal
	if slot, ok := intent.Slot("kind"); ok {
		kind, _ = domain.ParseKind(slot.String())
	}

	a, err := h.engine.AddAlarm(ctx, datetime, siteID, kind)

	switch {
	case errors.Is(err, engine.ErrInvalidTime):
		return "This time is in the past."
	case errors.Is(err, engine.ErrTooSoon):
		return "This alarm would ring now."
	case err != nil:
		logger.ErrorKV(ctx, "Failed to add alarm", "error", err)

		return "Sorry, something went wrong."
	}

	return fmt.Sprintf("The alarm will ring at %s.", h.spokenTime(a.Datetime))
}

// getAlarms reports the pending alarms matching the room and time slots.
func (h *Handler) getAlarms(ctx context.Context, intent hermes.Intent) string {
	q, ok := h.queryFor(intent)
	if !ok {
		return "This room has not been configured yet."
	}

	alarms := h.engine.Alarms(ctx, q)

	switch len(alarms) {
	case 0:
		return "There is no alarm."
	case 1:
		return fmt.Sprintf("There is one alarm at %s.", h.spokenTime(alarms[0].Datetime))
	default:
		return fmt.Sprintf("There are %d alarms. The next one rings at %s.",
			len(alarms), h.spokenTime(alarms[0].Datetime))
	}
}

// getNextAlarm reports the next alarm on the site the command came from.
func (h *Handler) getNextAlarm(ctx context.Context, intent hermes.Intent) string {
	siteID, ok := h.siteFor(intent)
	if !ok {
		return "This room has not been configured yet."
	}

	next := h.engine.NextAlarm(ctx, siteID)
	if next == nil {
		return "There is no alarm."
	}

	return fmt.Sprintf("The next alarm rings at %s.", h.spokenTime(next.Datetime))
}

// getMissedAlarms reports and consumes the missed alarms, newest first.
func (h *Handler) getMissedAlarms(ctx context.Context, intent hermes.Intent) string {
	siteID, ok := h.siteFor(intent)
	if !ok {
		return "This room has not been configured yet."
	}

	missed := h.engine.MissedAlarms(ctx, siteID)

	switch len(missed) {
	case 0:
		return "You missed no alarm."
	case 1:
		return fmt.Sprintf("You missed one alarm at %s.", h.spokenTime(missed[0].Datetime))
	default:
		return fmt.Sprintf("You missed %d alarms. The last one was at %s.",
			len(missed), h.spokenTime(missed[0].Datetime))
	}
}

// deleteAlarms removes the alarms matching the room and time slots.
func (h *Handler) deleteAlarms(ctx context.Context, intent hermes.Intent) string {
	q, ok := h.queryFor(intent)
	if !ok {
		return "This room has not been configured yet."
	}

	alarms := h.engine.Alarms(ctx, q)
	if len(alarms) == 0 {
		return "There is no alarm to delete."
	}

	ids := make([]string, 0, len(alarms))
	for _, a := range alarms {
		ids = append(ids, a.ID)
	}

	removed := h.engine.DeleteAlarms(ctx, ids)
	if removed == 1 {
		return "Deleted one alarm."
	}

	return fmt.Sprintf("Deleted %d alarms.", removed)
}

// answerAlarm resolves the snooze dialog: no answer or "snooze" schedules a
// follow-up alarm, anything else dismisses it.
func (h *Handler) answerAlarm(ctx context.Context, intent hermes.Intent) string {
	answer := ""
	if slot, ok := intent.Slot("answer"); ok {
		answer = slot.String()
	}

	if answer != "" && answer != "snooze" {
		if err := h.engine.DismissAlarm(ctx, intent.SiteID); err != nil {
			logger.DebugKV(ctx, "Dismiss without pending dialog", "site_id", intent.SiteID, "error", err)
		}

		return "Good morning."
	}

	minutes := 0
	if slot, ok := intent.Slot("duration"); ok {
		minutes = slot.Value.Minutes
	}

	a, err := h.engine.AnswerSnooze(ctx, intent.SiteID, minutes)
	if err != nil {
		logger.DebugKV(ctx, "Snooze answer without pending dialog", "site_id", intent.SiteID, "error", err)

		return "There is no alarm to answer."
	}

	return fmt.Sprintf("I will wake you again at %s.", h.spokenTime(a.Datetime))
}

// siteFor resolves the target site from the room slot, falling back to the
// site the command was spoken on.
func (h *Handler) siteFor(intent hermes.Intent) (string, bool) {
	slot, ok := intent.Slot("room")
	if !ok {
		return intent.SiteID, true
	}

	room := slot.String()
	if room == hereWord {
		return intent.SiteID, true
	}

	siteID, ok := h.rooms[room]

	return siteID, ok
}

// queryFor builds an alarm query from the room and time slots.
func (h *Handler) queryFor(intent hermes.Intent) (engine.Query, bool) {
	var q engine.Query

	if _, ok := intent.Slot("room"); ok {
		siteID, ok := h.siteFor(intent)
		if !ok {
			return q, false
		}

		q.SiteID = siteID
	}

	if slot, ok := intent.Slot("time"); ok {
		if at, err := parseTime(slot.String()); err == nil {
			q.At = at
		}
	}

	return q, true
}

// spokenTime renders a time for speech: the clock time alone when the day
// is today, otherwise with the date.
func (h *Handler) spokenTime(t time.Time) string {
	now := h.now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}

	return t.Format("15:04 on January 2")
}

// parseTime accepts the assistant's full instant form and the engine's
// minute-precision form.
func parseTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02 15:04:05 -07:00", s, time.Local); err == nil {
		return t, nil
	}

	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local); err == nil {
		return t, nil
	}

	return time.ParseInLocation(domain.TimeLayout, s, time.Local)
}
