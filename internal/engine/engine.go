package engine

import (
	"context"
	"sync"
	"time"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
)

// DefaultTickInterval is the default clock loop scan interval.
const DefaultTickInterval = 2 * time.Second

// Engine is the alarm scheduling and ringing engine: it owns the alarm
// store, runs the clock loop and drives the per-site ring controller.
// It exposes the command API the dialog layer calls into.
type Engine struct {
	// store is the authoritative alarm and site set.
	store *Store
	// ringer drives the per-site ringing state machine.
	ringer *ringer
	// clock fires due alarms.
	clock *clock
}

// Option customizes engine construction.
type Option func(*Engine)

// WithTickInterval overrides the clock loop scan interval.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.clock.tick = d
		}
	}
}

// WithReplayDelay overrides the pause between ringtone repetitions.
func WithReplayDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ringer.replayDelay = d
		}
	}
}

// New wires the engine from its store and notification gateway.
func New(store *Store, gateway Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		ringer: newRinger(store, gateway),
	}

	e.clock = &clock{
		store: store,
		tick:  DefaultTickInterval,
		now:   store.now,
		fire:  e.ringer.startRinging,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run starts the clock loop and consumes gateway events until ctx is
// canceled. It returns after the clock loop has stopped.
func (e *Engine) Run(ctx context.Context, events <-chan Event) error {
	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		e.clock.run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()

			return nil
		case ev, ok := <-events:
			if !ok {
				// Gateway is gone; keep the clock running until shutdown.
				events = nil

				continue
			}

			e.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent dispatches one inbound notification event to the ring controller.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case PlaybackFinished:
		e.ringer.handlePlaybackFinished(ctx, ev)
	case HotwordDetected:
		e.ringer.handleHotword(ctx, ev)
	case SessionStarted:
		e.ringer.handleSessionStarted(ctx, ev)
	case SessionEnded:
		e.ringer.handleSessionEnded(ctx, ev)
	default:
		logger.WarnKV(ctx, "Ignoring unknown event", "site_id", ev.Site())
	}
}

// AddAlarm schedules a new alarm on the given site.
func (e *Engine) AddAlarm(
	ctx context.Context,
	datetime time.Time,
	siteID string,
	kind domain.Kind,
) (*domain.Alarm, error) {
	return e.store.Add(ctx, datetime, siteID, kind)
}

// Alarms returns alarms matching the query, ordered by datetime ascending.
func (e *Engine) Alarms(ctx context.Context, q Query) []*domain.Alarm {
	return e.store.Alarms(ctx, q)
}

// NextAlarm returns the next pending alarm for the site, or nil if none.
func (e *Engine) NextAlarm(ctx context.Context, siteID string) *domain.Alarm {
	alarms := e.store.Alarms(ctx, Query{SiteID: siteID})
	if len(alarms) == 0 {
		return nil
	}

	return alarms[0]
}

// MissedAlarms returns the site's missed alarms, most recent first, and
// removes them from the store: reporting a missed alarm consumes it.
// An empty siteID selects all sites.
func (e *Engine) MissedAlarms(ctx context.Context, siteID string) []*domain.Alarm {
	alarms := e.store.Alarms(ctx, Query{Missed: true, SiteID: siteID})
	if len(alarms) == 0 {
		return nil
	}

	ids := make([]string, 0, len(alarms))
	for _, a := range alarms {
		ids = append(ids, a.ID)
	}

	e.store.Delete(ctx, ids)

	// Most recent first.
	for i, j := 0, len(alarms)-1; i < j; i, j = i+1, j-1 {
		alarms[i], alarms[j] = alarms[j], alarms[i]
	}

	return alarms
}

// DeleteAlarms removes the alarms with the given ids and returns how many
// were removed. A currently ringing alarm is not silenced by deletion; the
// ring controller holds it independently until it is acknowledged or
// times out.
func (e *Engine) DeleteAlarms(ctx context.Context, ids []string) int {
	return e.store.Delete(ctx, ids)
}

// AnswerSnooze resolves a site's snooze dialog by scheduling a follow-up
// alarm. Zero minutes means the user named no duration; requested
// durations are clamped to the site's [default, max] range.
func (e *Engine) AnswerSnooze(ctx context.Context, siteID string, minutes int) (*domain.Alarm, error) {
	return e.ringer.answerSnooze(ctx, siteID, minutes)
}

// DismissAlarm resolves a site's snooze dialog without scheduling anything.
func (e *Engine) DismissAlarm(ctx context.Context, siteID string) error {
	return e.ringer.dismiss(ctx, siteID)
}

// Site returns a copy of the site record, or nil if unknown.
func (e *Engine) Site(siteID string) *domain.Site {
	return e.store.SiteSnapshot(siteID)
}
