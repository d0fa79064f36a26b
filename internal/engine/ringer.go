package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/observability/metrics"
)

// ErrNoSnoozePending is returned when a snooze answer arrives for a site
// that is not awaiting one.
var ErrNoSnoozePending = errors.New("no snooze dialog pending")

const (
	// defaultReplayDelay is the pause between ringtone repetitions.
	defaultReplayDelay = 500 * time.Millisecond

	// snoozePrompt is the question asked after a hotword stops the ring.
	snoozePrompt = "What should the alarm do?"
)

// ringer drives the per-site ringing state machine: ring start, repeat
// playback, hotword stop, timeout and the snooze dialog. Transitions are
// serialized by the store's lock; gateway calls happen outside it.
//
// Side effects are strictly gateway calls and store mutations. The ringer
// itself never touches the disk.
type ringer struct {
	// store owns the site records whose ring state the ringer transitions.
	store *Store
	// gateway plays sounds and drives dialogue sessions.
	gateway Gateway
	// replayDelay is the pause between ringtone repetitions.
	replayDelay time.Duration

	// timers holds the per-site timeout timer, keyed by site id and
	// guarded by store.mu. A new ring always cancels the previous timer
	// first, so no site ever has two timers outstanding.
	timers map[string]*time.Timer
	// tokens holds the active playback token per site, guarded by store.mu.
	tokens map[string]string
}

// newRinger creates the ring controller bound to the store and gateway.
func newRinger(store *Store, gateway Gateway) *ringer {
	return &ringer{
		store:       store,
		gateway:     gateway,
		replayDelay: defaultReplayDelay,
		timers:      make(map[string]*time.Timer),
		tokens:      make(map[string]string),
	}
}

// startRinging transitions the alarm's site from Idle to Ringing: arms the
// timeout timer (canceling any previous one) and requests playback.
func (r *ringer) startRinging(ctx context.Context, a *domain.Alarm) {
	s := r.store

	s.mu.Lock()

	site, ok := s.sites[a.SiteID]
	if !ok {
		s.mu.Unlock()
		logger.WarnKV(ctx, "Due alarm references missing site, skipping", "id", a.ID, "site_id", a.SiteID)

		return
	}

	r.cancelTimerLocked(a.SiteID)
	delete(r.tokens, a.SiteID)

	site.RingState = domain.StateRinging
	site.CurrentAlarm = a.Clone()
	site.SessionPending = false

	settings := site.Settings
	r.timers[a.SiteID] = time.AfterFunc(settings.RingingTimeout, func() {
		r.timeoutReached(ctx, a.SiteID, a.ID)
	})

	s.mu.Unlock()

	logger.InfoKV(ctx, "Ringing", "site_id", a.SiteID, "id", a.ID, "timeout", settings.RingingTimeout)

	r.play(ctx, a.SiteID, a.ID, settings)
}

// play requests one ringtone playback and records the playback token while
// the site is still ringing the same alarm. A failed request is logged and
// not retried; the user simply does not hear this repetition.
func (r *ringer) play(ctx context.Context, siteID, alarmID string, settings domain.SiteSettings) {
	token, err := r.gateway.PlaySound(ctx, siteID, settings.RingtoneResource, settings.RingingVolume)
	if err != nil {
		logger.WarnKV(ctx, "Playback request failed", "site_id", siteID, "error", err)

		return
	}

	s := r.store

	s.mu.Lock()
	if site := s.sites[siteID]; site != nil &&
		site.RingState == domain.StateRinging &&
		site.CurrentAlarm != nil && site.CurrentAlarm.ID == alarmID {
		r.tokens[siteID] = token
	}
	s.mu.Unlock()
}

// timeoutReached handles the ringing timeout: the alarm counts as missed
// and the site returns to Idle. This is fatal for the alarm, not for the
// process; it is reported, never retried.
func (r *ringer) timeoutReached(ctx context.Context, siteID, alarmID string) {
	s := r.store

	s.mu.Lock()

	site := s.sites[siteID]
	if site == nil || site.RingState != domain.StateRinging ||
		site.CurrentAlarm == nil || site.CurrentAlarm.ID != alarmID {
		s.mu.Unlock()

		return
	}

	site.RingState = domain.StateIdle
	site.CurrentAlarm = nil
	site.SessionPending = false

	delete(r.timers, siteID)
	delete(r.tokens, siteID)

	s.mu.Unlock()

	logger.InfoKV(ctx, "Ringing timed out, alarm missed", "site_id", siteID, "id", alarmID)
	metrics.AlarmsMissed.Inc()

	s.MarkMissed(ctx, alarmID)
}

// handlePlaybackFinished repeats the ringtone after a short delay while the
// site keeps ringing. Tokens from superseded or stopped rings are ignored.
func (r *ringer) handlePlaybackFinished(ctx context.Context, ev PlaybackFinished) {
	s := r.store

	s.mu.Lock()

	site := s.sites[ev.SiteID]
	ringing := site != nil && site.RingState == domain.StateRinging &&
		ev.Token != "" && r.tokens[ev.SiteID] == ev.Token

	var alarmID string
	if ringing {
		alarmID = site.CurrentAlarm.ID
	}

	s.mu.Unlock()

	if !ringing {
		return
	}

	time.AfterFunc(r.replayDelay, func() {
		r.replay(ctx, ev.SiteID, alarmID)
	})
}

// replay re-requests playback if the site is still ringing the same alarm.
func (r *ringer) replay(ctx context.Context, siteID, alarmID string) {
	s := r.store

	s.mu.Lock()

	site := s.sites[siteID]
	if site == nil || site.RingState != domain.StateRinging ||
		site.CurrentAlarm == nil || site.CurrentAlarm.ID != alarmID {
		s.mu.Unlock()

		return
	}

	settings := site.Settings

	s.mu.Unlock()

	r.play(ctx, siteID, alarmID, settings)
}

// handleHotword stops an active ring. With snooze enabled the site waits
// for the user's answer; otherwise the alarm is over and only the
// end-of-alarm announcement remains. Either way a dialogue session is
// expected next, so the outcome is delivered on session start.
// Acknowledging a ring consumes the alarm's store record; a snooze answer
// schedules a fresh one.
func (r *ringer) handleHotword(ctx context.Context, ev HotwordDetected) {
	s := r.store

	s.mu.Lock()

	site := s.sites[ev.SiteID]
	if site == nil || site.RingState != domain.StateRinging {
		s.mu.Unlock()

		return
	}

	r.cancelTimerLocked(ev.SiteID)
	delete(r.tokens, ev.SiteID)

	var alarmID string
	if site.CurrentAlarm != nil {
		alarmID = site.CurrentAlarm.ID
	}

	if site.Settings.SnoozeEnabled {
		site.RingState = domain.StateAwaitingSnoozeAnswer
	} else {
		site.RingState = domain.StateIdle
		site.CurrentAlarm = nil
	}

	site.SessionPending = true
	snooze := site.Settings.SnoozeEnabled

	s.mu.Unlock()

	if alarmID != "" {
		s.Delete(ctx, []string{alarmID})
	}

	logger.InfoKV(ctx, "Hotword stopped ringing", "site_id", ev.SiteID, "snooze_enabled", snooze)
}

// handleSessionStarted answers the dialogue session opened after a hotword
// stop: either with the snooze prompt or with the end-of-alarm announcement.
func (r *ringer) handleSessionStarted(ctx context.Context, ev SessionStarted) {
	s := r.store

	s.mu.Lock()

	site := s.sites[ev.SiteID]
	if site == nil || !site.SessionPending {
		s.mu.Unlock()

		return
	}

	site.SessionPending = false
	awaiting := site.RingState == domain.StateAwaitingSnoozeAnswer

	s.mu.Unlock()

	if awaiting {
		if err := r.gateway.EndSession(ctx, ev.SessionID, ""); err != nil {
			logger.WarnKV(ctx, "Failed to end hotword session", "session_id", ev.SessionID, "error", err)
		}

		if err := r.gateway.StartSession(ctx, ev.SiteID, snoozePrompt); err != nil {
			logger.WarnKV(ctx, "Failed to start snooze dialog", "site_id", ev.SiteID, "error", err)
		}

		return
	}

	text := fmt.Sprintf("The alarm is now ended. It is %s.", s.now().Format("15:04"))
	if err := r.gateway.EndSession(ctx, ev.SessionID, text); err != nil {
		logger.WarnKV(ctx, "Failed to end session", "session_id", ev.SessionID, "error", err)
	}
}

// handleSessionEnded cleans up after an abnormally terminated session.
// A pending announcement is abandoned, and a snooze dialog that will never
// get its answer returns the site to Idle instead of waiting forever.
func (r *ringer) handleSessionEnded(ctx context.Context, ev SessionEnded) {
	if ev.Nominal() {
		return
	}

	s := r.store

	s.mu.Lock()

	site := s.sites[ev.SiteID]
	if site == nil {
		s.mu.Unlock()

		return
	}

	cleaned := site.SessionPending || site.RingState == domain.StateAwaitingSnoozeAnswer

	site.SessionPending = false
	if site.RingState == domain.StateAwaitingSnoozeAnswer {
		site.RingState = domain.StateIdle
		site.CurrentAlarm = nil
	}

	s.mu.Unlock()

	if cleaned {
		logger.InfoKV(ctx, "Session ended abnormally, cleared pending alarm dialog",
			"site_id", ev.SiteID, "reason", ev.Reason)
	}
}

// answerSnooze resolves the snooze dialog by scheduling a follow-up alarm.
// The duration is clamped to the site's [default, max] minute range; zero
// means the user named no duration.
func (r *ringer) answerSnooze(ctx context.Context, siteID string, minutes int) (*domain.Alarm, error) {
	s := r.store

	s.mu.Lock()

	site := s.sites[siteID]
	if site == nil {
		s.mu.Unlock()

		return nil, ErrUnknownSite
	}

	if site.RingState != domain.StateAwaitingSnoozeAnswer {
		s.mu.Unlock()

		return nil, ErrNoSnoozePending
	}

	settings := site.Settings

	kind := domain.KindNormal
	if site.CurrentAlarm != nil {
		kind = site.CurrentAlarm.Kind
	}

	s.mu.Unlock()

	if minutes < settings.SnoozeDefaultMinutes {
		minutes = settings.SnoozeDefaultMinutes
	}

	if minutes > settings.SnoozeMaxMinutes {
		minutes = settings.SnoozeMaxMinutes
	}

	// Round the target up to a whole minute, otherwise truncation inside Add
	// could put a mid-minute answer under the minimum lead time and reject it.
	target := s.now().Add(time.Duration(minutes) * time.Minute)
	if truncated := domain.Truncate(target); !truncated.Equal(target) {
		target = truncated.Add(time.Minute)
	}

	a, err := s.Add(ctx, target, siteID, kind)
	if err != nil {
		return nil, fmt.Errorf("schedule snooze alarm: %w", err)
	}

	// The dialog resolves only once the follow-up alarm exists; a failed add
	// leaves the site awaiting so the answer is not silently lost.
	s.mu.Lock()

	if site := s.sites[siteID]; site != nil && site.RingState == domain.StateAwaitingSnoozeAnswer {
		site.RingState = domain.StateIdle
		site.CurrentAlarm = nil
		site.SessionPending = false
	}

	s.mu.Unlock()

	logger.InfoKV(ctx, "Snoozed", "site_id", siteID, "minutes", minutes, "id", a.ID)
	metrics.AlarmsSnoozed.Inc()

	return a, nil
}

// dismiss resolves the snooze dialog without scheduling anything.
func (r *ringer) dismiss(_ context.Context, siteID string) error {
	s := r.store

	s.mu.Lock()
	defer s.mu.Unlock()

	site := s.sites[siteID]
	if site == nil {
		return ErrUnknownSite
	}

	if site.RingState != domain.StateAwaitingSnoozeAnswer {
		return ErrNoSnoozePending
	}

	site.RingState = domain.StateIdle
	site.CurrentAlarm = nil
	site.SessionPending = false

	return nil
}

// cancelTimerLocked stops and forgets the site's timeout timer, if any.
// Callers must hold store.mu.
func (r *ringer) cancelTimerLocked(siteID string) {
	if t := r.timers[siteID]; t != nil {
		t.Stop()
		delete(r.timers, siteID)
	}
}
