package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/observability/metrics"
	"github.com/oshokin/alarm-clock/internal/repository/snapshot"
)

var (
	// ErrInvalidTime is returned when the requested alarm time is not in the future.
	ErrInvalidTime = errors.New("alarm time is not in the future")
	// ErrTooSoon is returned when the alarm would ring within the minimum lead time.
	ErrTooSoon = errors.New("alarm would ring within the minimum lead time")
	// ErrUnknownSite is returned when a query references a site the engine does not know.
	ErrUnknownSite = errors.New("unknown site")
)

// MinimumLeadTime is how far in the future an alarm must ring to be accepted.
const MinimumLeadTime = time.Minute

// Query filters the alarm set. Zero fields are ignored.
type Query struct {
	// Missed selects missed alarms instead of pending ones.
	Missed bool
	// SiteID restricts results to one site.
	SiteID string
	// At restricts results to alarms at this exact minute.
	At time.Time
	// From restricts results to alarms at or after this instant.
	From time.Time
	// To restricts results to alarms at or before this instant.
	To time.Time
}

// Store is the authoritative set of alarms and sites. Every mutation is
// persisted to the snapshot repository before it returns; a failed write is
// logged and the engine keeps operating on the in-memory state.
//
// The single mutex also guards the per-site ringing state, which keeps
// timer callbacks, inbound events and command calls serialized without a
// second lock ordering to reason about.
type Store struct {
	// repo persists the alarm set after every mutation.
	repo snapshot.Repository
	// now produces the current time; replaceable in tests.
	now func() time.Time
	// defaults are the settings applied to lazily registered sites.
	defaults domain.SiteSettings
	// mu protects sites and alarms.
	mu sync.Mutex
	// sites maps site id to the site record, including its ringing state.
	sites map[string]*domain.Site
	// alarms is the pending set, ordered by datetime ascending.
	alarms []*domain.Alarm
}

// NewStore builds the store from configured sites and the persisted snapshot.
// Snapshot entries referencing unknown sites are dropped with a warning.
// Entries whose time already elapsed are kept and marked missed, so missed
// alarms survive a restart and can still be queried.
func NewStore(
	ctx context.Context,
	repo snapshot.Repository,
	sites map[string]domain.SiteSettings,
	defaults domain.SiteSettings,
	now func() time.Time,
) (*Store, error) {
	if now == nil {
		now = time.Now
	}

	s := &Store{
		repo:     repo,
		now:      now,
		defaults: defaults,
		sites:    make(map[string]*domain.Site, len(sites)),
	}

	for id, settings := range sites {
		s.sites[id] = domain.NewSite(id, settings)
		logger.DebugKV(ctx, "Registered site", "site_id", id)
	}

	loaded, err := repo.Load(ctx)

	switch {
	case err == nil:
	case errors.Is(err, snapshot.ErrNotFound):
		// First run, nothing to restore.
		loaded = nil
	default:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	nowTruncated := domain.Truncate(now())

	for _, a := range loaded {
		if _, ok := s.sites[a.SiteID]; !ok {
			logger.WarnKV(ctx, "Dropping alarm for unknown site", "id", a.ID, "site_id", a.SiteID)

			continue
		}

		if a.Datetime.Before(nowTruncated) && !a.Missed {
			a.Missed = true

			logger.InfoKV(ctx, "Restored alarm already elapsed, marking missed",
				"id", a.ID, "datetime", a.Datetime.Format(domain.TimeLayout))
		}

		s.alarms = append(s.alarms, a)
		logger.DebugKV(ctx, "Restored alarm",
			"id", a.ID, "site_id", a.SiteID, "datetime", a.Datetime.Format(domain.TimeLayout))
	}

	s.sortLocked()

	// Rewrite the snapshot so dropped entries and missed flags hit disk.
	s.persist(ctx)

	return s, nil
}

// Add validates and stores a new alarm, registering the site lazily if
// unseen, and persists the updated set.
func (s *Store) Add(ctx context.Context, datetime time.Time, siteID string, kind domain.Kind) (*domain.Alarm, error) {
	now := s.now()
	datetime = domain.Truncate(datetime)

	if !datetime.After(domain.Truncate(now)) {
		return nil, ErrInvalidTime
	}

	if datetime.Sub(now) < MinimumLeadTime {
		return nil, ErrTooSoon
	}

	a := domain.New(datetime, siteID, kind)

	s.mu.Lock()

	s.siteLocked(ctx, siteID)
	s.alarms = append(s.alarms, a)
	s.sortLocked()
	s.persist(ctx)

	s.mu.Unlock()

	logger.InfoKV(ctx, "Added alarm",
		"id", a.ID, "site_id", siteID, "datetime", datetime.Format(domain.TimeLayout), "kind", kind)
	metrics.AlarmsAdded.Inc()

	return a.Clone(), nil
}

// Alarms returns alarms matching the query, ordered by datetime ascending.
func (s *Store) Alarms(_ context.Context, q Query) []*domain.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Alarm

	for _, a := range s.alarms {
		if a.Missed != q.Missed {
			continue
		}

		if q.SiteID != "" && a.SiteID != q.SiteID {
			continue
		}

		if !q.At.IsZero() && !a.Datetime.Equal(domain.Truncate(q.At)) {
			continue
		}

		if !q.From.IsZero() && a.Datetime.Before(q.From) {
			continue
		}

		if !q.To.IsZero() && a.Datetime.After(q.To) {
			continue
		}

		result = append(result, a.Clone())
	}

	return result
}

// Delete removes the alarms with the given ids regardless of ringing state
// and persists the updated set. It returns the number of alarms removed.
// A currently ringing alarm keeps ringing; deletion only affects the
// pending set.
func (s *Store) Delete(ctx context.Context, ids []string) int {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	s.mu.Lock()

	kept := s.alarms[:0]
	removed := 0

	for _, a := range s.alarms {
		if _, ok := wanted[a.ID]; ok {
			removed++

			continue
		}

		kept = append(kept, a)
	}

	s.alarms = kept
	if removed > 0 {
		s.persist(ctx)
	}

	s.mu.Unlock()

	logger.InfoKV(ctx, "Deleted alarms", "requested", len(ids), "removed", removed)

	return removed
}

// MarkMissed flags the alarm as missed and persists the change.
// It is a no-op when the alarm was deleted in the meantime.
func (s *Store) MarkMissed(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alarms {
		if a.ID != id {
			continue
		}

		if !a.Missed {
			a.Missed = true
			s.persist(ctx)
		}

		return
	}
}

// MarkPassedDue flips the passed flag on every alarm due at the given
// truncated instant and returns copies of the newly passed ones. The
// compare-and-set happens under the store lock, so overlapping ticks can
// never fire the same alarm twice.
func (s *Store) MarkPassedDue(_ context.Context, now time.Time) []*domain.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Alarm

	for _, a := range s.alarms {
		if a.Passed || a.Missed || !a.Datetime.Equal(now) {
			continue
		}

		a.Passed = true
		due = append(due, a.Clone())
	}

	return due
}

// SiteIDs returns the identifiers of all registered sites.
func (s *Store) SiteIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sites))
	for id := range s.sites {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// SiteSnapshot returns a copy of the site record, or nil if unknown.
func (s *Store) SiteSnapshot(siteID string) *domain.Site {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sites[siteID].Clone()
}

// siteLocked returns the site record, registering it with default settings
// when unseen. Callers must hold mu.
func (s *Store) siteLocked(ctx context.Context, siteID string) *domain.Site {
	site, ok := s.sites[siteID]
	if !ok {
		site = domain.NewSite(siteID, s.defaults)
		s.sites[siteID] = site

		logger.InfoKV(ctx, "Registered unseen site with default settings", "site_id", siteID)
	}

	return site
}

// sortLocked restores datetime-ascending order. Callers must hold mu.
func (s *Store) sortLocked() {
	sort.SliceStable(s.alarms, func(i, j int) bool {
		return s.alarms[i].Datetime.Before(s.alarms[j].Datetime)
	})
}

// persist rewrites the snapshot. A write failure degrades durability until
// the next successful write; it never interrupts the engine. Callers must
// hold mu.
func (s *Store) persist(ctx context.Context) {
	if s.repo == nil {
		return
	}

	if err := s.repo.Save(ctx, s.alarms); err != nil {
		logger.Errorf(ctx, "Failed to persist alarm snapshot: %v", err)
		metrics.SnapshotFailures.Inc()
	}
}
