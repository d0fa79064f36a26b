package engine

import (
	"context"
	"time"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/observability/metrics"
)

// clock is the single periodic task that fires due alarms. Alarms fire
// within one tick interval of their scheduled minute, never earlier.
type clock struct {
	// store holds the alarm set the loop scans.
	store *Store
	// tick is the scan interval.
	tick time.Duration
	// now produces the current time; replaceable in tests.
	now func() time.Time
	// fire hands a due alarm to the ring controller.
	fire func(ctx context.Context, a *domain.Alarm)
}

// run scans for due alarms until ctx is canceled.
func (c *clock) run(ctx context.Context) {
	ctx = logger.WithName(ctx, "clock")
	logger.InfoKV(ctx, "Clock loop started", "tick_interval", c.tick)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Clock loop stopped")

			return
		case <-ticker.C:
			c.scan(ctx)
		}
	}
}

// scan fires every alarm due at the current truncated minute exactly once.
// The passed flag is flipped under the store lock, so even overlapping
// scans cannot double-fire an alarm.
func (c *clock) scan(ctx context.Context) {
	now := domain.Truncate(c.now())

	for _, a := range c.store.MarkPassedDue(ctx, now) {
		logger.InfoKV(ctx, "Alarm due",
			"id", a.ID, "site_id", a.SiteID, "datetime", a.Datetime.Format(domain.TimeLayout))
		metrics.AlarmsFired.Inc()

		c.fire(ctx, a)
	}
}
