package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/alarm-clock/internal/logger"
)

const metricPrefix = "alarm_clock_"

//nolint:gochecknoglobals // Counters are registered once and shared engine-wide.
var (
	// AlarmsAdded counts alarms accepted by the store.
	AlarmsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "alarms_added_total",
		Help: "Alarms accepted by the store",
	})

	// AlarmsFired counts alarms the clock loop handed to the ring controller.
	AlarmsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "alarms_fired_total",
		Help: "Alarms fired by the clock loop",
	})

	// AlarmsMissed counts alarms whose ringing timed out unacknowledged.
	AlarmsMissed = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "alarms_missed_total",
		Help: "Alarms whose ringing timed out unacknowledged",
	})

	// AlarmsSnoozed counts snooze answers that scheduled a follow-up alarm.
	AlarmsSnoozed = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "alarms_snoozed_total",
		Help: "Snooze answers that scheduled a follow-up alarm",
	})

	// SnapshotFailures counts failed snapshot writes.
	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "snapshot_failures_total",
		Help: "Failed alarm snapshot writes",
	})
)

// shutdownTimeout bounds how long Serve waits for in-flight scrapes on shutdown.
const shutdownTimeout = 5 * time.Second

// Serve exposes the Prometheus endpoint on addr until ctx is canceled.
// An empty addr disables the endpoint.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		//nolint:contextcheck // Shutdown needs a fresh context, the parent is already canceled.
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf(ctx, "Metrics server shutdown: %v", err)
		}
	}()

	logger.InfoKV(ctx, "Metrics endpoint listening", "address", addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
