package server

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/alarm-clock/internal/config"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/engine"
	"github.com/oshokin/alarm-clock/internal/gateway/hermes"
	"github.com/oshokin/alarm-clock/internal/intents"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/observability/metrics"
	"github.com/oshokin/alarm-clock/internal/repository/snapshot"
)

// Options controls the alarm clock daemon process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// SnapshotFile provides an optional override for the alarm snapshot path.
	SnapshotFile string
	// MetricsAddress provides an optional override for the metrics listen address.
	MetricsAddress string
}

// disconnectTimeout bounds the broker disconnect on shutdown.
const disconnectTimeout = 5 * time.Second

// Run starts the alarm clock daemon and blocks until context is canceled.
// It restores the persisted alarms, connects to the broker and runs the
// clock loop, event dispatcher and intent handler.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-clock")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Command line options override the configuration file.
	snapshotFile := settings.SnapshotFile
	if opts.SnapshotFile != "" {
		snapshotFile = opts.SnapshotFile
	}

	metricsAddress := settings.MetricsAddress
	if opts.MetricsAddress != "" {
		metricsAddress = opts.MetricsAddress
	}

	// Resolve the configured rooms into site settings and the spoken-name
	// lookup the intent handler uses.
	sites := make(map[string]domain.SiteSettings, len(settings.Sites))
	rooms := make(map[string]string, len(settings.Sites))

	for room, site := range settings.Sites {
		sites[site.SiteID] = settings.SiteSettings(site)
		rooms[room] = site.SiteID
	}

	repo := snapshot.NewFileRepository(snapshotFile)

	store, err := engine.NewStore(ctx, repo, sites, settings.DefaultSiteSettings(), nil)
	if err != nil {
		return fmt.Errorf("initialise store: %w", err)
	}

	gateway := hermes.NewClient(settings.MQTT)
	eng := engine.New(store, gateway, engine.WithTickInterval(settings.TickInterval))

	if metricsAddress != "" {
		go func() {
			if err := metrics.Serve(ctx, metricsAddress); err != nil {
				logger.Errorf(ctx, "Metrics endpoint failed: %v", err)
			}
		}()
	}

	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	handler := intents.NewHandler(eng, gateway, rooms)

	go handler.Run(ctx, gateway.Intents())

	logger.InfoKV(ctx, "Alarm clock running",
		"broker", settings.MQTT.Broker,
		"snapshot_file", snapshotFile,
		"sites", len(sites))

	runErr := eng.Run(ctx, gateway.Events())

	// The run context is already canceled here, so give the disconnect its
	// own deadline.
	stopCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if err := gateway.Stop(stopCtx); err != nil {
		logger.Warnf(ctx, "Broker disconnect failed: %v", err)
	}

	logger.Info(ctx, "Alarm clock stopped")

	return runErr
}
