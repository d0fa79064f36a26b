package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-clock/internal/config"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/service/server"
	"github.com/oshokin/alarm-clock/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// snapshotFile path where pending alarms are persisted.
	snapshotFile string
	// metricsAddress is the optional metrics endpoint listen address.
	metricsAddress string
	// logLevel is the minimum log level.
	logLevel string

	// rootCmd represents the base command for running the alarm clock daemon.
	rootCmd = &cobra.Command{
		Use:   "alarmclock",
		Short: "Run the voice-triggered alarm clock daemon.",
		Long: `Starts the alarm clock daemon that schedules alarms, rings them on the
configured sites and reacts to spoken commands.

Alarms are persisted to a JSON snapshot for recovery across restarts.
The daemon talks to the voice assistant over its MQTT broker; broker
settings and per-room sites come from the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &server.Options{
				ConfigPath:     configPath,
				SnapshotFile:   snapshotFile,
				MetricsAddress: metricsAddress,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the alarmclock CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&snapshotFile, "snapshot-file", "s", "", "path to persist pending alarms (overrides config)")
	rootCmd.Flags().
		StringVar(&metricsAddress, "metrics-address", "", "metrics endpoint listen address (overrides config)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "minimum log level (debug, info, warn, error)")
}
