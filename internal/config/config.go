package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
)

// Config holds the settings for the alarm clock daemon.
type Config struct {
	// MQTT configures the connection to the voice assistant's message broker.
	MQTT MQTTConfig `yaml:"mqtt"`
	// SnapshotFile is the path of the JSON file storing pending alarms.
	SnapshotFile string `yaml:"snapshot_file"`
	// TickInterval is how often the clock loop scans for due alarms.
	TickInterval time.Duration `yaml:"tick_interval"`
	// MetricsAddress is the listen address of the Prometheus endpoint.
	// Empty disables the endpoint.
	MetricsAddress string `yaml:"metrics_address"`
	// Ringtone is the default ringtone sound file, overridable per site.
	Ringtone string `yaml:"ringtone"`
	// RingingTimeoutSeconds is the default ringing timeout, overridable per site.
	RingingTimeoutSeconds int `yaml:"ringing_timeout_seconds"`
	// RingingVolumePercent is the default playback volume, overridable per site.
	RingingVolumePercent int `yaml:"ringing_volume_percent"`
	// Snooze configures the snooze dialog offered after a hotword stop.
	Snooze SnoozeConfig `yaml:"snooze"`
	// Sites maps room names to per-site settings.
	Sites map[string]*SiteConfig `yaml:"sites"`
}

// MQTTConfig holds broker connection parameters.
type MQTTConfig struct {
	// Broker is the broker URL (e.g. mqtt://localhost:1883).
	Broker string `yaml:"broker"`
	// Username is the optional broker username.
	Username string `yaml:"username"`
	// Password is the optional broker password.
	Password string `yaml:"password"`
	// ClientID identifies this daemon on the broker.
	ClientID string `yaml:"client_id"`
}

// SnoozeConfig holds the snooze policy shared by all sites.
type SnoozeConfig struct {
	// Enabled controls whether stopping a ring offers a snooze dialog.
	Enabled bool `yaml:"enabled"`
	// DefaultMinutes is the snooze duration used when the user names none.
	DefaultMinutes int `yaml:"default_minutes"`
	// MaxMinutes caps user-requested snooze durations.
	MaxMinutes int `yaml:"max_minutes"`
}

// SiteConfig holds the settings of one room's satellite.
type SiteConfig struct {
	// SiteID is the stable identifier the satellite uses on the wire.
	SiteID string `yaml:"site_id"`
	// RingingTimeoutSeconds overrides the global ringing timeout when non-zero.
	RingingTimeoutSeconds int `yaml:"ringing_timeout_seconds"`
	// Ringtone overrides the global ringtone sound file when non-empty.
	Ringtone string `yaml:"ringtone"`
	// RingingVolumePercent overrides the global playback volume when non-zero.
	RingingVolumePercent int `yaml:"ringing_volume_percent"`
}

const (
	// DefaultConfigFilename is the default filename for daemon settings.
	DefaultConfigFilename = "alarm-clock-settings.yaml"

	// DefaultSnapshotFilename is the default filename for the alarm snapshot JSON.
	DefaultSnapshotFilename = "alarm-clock-snapshot.json"

	// DefaultTickInterval is the default clock loop scan interval.
	DefaultTickInterval = 2 * time.Second

	// DefaultRingingTimeoutSeconds is the default ringing timeout.
	DefaultRingingTimeoutSeconds = 30

	// DefaultRingingVolumePercent is the default playback volume.
	DefaultRingingVolumePercent = 60

	// DefaultSnoozeMinutes is the default snooze duration.
	DefaultSnoozeMinutes = 5

	// DefaultSnoozeMaxMinutes is the default snooze duration cap.
	DefaultSnoozeMaxMinutes = 15

	// DefaultClientID is the default MQTT client identifier.
	DefaultClientID = "alarm-clock"

	// DefaultRingtone is the default ringtone sound file.
	DefaultRingtone = "resources/alarm-sound.wav"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBrokerRequired is returned when the MQTT broker URL is missing.
	errBrokerRequired = errors.New("mqtt broker URL must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and backfills defaults in place.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.MQTT.Broker == "" {
		return errBrokerRequired
	}

	if _, err := url.Parse(cfg.MQTT.Broker); err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultClientID
	}

	if cfg.SnapshotFile == "" {
		cfg.SnapshotFile = DefaultSnapshotFilename
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	if cfg.Ringtone == "" {
		cfg.Ringtone = DefaultRingtone
	}

	if cfg.RingingTimeoutSeconds <= 0 {
		cfg.RingingTimeoutSeconds = DefaultRingingTimeoutSeconds
	}

	if cfg.RingingVolumePercent <= 0 || cfg.RingingVolumePercent > 100 {
		cfg.RingingVolumePercent = DefaultRingingVolumePercent
	}

	if cfg.Snooze.DefaultMinutes <= 0 {
		cfg.Snooze.DefaultMinutes = DefaultSnoozeMinutes
	}

	if cfg.Snooze.MaxMinutes < cfg.Snooze.DefaultMinutes {
		// Keep the clamp range [default, max] well-formed for any default.
		cfg.Snooze.MaxMinutes = max(DefaultSnoozeMaxMinutes, cfg.Snooze.DefaultMinutes)
	}

	for room, site := range cfg.Sites {
		if site == nil || site.SiteID == "" {
			return fmt.Errorf("room %q: site_id must be provided", room)
		}
	}

	return nil
}

// SiteSettings resolves the effective settings for one site,
// applying global defaults where the site config leaves fields unset.
func (cfg *Config) SiteSettings(site *SiteConfig) domain.SiteSettings {
	settings := cfg.DefaultSiteSettings()
	if site == nil {
		return settings
	}

	if site.RingingTimeoutSeconds > 0 {
		settings.RingingTimeout = time.Duration(site.RingingTimeoutSeconds) * time.Second
	}

	if site.Ringtone != "" {
		settings.RingtoneResource = site.Ringtone
	}

	if site.RingingVolumePercent > 0 {
		settings.RingingVolume = site.RingingVolumePercent
	}

	return settings
}

// DefaultSiteSettings returns the settings applied to sites that are not
// present in the configuration (lazily registered ones included).
func (cfg *Config) DefaultSiteSettings() domain.SiteSettings {
	return domain.SiteSettings{
		RingingTimeout:       time.Duration(cfg.RingingTimeoutSeconds) * time.Second,
		RingtoneResource:     cfg.Ringtone,
		RingingVolume:        cfg.RingingVolumePercent,
		SnoozeEnabled:        cfg.Snooze.Enabled,
		SnoozeDefaultMinutes: cfg.Snooze.DefaultMinutes,
		SnoozeMaxMinutes:     cfg.Snooze.MaxMinutes,
	}
}
