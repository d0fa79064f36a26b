// Package config loads, validates and saves the daemon's YAML settings:
// broker connection, snapshot file location, clock tick interval and the
// per-site ringing and snooze settings.
package config
