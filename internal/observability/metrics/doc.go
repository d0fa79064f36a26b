// Package metrics registers the engine's Prometheus counters and serves the
// /metrics endpoint.
package metrics
