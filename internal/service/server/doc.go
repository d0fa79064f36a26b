// Package server wires the alarm clock daemon together: configuration,
// snapshot repository, engine, notification gateway, intent handler and
// the metrics endpoint.
package server
