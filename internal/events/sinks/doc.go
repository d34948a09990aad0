// Package sinks contains events.Sink implementations: structured logging,
// Prometheus counters and message publishing.
package sinks
