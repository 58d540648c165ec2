// Package prometheus exposes authgate engine counters as a Prometheus
// collector.
//
// [NewCollector] reads [authgate.Engine.MetricsSnapshot] on every scrape and
// emits authgate_*_total counters plus the
// authgate_get_session_latency_seconds histogram. Register it on any
// registry, or use [Handler] for a self-contained /metrics endpoint.
//
// # What this package must NOT do
//
//   - Register anything on the global Prometheus registry.
//   - Mutate engine state.
package prometheus
