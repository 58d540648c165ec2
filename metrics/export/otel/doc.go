// Package otel mirrors authgate engine counters into OpenTelemetry
// observable instruments.
//
// [NewExporter] creates one Int64ObservableCounter per counter and one
// Int64ObservableGauge per cumulative histogram bucket, all fed by a single
// callback that reads [authgate.Engine.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
