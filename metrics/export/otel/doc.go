// Package otel binds engine metrics to OpenTelemetry instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter
// and Int64ObservableGauge instruments per histogram bucket. One callback
// reads [authcore.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
