// Package prometheus renders engine metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts an [authcore.Engine] and exposes an
// [net/http.Handler]. Counter names are prefixed authcore_*_total; the single
// histogram is authcore_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the
//     Handler where they want it.
//   - Mutate engine state.
package prometheus
