// Package internaldefs exposes the metric name and bucket definitions shared
// by exporter implementations.
//
// Counter and histogram definitions live here so the Prometheus and OTel
// exporters render identical names and bounds. Changing a definition here
// changes every exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
