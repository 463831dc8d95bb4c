// Package metrics records build observations behind a small Recorder
// interface.
//
// Components receive a Recorder and default to NoopRecorder, so call sites
// never check for nil. The CLI swaps in a PrometheusRecorder backed by a
// private registry when --metrics-file is given and dumps it in the node
// exporter textfile format after the build.
package metrics
