// Package metrics exposes scan pipeline counters in Prometheus format.
//
// A Recorder owns its own registry so tests and one-shot CLI scans never
// touch the process-global default registry. The daemon serves Handler on
// the configured metrics bind address.
package metrics
