// Package report publishes detected changes.
//
// Reporters receive each scan.Change as the scan driver collects it. The
// daemon combines them with Multi: every change is always logged, recorded
// in the broker details hash when a broker is configured, and produced to
// Kafka when brokers are listed under [report].
package report
