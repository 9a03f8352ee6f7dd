// Package daemon coordinates the long-running gfimx agent.
//
// It fetches the agent's policy from the broker (or a local policy file),
// turns it into monitors with BuildMonitors, and runs the filesystem watcher
// and the schedule runner against one shared scanner. A flock in the state
// directory prevents a second instance. When [metrics].bind is set, an HTTP
// server exposes Prometheus metrics, daemon status, and the baseline.
//
// Keep orchestration logic here: scanning lives in internal/scan and the
// monitors in internal/watcher and internal/schedule, while the daemon
// focuses on startup, shutdown, and high level coordination.
package daemon
