// Package logging assembles structured slog loggers and formatting helpers used
// across the gfimx agent.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline workers can tag log
// lines with scan identifiers, stage names, and targets. BrokerHandler ships a
// copy of every record to the broker's remote log list without ever blocking
// the caller. The package also provides a no-op logger for tests and wiring
// code that cannot fail.
package logging
