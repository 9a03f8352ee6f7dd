// Package policy parses and validates the TOML monitoring policy an agent
// receives from the broker (or reads from disk), and compiles its ignore
// rules into filters the scan pipeline can apply.
//
// A policy has an optional [watch] section (directories monitored for
// writes) and any number of named [schedule.<name>] sections, each scanned
// on an interval in seconds or a five-field cron expression.
package policy
