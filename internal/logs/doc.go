// Package logs reads the agent's local log file for the CLI.
//
// Last returns the final lines with bounded memory; Follow then streams
// appended lines, driven by filesystem notifications rather than polling.
// A file that shrinks is treated as rotated and re-read from the start.
package logs
