// Package notifications delivers change alerts via ntfy.
//
// The daemon calls NotifyChanges after every scan that finds added or
// modified files and NotifyError when a monitor stops. With no topic
// configured NewService returns a no-op, so callers never check.
package notifications
