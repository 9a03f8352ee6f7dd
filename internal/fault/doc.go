// Package fault defines the error markers and context helpers shared by the
// scan engine, the baseline store, and the broker integration.
//
// Key responsibilities:
//   - Sentinel markers plus the Wrap helper so callers can classify a failure
//     with errors.Is (store down, broker down, bad policy, bad item) without
//     parsing messages.
//   - Startup classification: which failures abort the agent before any scan
//     can run.
//   - Context helpers that stamp scan identifiers and stage names so log lines
//     emitted deep inside a worker can be correlated with the scan that
//     produced them.
package fault
