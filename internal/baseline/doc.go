// Package baseline persists the last known metadata and content digest of
// every monitored file. The scan sink looks records up by path and upserts
// them when a file is added or modified.
//
// SQLiteStore (modernc.org/sqlite, no cgo) is the default and lives under the
// agent state directory. PostgresStore (pgx) lets a fleet of agents share one
// database. Every backend error wraps fault.ErrStoreUnavailable.
package baseline
