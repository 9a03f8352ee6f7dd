package baseline

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS file_metadata (
    path       TEXT PRIMARY KEY,
    uid        BIGINT NOT NULL,
    gid        BIGINT NOT NULL,
    perms      BIGINT NOT NULL,
    hash       TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps the baseline in a shared PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects, pings, and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, unavailable("parse dsn", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, unavailable("init schema", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Lookup returns the record for path or nil when absent.
func (s *PostgresStore) Lookup(ctx context.Context, path string) (*Record, error) {
	var (
		rec            Record
		uid, gid, mode int64
	)
	err := s.pool.QueryRow(ctx,
		"SELECT path, uid, gid, perms, hash, updated_at FROM file_metadata WHERE path = $1", path,
	).Scan(&rec.Path, &uid, &gid, &mode, &rec.Hash, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("lookup", err)
	}
	rec.UID, rec.GID, rec.Perms = uint32(uid), uint32(gid), uint32(mode)
	return &rec, nil
}

// Upsert inserts or replaces the record keyed by path.
func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO file_metadata (path, uid, gid, perms, hash, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (path) DO UPDATE SET
    uid = EXCLUDED.uid,
    gid = EXCLUDED.gid,
    perms = EXCLUDED.perms,
    hash = EXCLUDED.hash,
    updated_at = EXCLUDED.updated_at`,
		rec.Path, int64(rec.UID), int64(rec.GID), int64(rec.Perms), rec.Hash, rec.UpdatedAt)
	if err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

// List returns every record ordered by path.
func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, "SELECT path, uid, gid, perms, hash, updated_at FROM file_metadata ORDER BY path")
	if err != nil {
		return nil, unavailable("list", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			rec            Record
			uid, gid, mode int64
		)
		if err := row.Scan(&rec.Path, &uid, &gid, &mode, &rec.Hash, &rec.UpdatedAt); err != nil {
			return Record{}, err
		}
		rec.UID, rec.GID, rec.Perms = uint32(uid), uint32(gid), uint32(mode)
		return rec, nil
	})
	if err != nil {
		return nil, unavailable("list", err)
	}
	return records, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
