package baseline

import (
	"context"
	"fmt"
	"time"

	"gfimx/internal/config"
	"gfimx/internal/fault"
)

// Record is the stored state of one file.
type Record struct {
	Path      string    `json:"path"`
	UID       uint32    `json:"uid"`
	GID       uint32    `json:"gid"`
	Perms     uint32    `json:"perms"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SameContent reports whether both records carry the same digest.
func (r Record) SameContent(other Record) bool {
	return r.Hash == other.Hash
}

// SameMetadata reports whether digest, owner, group, and permission bits match.
func (r Record) SameMetadata(other Record) bool {
	return r.Hash == other.Hash && r.UID == other.UID && r.GID == other.GID && r.Perms == other.Perms
}

// Store is the baseline persistence contract.
type Store interface {
	// Lookup returns nil, nil when no record exists for path.
	Lookup(ctx context.Context, path string) (*Record, error)
	Upsert(ctx context.Context, rec Record) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Open builds the store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		return OpenSQLite(ctx, cfg.Store.Path)
	case config.StorePostgres:
		return OpenPostgres(ctx, cfg.Store.DSN)
	default:
		return nil, fault.Wrap(fault.ErrConfiguration, "baseline", "open",
			fmt.Sprintf("unsupported driver %q", cfg.Store.Driver), nil)
	}
}

func unavailable(operation string, err error) error {
	return fault.Wrap(fault.ErrStoreUnavailable, "baseline", operation, "", err)
}
