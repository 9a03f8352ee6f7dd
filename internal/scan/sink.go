package scan

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"gfimx/internal/baseline"
	"gfimx/internal/config"
	"gfimx/internal/fault"
	"gfimx/internal/logging"
	"gfimx/internal/stage"
)

// Owner is the ownership and permission state of a file.
type Owner struct {
	UID   uint32
	GID   uint32
	Perms uint32
}

// StatFunc reads ownership without following symlinks.
type StatFunc func(path string) (Owner, error)

// LstatOwner reads uid, gid, and permission bits with lstat(2).
func LstatOwner(path string) (Owner, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Owner{}, err
	}
	return Owner{UID: st.Uid, GID: st.Gid, Perms: uint32(st.Mode) & 0o7777}, nil
}

type sinkState struct {
	ctx     context.Context
	store   baseline.Store
	compare string
	stat    StatFunc
	now     func() time.Time
	logger  *slog.Logger

	added     atomic.Int64
	modified  atomic.Int64
	unchanged atomic.Int64
}

// differs applies the configured comparison mode. Content mode lets the
// digest alone decide; metadata mode also compares owner, group, and mode.
func (st *sinkState) differs(old, current baseline.Record) bool {
	if st.compare == config.CompareMetadata {
		return !old.SameMetadata(current)
	}
	return !old.SameContent(current)
}

func sink(d Digest, _ stage.Collector[Digest], drain stage.Collector[Change], st *sinkState) error {
	owner, err := st.stat(d.Identity)
	if err != nil {
		return fault.Wrap(fault.ErrItem, StageSink, "stat", d.Identity, err)
	}
	current := baseline.Record{
		Path:      d.Identity,
		UID:       owner.UID,
		GID:       owner.GID,
		Perms:     owner.Perms,
		Hash:      d.Sum,
		UpdatedAt: st.now(),
	}

	old, err := st.store.Lookup(st.ctx, d.Identity)
	if err != nil {
		return err
	}

	var kind ChangeKind
	switch {
	case old == nil:
		kind = ChangeAdded
	case st.differs(*old, current):
		kind = ChangeModified
	default:
		st.unchanged.Add(1)
		return nil
	}

	// A change is reported only once the baseline holds it.
	if err := st.store.Upsert(st.ctx, current); err != nil {
		return err
	}
	if kind == ChangeAdded {
		st.added.Add(1)
	} else {
		st.modified.Add(1)
	}

	change := Change{Kind: kind, Identity: d.Identity, Old: old, New: current, Detected: current.UpdatedAt}
	if drain.Bound() {
		if err := drain.Send(change); err != nil {
			st.logger.Warn("change not forwarded", logging.Path(d.Identity), logging.Error(err))
		}
	}
	return nil
}
