package scan

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"gfimx/internal/fault"
	"gfimx/internal/logging"
	"gfimx/internal/policy"
	"gfimx/internal/stage"
)

// traverseState is shared by all traverser workers of one scan.
type traverseState struct {
	ctx    context.Context
	files  *policy.Filter
	dirs   *policy.Filter
	open   OpenFunc
	chunk  int
	logger *slog.Logger

	listed  atomic.Int64
	found   atomic.Int64
	skipped atomic.Int64
}

// traverse lists one directory. Subdirectories go back to the traverser
// through feedback, regular files go to the reader as fresh Progress items.
// Symlinks are never followed and other entry types are skipped. Hard links
// and bind mounts that loop back into the tree are not detected.
func traverse(dir string, feedback stage.Collector[string], drain stage.Collector[Progress], st *traverseState) error {
	if st.ctx.Err() != nil {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fault.Wrap(fault.ErrItem, StageTraverser, "list", dir, err)
	}
	st.listed.Add(1)

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		mode := entry.Type()
		switch {
		case mode&fs.ModeSymlink != 0:
			st.skipped.Add(1)
		case entry.IsDir():
			if st.dirs.IgnoreDir(path) {
				st.skipped.Add(1)
				continue
			}
			if err := feedback.Send(path); err != nil {
				return fault.Wrap(fault.ErrItem, StageTraverser, "resubmit", path, err)
			}
		case mode.IsRegular():
			if st.files.IgnoreFile(path) {
				st.skipped.Add(1)
				continue
			}
			info, err := entry.Info()
			if err != nil {
				st.logger.Debug("entry vanished during listing", logging.Path(path), logging.Error(err))
				continue
			}
			handle := st.open(path, info.Size())
			if err := drain.Send(NewProgress(handle, st.chunk)); err != nil {
				_ = handle.Close()
				return fault.Wrap(fault.ErrItem, StageTraverser, "forward", path, err)
			}
			st.found.Add(1)
		default:
			st.skipped.Add(1)
		}
	}
	return nil
}
