package scan

import (
	"context"
	"errors"
	"io"

	"gfimx/internal/fault"
	"gfimx/internal/stage"
)

type readState struct {
	ctx       context.Context
	chunkSize int
}

// read performs one positioned read and either resubmits the next offset or
// emits the end-of-file sentinel. On any failure the handle is closed and an
// aborted chunk tells the hasher to discard the file.
func read(p Progress, feedback stage.Collector[Progress], drain stage.Collector[Chunk], st *readState) error {
	id := p.Handle.Identity()
	if st.ctx.Err() != nil {
		abort(p, drain)
		return nil
	}

	buf := make([]byte, st.chunkSize)
	n, err := p.Handle.ReadAt(p.Offset, buf)
	if n > 0 {
		if sendErr := drain.Send(Chunk{Identity: id, Index: p.Index, Data: buf[:n]}); sendErr != nil {
			_ = p.Handle.Close()
			return fault.Wrap(fault.ErrItem, StageReader, "forward", id, sendErr)
		}
		next := Progress{Handle: p.Handle, Offset: p.Offset + int64(n), Index: p.Index + 1, Total: p.Total}
		if errors.Is(err, io.EOF) {
			return finish(next, drain)
		}
		if err != nil {
			abort(next, drain)
			return fault.Wrap(fault.ErrItem, StageReader, "read", id, err)
		}
		if sendErr := feedback.Send(next); sendErr != nil {
			abort(next, drain)
			return fault.Wrap(fault.ErrItem, StageReader, "resubmit", id, sendErr)
		}
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return finish(p, drain)
	}
	abort(p, drain)
	return fault.Wrap(fault.ErrItem, StageReader, "read", id, err)
}

func finish(p Progress, drain stage.Collector[Chunk]) error {
	id := p.Handle.Identity()
	if err := p.Handle.Close(); err != nil {
		_ = drain.Send(Chunk{Identity: id, Index: p.Index, Aborted: true})
		return fault.Wrap(fault.ErrItem, StageReader, "close", id, err)
	}
	if err := drain.Send(Chunk{Identity: id, Index: p.Index}); err != nil {
		return fault.Wrap(fault.ErrItem, StageReader, "forward", id, err)
	}
	return nil
}

func abort(p Progress, drain stage.Collector[Chunk]) {
	_ = p.Handle.Close()
	_ = drain.Send(Chunk{Identity: p.Handle.Identity(), Index: p.Index, Aborted: true})
}
