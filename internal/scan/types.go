package scan

import (
	"context"
	"time"

	"gfimx/internal/baseline"
)

// Stage names, also used as log components and metric labels.
const (
	StageTraverser = "traverser"
	StageReader    = "reader"
	StageHasher    = "hasher"
	StageSink      = "sink"
)

// Progress is a file being read: the next offset to read, the ordinal of
// the chunk that read will produce, and the number of data chunks the file
// holds at its listed size.
type Progress struct {
	Handle FileHandle
	Offset int64
	Index  int
	Total  int
}

// NewProgress starts reading h from offset zero. A file that grows or
// shrinks while it is read yields more or fewer chunks than Total.
func NewProgress(h FileHandle, chunkSize int) Progress {
	p := Progress{Handle: h}
	if size := h.Size(); size > 0 && chunkSize > 0 {
		p.Total = int((size + int64(chunkSize) - 1) / int64(chunkSize))
	}
	return p
}

// Chunk carries one block of file content. A chunk with nil Data that is not
// Aborted is the end-of-file sentinel; its Index is the number of data chunks
// that precede it. An Aborted chunk reports a failed read the same way.
type Chunk struct {
	Identity string
	Index    int
	Data     []byte
	Aborted  bool
}

// Sentinel reports whether c marks the end of a file.
func (c Chunk) Sentinel() bool {
	return c.Data == nil && !c.Aborted
}

// Digest is the finished hash of one file.
type Digest struct {
	Identity string
	Sum      string
	Size     int64
	Chunks   int
}

// ChangeKind classifies a detected change.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
)

// Change is a file whose state differs from the baseline.
type Change struct {
	Kind     ChangeKind       `json:"kind"`
	Identity string           `json:"path"`
	Old      *baseline.Record `json:"old,omitempty"`
	New      baseline.Record  `json:"new"`
	ScanID   string           `json:"scan_id"`
	Target   string           `json:"target"`
	Detected time.Time        `json:"detected_at"`
}

// Reporter publishes changes as they are detected.
type Reporter interface {
	Report(ctx context.Context, change Change) error
}

// Metrics receives pipeline observations.
type Metrics interface {
	ObserveStage(stage, outcome string)
	ObserveFile(bytes int64)
	ObserveChange(kind string)
	ObserveScan(target string, elapsed time.Duration)
}
