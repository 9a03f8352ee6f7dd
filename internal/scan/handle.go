package scan

import (
	"errors"
	"io"
	"os"
	"sync"
)

// ErrHandleClosed is returned by a second Close or by a read after Close.
var ErrHandleClosed = errors.New("file handle closed")

// FileHandle is a positioned reader over one file. Close must be called
// exactly once, when the file has been read to the end or a read failed.
type FileHandle interface {
	Identity() string
	Size() int64
	// ReadAt fills buf from offset. At end of file it returns 0 and io.EOF.
	ReadAt(offset int64, buf []byte) (int, error)
	Close() error
}

// OpenFunc creates a handle for path; size is the size seen at listing time.
type OpenFunc func(path string, size int64) FileHandle

// OpenHandle returns a handle that opens the file lazily on its first read,
// so listing a large directory never holds more descriptors than there are
// files being read.
func OpenHandle(path string, size int64) FileHandle {
	return &fileHandle{path: path, size: size}
}

type fileHandle struct {
	path string
	size int64

	mu     sync.Mutex
	file   *os.File
	closed bool
}

func (h *fileHandle) Identity() string { return h.path }

func (h *fileHandle) Size() int64 { return h.size }

func (h *fileHandle) ReadAt(offset int64, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrHandleClosed
	}
	if h.file == nil {
		f, err := os.Open(h.path)
		if err != nil {
			return 0, err
		}
		h.file = f
	}
	n, err := h.file.ReadAt(buf, offset)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (h *fileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.closed = true
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}
