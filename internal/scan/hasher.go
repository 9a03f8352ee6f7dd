package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sync"
	"sync/atomic"

	"gfimx/internal/fault"
	"gfimx/internal/stage"
)

// Table holds one streaming accumulator per file being hashed. The table
// lock only guards insert, lookup, and removal; folding takes the entry's
// own lock so different files hash in parallel.
type Table struct {
	mu      sync.Mutex
	entries map[string]*accumulator
}

type accumulator struct {
	mu      sync.Mutex
	sum     hash.Hash
	next    int
	final   int
	aborted bool
	done    bool
	size    int64
	parked  map[int][]byte
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: map[string]*accumulator{}}
}

// Len reports the number of files with chunks still outstanding.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) acquire(id string) *accumulator {
	t.mu.Lock()
	defer t.mu.Unlock()
	acc, ok := t.entries[id]
	if !ok {
		acc = &accumulator{sum: sha256.New(), final: -1}
		t.entries[id] = acc
	}
	return acc
}

func (t *Table) remove(id string, acc *accumulator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries[id] == acc {
		delete(t.entries, id)
	}
}

// Fold adds c to its file's accumulator. Chunks may arrive in any order;
// they are hashed strictly by Index. Once the sentinel has been seen and
// every chunk before it folded, the entry is removed and the digest
// returned with ok set. Aborted files are removed without a digest.
func (t *Table) Fold(c Chunk) (Digest, bool) {
	acc := t.acquire(c.Identity)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	switch {
	case c.Aborted:
		acc.final = c.Index
		acc.aborted = true
	case c.Data == nil:
		acc.final = c.Index
	case c.Index == acc.next:
		acc.write(c.Data)
		for {
			data, ok := acc.parked[acc.next]
			if !ok {
				break
			}
			delete(acc.parked, acc.next)
			acc.write(data)
		}
	case c.Index > acc.next:
		if acc.parked == nil {
			acc.parked = map[int][]byte{}
		}
		acc.parked[c.Index] = c.Data
	}

	if acc.done || acc.final < 0 || acc.next < acc.final {
		return Digest{}, false
	}
	acc.done = true
	acc.parked = nil
	t.remove(c.Identity, acc)
	if acc.aborted {
		return Digest{}, false
	}
	return Digest{
		Identity: c.Identity,
		Sum:      hex.EncodeToString(acc.sum.Sum(nil)),
		Size:     acc.size,
		Chunks:   acc.next,
	}, true
}

func (a *accumulator) write(data []byte) {
	a.sum.Write(data)
	a.size += int64(len(data))
	a.next++
}

type hashState struct {
	table   *Table
	metrics Metrics
	files   atomic.Int64
	bytes   atomic.Int64
}

func hashChunk(c Chunk, _ stage.Collector[Chunk], drain stage.Collector[Digest], st *hashState) error {
	digest, ok := st.table.Fold(c)
	if !ok {
		return nil
	}
	st.files.Add(1)
	st.bytes.Add(digest.Size)
	if st.metrics != nil {
		st.metrics.ObserveFile(digest.Size)
	}
	if err := drain.Send(digest); err != nil {
		return fault.Wrap(fault.ErrItem, StageHasher, "forward", digest.Identity, err)
	}
	return nil
}
