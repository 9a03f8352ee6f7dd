package stage

import (
	"errors"
	"testing"
	"time"
)

func TestQueueFIFOAndClose(t *testing.T) {
	q := NewQueue[int]()
	for i := 1; i <= 3; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 queued items, got %d", q.Len())
	}
	if v, ok := q.Next(0); !ok || v != 1 {
		t.Fatalf("expected head 1, got %d (%v)", v, ok)
	}

	q.Close()
	if err := q.Push(4); !errors.Is(err, ErrStageClosed) {
		t.Fatalf("expected ErrStageClosed after close, got %v", err)
	}
	rest := q.Drain()
	if len(rest) != 2 || rest[0] != 2 || rest[1] != 3 {
		t.Fatalf("unexpected drained items %v", rest)
	}
	if _, ok := q.Next(10 * time.Millisecond); ok {
		t.Fatal("expected closed empty queue to return immediately with nothing")
	}
}

func TestQueueNextWaitsForPush(t *testing.T) {
	q := NewQueue[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Push("late")
	}()
	v, ok := q.Next(time.Second)
	if !ok || v != "late" {
		t.Fatalf("expected late item, got %q (%v)", v, ok)
	}
}

func TestQueueNextTimesOut(t *testing.T) {
	q := NewQueue[int]()
	start := time.Now()
	if _, ok := q.Next(20 * time.Millisecond); ok {
		t.Fatal("expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("expected Next to wait, returned after %v", elapsed)
	}
}

func TestQueueWaitDrainsBeforeReportingClose(t *testing.T) {
	q := NewQueue[int]()
	_ = q.Push(1)
	_ = q.Push(2)
	q.Close()
	for _, want := range []int{1, 2} {
		if v, ok := q.wait(); !ok || v != want {
			t.Fatalf("expected %d, got %d (%v)", want, v, ok)
		}
	}
	if _, ok := q.wait(); ok {
		t.Fatal("expected closed empty queue to report done")
	}

	late := NewQueue[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = late.Push(7)
	}()
	if v, ok := late.wait(); !ok || v != 7 {
		t.Fatalf("expected wait to block until push, got %d (%v)", v, ok)
	}
}

func TestZeroCollectorHasNoDrain(t *testing.T) {
	var c Collector[int]
	if c.Bound() {
		t.Fatal("zero collector should be unbound")
	}
	if err := c.Send(1); !errors.Is(err, ErrNoDrain) {
		t.Fatalf("expected ErrNoDrain, got %v", err)
	}
}
