package logging

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// LogSink receives formatted log lines. The broker implements it by pushing
// onto the agent's remote log list.
type LogSink interface {
	Log(ctx context.Context, msg string) error
}

const (
	defaultBrokerBuffer  = 256
	brokerSendTimeout    = 2 * time.Second
	brokerTimestampStyle = "2006-01-02 15:04:05.000"
)

type brokerShipper struct {
	sink    LogSink
	lines   chan string
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
	done    chan struct{}
}

// BrokerHandler formats records as "<ts> | <component> => [<LEVEL>]: <msg> k=v"
// and ships them to a LogSink from a background goroutine. Handle never
// blocks: when the buffer is full the line is dropped and counted.
type BrokerHandler struct {
	shipper *brokerShipper
	level   slog.Leveler
	attrs   []slog.Attr
	groups  []string
}

// NewBrokerHandler starts the shipping goroutine. Call Close to flush and stop it.
func NewBrokerHandler(sink LogSink, level slog.Leveler, buffer int) *BrokerHandler {
	if buffer <= 0 {
		buffer = defaultBrokerBuffer
	}
	if level == nil {
		level = slog.LevelInfo
	}
	s := &brokerShipper{
		sink:  sink,
		lines: make(chan string, buffer),
		done:  make(chan struct{}),
	}
	go s.run()
	return &BrokerHandler{shipper: s, level: level}
}

func (s *brokerShipper) run() {
	defer close(s.done)
	for line := range s.lines {
		ctx, cancel := context.WithTimeout(context.Background(), brokerSendTimeout)
		if err := s.sink.Log(ctx, line); err != nil {
			s.failed.Add(1)
		}
		cancel()
	}
}

func (h *BrokerHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *BrokerHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	component, kvs := collectFields(h.groups, h.attrs, record)
	if component == "" {
		component = "gfimx"
	}

	var buf bytes.Buffer
	buf.WriteString(ts.Format(brokerTimestampStyle))
	buf.WriteString(" | ")
	buf.WriteString(component)
	buf.WriteString(" => [")
	buf.WriteString(levelLabel(record.Level))
	buf.WriteString("]: ")
	writeMessage(&buf, record.Message)
	writeFields(&buf, kvs)

	h.shipper.offer(buf.String())
	return nil
}

func (s *brokerShipper) offer(line string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.lines <- line:
	default:
		s.dropped.Add(1)
	}
}

func (h *BrokerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), qualify(h.groups, attrs)...)
	return &clone
}

func (h *BrokerHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// Dropped reports how many lines were discarded because the buffer was full
// or the handler was closed.
func (h *BrokerHandler) Dropped() int64 {
	return h.shipper.dropped.Load()
}

// Failed reports how many lines the sink rejected.
func (h *BrokerHandler) Failed() int64 {
	return h.shipper.failed.Load()
}

// Close stops accepting lines and waits until buffered ones have been
// shipped or ctx expires.
func (h *BrokerHandler) Close(ctx context.Context) error {
	s := h.shipper
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
