package stage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"gfimx/internal/logging"
)

// Handler processes one item. feedback resubmits items to the same stage,
// drain forwards results to the next stage, shared is the value passed to
// Attach. A returned error is logged and counted; the worker continues.
type Handler[T, D, S any] func(item T, feedback Collector[T], drain Collector[D], shared S) error

// Outcomes reported to an Observer.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomePanicked  = "panicked"
)

// Observer is notified after every handler invocation.
type Observer func(stage, outcome string)

// Stats is a snapshot of a stage's counters.
type Stats struct {
	Dispatched int64
	Processed  int64
	Failed     int64
	IdlePolls  int64
}

// Option configures a Stage.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer Observer
}

// WithLogger sets the logger used for item failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver registers a callback invoked after every handler call.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

// Stage is a queue plus a worker pool consuming T and emitting D.
type Stage[T, D any] struct {
	name     string
	logger   *slog.Logger
	observer Observer
	queue    *Queue[T]

	mu      sync.Mutex
	drain   Collector[D]
	workers []*Queue[T]
	started bool

	wg       sync.WaitGroup
	shutdown atomic.Bool
	busy     atomic.Int64
	done     chan struct{}

	dispatched atomic.Int64
	processed  atomic.Int64
	failed     atomic.Int64
	idle       atomic.Int64
}

// New creates a stage with an empty queue and no workers. Items sent to its
// collector before workers attach are held in the queue.
func New[T, D any](name string, opts ...Option) *Stage[T, D] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stage[T, D]{
		name:     name,
		logger:   logger,
		observer: o.observer,
		queue:    NewQueue[T](),
		done:     make(chan struct{}),
	}
}

// Name returns the stage name.
func (s *Stage[T, D]) Name() string { return s.name }

// Collector returns a send handle on the stage's input queue.
func (s *Stage[T, D]) Collector() Collector[T] {
	return s.queue.Collector()
}

// SetDrain binds the collector results are forwarded to. It may be called
// any number of times before Run.
func (s *Stage[T, D]) SetDrain(drain Collector[D]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStageRunning
	}
	s.drain = drain
	return nil
}

// Attach spawns n workers running handler. Each worker owns a private
// unbounded queue fed by the dispatch loop, so a slow worker never holds up
// routing to the others.
func Attach[T, D, S any](s *Stage[T, D], n int, handler Handler[T, D, S], shared S) error {
	if n <= 0 {
		return fmt.Errorf("attach %s: %w", s.name, ErrNoWorkers)
	}
	if handler == nil {
		return fmt.Errorf("attach %s: nil handler", s.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStageRunning
	}
	feedback := s.queue.Collector()
	for i := 0; i < n; i++ {
		inbox := NewQueue[T]()
		s.workers = append(s.workers, inbox)
		s.wg.Add(1)
		go s.work(len(s.workers)-1, inbox, func(item T) error {
			return handler(item, feedback, s.drain, shared)
		})
	}
	return nil
}

// work runs until its inbox is closed and empty. The dispatch loop closes
// inboxes only after setting the shutdown flag, so a closed inbox always
// means the stage is finished.
func (s *Stage[T, D]) work(id int, inbox *Queue[T], process func(T) error) {
	defer s.wg.Done()
	for {
		item, ok := inbox.wait()
		if !ok {
			return
		}
		s.invoke(id, item, process)
	}
}

func (s *Stage[T, D]) invoke(id int, item T, process func(T) error) {
	outcome := OutcomeProcessed
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomePanicked
			s.failed.Add(1)
			logging.ErrorWithContext(s.logger, "stage handler panicked", "stage_panic",
				logging.String(logging.FieldStage, s.name),
				logging.Int("worker", id),
				logging.String("panic", fmt.Sprint(r)),
			)
		}
		s.busy.Add(-1)
		if s.observer != nil {
			s.observer(s.name, outcome)
		}
	}()
	if err := process(item); err != nil {
		outcome = OutcomeFailed
		s.failed.Add(1)
		if !errors.Is(err, ErrStageClosed) {
			logging.WarnWithContext(s.logger, "stage item failed", "stage_item_failed",
				logging.String(logging.FieldStage, s.name),
				logging.Int("worker", id),
				logging.Error(err),
			)
		}
		return
	}
	s.processed.Add(1)
}

// Run drives the dispatch loop until the schedule ends it, then shuts the
// stage down: the queue is closed, any items still queued are routed to
// workers, worker inboxes are closed, and Done is closed once every worker
// has returned. Run returns ErrStageRunning if called twice and ErrNoWorkers
// if nothing was attached.
func (s *Stage[T, D]) Run(schedule ScheduleFunc) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStageRunning
	}
	if len(s.workers) == 0 {
		s.mu.Unlock()
		return ErrNoWorkers
	}
	if schedule == nil {
		s.mu.Unlock()
		return ErrScheduleClosed
	}
	s.started = true
	workers := s.workers
	s.mu.Unlock()

	var runErr error
	reply := make(chan Decision, 1)
	idx := 0
	for {
		decision, err := ask(schedule, reply)
		if err != nil {
			runErr = err
			break
		}
		item, ok := s.queue.Next(decision.Timeout)
		if ok {
			s.route(workers[idx], item)
			idx = (idx + 1) % len(workers)
			continue
		}
		if !decision.RetryOnEmpty {
			break
		}
		s.idle.Add(1)
		idx = (idx + 1) % len(workers)
	}

	s.queue.Close()
	for _, item := range s.queue.Drain() {
		s.route(workers[idx], item)
		idx = (idx + 1) % len(workers)
	}
	s.shutdown.Store(true)
	for _, inbox := range workers {
		inbox.Close()
	}
	s.wg.Wait()
	close(s.done)
	return runErr
}

// route hands item to one worker. Inboxes are open until shutdown, which
// happens after the last route call, so Push cannot fail here.
func (s *Stage[T, D]) route(inbox *Queue[T], item T) {
	s.busy.Add(1)
	s.dispatched.Add(1)
	_ = inbox.Push(item)
}

func ask(schedule ScheduleFunc, reply chan Decision) (Decision, error) {
	schedule(reply)
	select {
	case d, ok := <-reply:
		if !ok {
			return Decision{}, ErrScheduleClosed
		}
		return d, nil
	default:
		return Decision{}, ErrScheduleClosed
	}
}

// Busy reports items routed to workers that have not finished processing.
func (s *Stage[T, D]) Busy() int { return int(s.busy.Load()) }

// Pending reports items waiting in the stage queue.
func (s *Stage[T, D]) Pending() int { return s.queue.Len() }

// Done is closed after Run has shut every worker down.
func (s *Stage[T, D]) Done() <-chan struct{} { return s.done }

// Stopped reports whether the shutdown flag has been set. It never resets.
func (s *Stage[T, D]) Stopped() bool { return s.shutdown.Load() }

// Workers reports the number of attached workers.
func (s *Stage[T, D]) Workers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Stats returns a snapshot of the stage counters.
func (s *Stage[T, D]) Stats() Stats {
	return Stats{
		Dispatched: s.dispatched.Load(),
		Processed:  s.processed.Load(),
		Failed:     s.failed.Load(),
		IdlePolls:  s.idle.Load(),
	}
}
