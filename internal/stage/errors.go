package stage

import "errors"

var (
	// ErrStageClosed is returned when sending to a stage whose queue has been
	// torn down. The item was not accepted.
	ErrStageClosed = errors.New("stage closed")
	// ErrNoDrain is returned when sending through a collector that is not
	// bound to any queue.
	ErrNoDrain = errors.New("no drain bound")
	// ErrScheduleClosed is returned by Run when the schedule function closed
	// the reply channel or returned without sending a decision.
	ErrScheduleClosed = errors.New("schedule returned no decision")
	// ErrNoWorkers is returned by Run when no workers were attached.
	ErrNoWorkers = errors.New("stage has no workers")
	// ErrStageRunning is returned when configuring or running a stage whose
	// dispatch loop has already started.
	ErrStageRunning = errors.New("stage already running")
)
