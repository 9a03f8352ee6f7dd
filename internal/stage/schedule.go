package stage

import (
	"context"
	"time"
)

// Decision tells the dispatch loop how long to wait for the next item and
// whether an empty wait should keep the stage alive.
type Decision struct {
	Timeout      time.Duration
	RetryOnEmpty bool
}

// ScheduleFunc is consulted before every dispatch. It must send exactly one
// Decision on reply before returning; the channel has room for it.
type ScheduleFunc func(reply chan<- Decision)

// Fixed always answers with the same decision.
func Fixed(timeout time.Duration, retry bool) ScheduleFunc {
	d := Decision{Timeout: timeout, RetryOnEmpty: retry}
	return func(reply chan<- Decision) {
		reply <- d
	}
}

// UntilIdle keeps a stage alive until its upstream is done and nothing is in
// flight in the stage itself. A nil upstream counts as done. The in-flight
// count is sampled before the wait, so an empty wait that follows a zero
// count means no worker can still be producing feedback. Cancelling ctx ends
// the stage at the next empty wait regardless of upstream.
func UntilIdle(ctx context.Context, timeout time.Duration, upstream <-chan struct{}, inFlight func() int) ScheduleFunc {
	return func(reply chan<- Decision) {
		if ctx.Err() != nil {
			reply <- Decision{Timeout: 0, RetryOnEmpty: false}
			return
		}
		retry := !closed(upstream) || inFlight() > 0
		reply <- Decision{Timeout: timeout, RetryOnEmpty: retry}
	}
}

func closed(ch <-chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
