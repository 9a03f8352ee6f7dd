// Package stage implements the generic concurrent dataflow engine used by the
// scan pipeline.
//
// A Stage[T, D] owns an unbounded queue of T items, a pool of workers attached
// with Attach, and an optional drain collector that forwards D results to the
// next stage. Workers may resubmit items to their own stage through the
// feedback collector, which is how directory recursion and chunked reads are
// expressed without explicit loops.
//
// Run drives a round-robin dispatch loop. Before each dispatch it asks the
// caller's ScheduleFunc for a Decision: how long to wait for the next item and
// whether an empty wait should end the stage. Termination is entirely the
// schedule's policy; UntilIdle provides the one the scanner uses.
package stage
