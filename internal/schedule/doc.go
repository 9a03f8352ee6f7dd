// Package schedule runs policy schedules.
//
// Each [schedule.<name>] table of a policy becomes a Schedule: an
// IntervalSchedule fires every N seconds, a CronSchedule at the activations
// of a standard five-field cron expression. A Runner polls every schedule on
// a short tick and scans the targets of the due ones one after another.
package schedule
