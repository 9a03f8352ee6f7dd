package schedule

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gfimx/internal/fault"
	"gfimx/internal/policy"
	"gfimx/internal/scan"
)

// Schedule decides when its target is due for a scan.
type Schedule interface {
	Name() string
	// Due reports whether the target should be scanned at now. A true
	// result advances the schedule to its next activation.
	Due(now time.Time) bool
	Target() scan.Target
	// Next returns the next activation.
	Next() time.Time
}

// IntervalSchedule fires every Every, starting one interval after creation.
type IntervalSchedule struct {
	target scan.Target
	every  time.Duration

	mu   sync.Mutex
	next time.Time
}

// NewInterval builds an interval schedule anchored at start.
func NewInterval(target scan.Target, every time.Duration, start time.Time) (*IntervalSchedule, error) {
	if every <= 0 {
		return nil, fault.Wrap(fault.ErrPolicy, "schedule", "interval", fmt.Sprintf("%s: interval must be positive", target.Name), nil)
	}
	return &IntervalSchedule{target: target, every: every, next: start.Add(every)}, nil
}

func (s *IntervalSchedule) Name() string { return s.target.Name }

func (s *IntervalSchedule) Target() scan.Target { return s.target }

func (s *IntervalSchedule) Due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.next) {
		return false
	}
	s.next = now.Add(s.every)
	return true
}

func (s *IntervalSchedule) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// CronSchedule fires at the activations of a cron expression. Activations
// missed while a scan was running are collapsed into one.
type CronSchedule struct {
	target scan.Target
	expr   string
	spec   cron.Schedule

	mu   sync.Mutex
	next time.Time
}

// NewCron parses expr as a standard five-field expression (descriptors such
// as @hourly are accepted too).
func NewCron(target scan.Target, expr string, start time.Time) (*CronSchedule, error) {
	expr = strings.TrimSpace(expr)
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPolicy, "schedule", "cron", fmt.Sprintf("%s: %q", target.Name, expr), err)
	}
	return &CronSchedule{target: target, expr: expr, spec: spec, next: spec.Next(start)}, nil
}

func (s *CronSchedule) Name() string { return s.target.Name }

func (s *CronSchedule) Target() scan.Target { return s.target }

// Expression returns the cron expression.
func (s *CronSchedule) Expression() string { return s.expr }

func (s *CronSchedule) Due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next.IsZero() || now.Before(s.next) {
		return false
	}
	s.next = s.spec.Next(now)
	return true
}

func (s *CronSchedule) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// FromPolicy builds one schedule per [schedule.<name>] table, in name order.
func FromPolicy(pol *policy.Policy, start time.Time) ([]Schedule, error) {
	if pol == nil {
		return nil, nil
	}
	out := make([]Schedule, 0, len(pol.Schedule))
	for _, name := range pol.ScheduleNames() {
		sched := pol.Schedule[name]
		target, err := TargetFor(name, sched.Dirs, sched.IgnoreFiles, sched.IgnoreDirs)
		if err != nil {
			return nil, err
		}
		switch {
		case sched.Interval != nil && sched.Cron != nil:
			return nil, fault.Wrap(fault.ErrPolicy, "schedule", "build", name+": interval and cron are mutually exclusive", nil)
		case sched.Cron != nil:
			s, err := NewCron(target, *sched.Cron, start)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		case sched.Interval != nil:
			s, err := NewInterval(target, time.Duration(*sched.Interval)*time.Second, start)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		default:
			return nil, fault.Wrap(fault.ErrPolicy, "schedule", "build", name+": no interval or cron", nil)
		}
	}
	return out, nil
}

// TargetFor compiles a policy section into a scan target.
func TargetFor(name string, dirs []string, files, directories *policy.Ignore) (scan.Target, error) {
	fileFilter, err := files.Compile()
	if err != nil {
		return scan.Target{}, fault.Wrap(fault.ErrPolicy, "schedule", "compile", name+".ignore_files", err)
	}
	dirFilter, err := directories.Compile()
	if err != nil {
		return scan.Target{}, fault.Wrap(fault.ErrPolicy, "schedule", "compile", name+".ignore_dirs", err)
	}
	return scan.Target{
		Name:        name,
		Dirs:        append([]string(nil), dirs...),
		IgnoreFiles: fileFilter,
		IgnoreDirs:  dirFilter,
	}, nil
}
