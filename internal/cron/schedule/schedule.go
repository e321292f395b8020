package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Kind string

const (
	KindEvery Kind = "every"
	KindAt    Kind = "at"
	KindCron  Kind = "cron"
)

// Schedule is the tagged schedule variant stored with every job.
type Schedule struct {
	Kind    Kind       `json:"kind"`
	EveryMs int64      `json:"everyMs,omitempty"`
	At      *time.Time `json:"at,omitempty"`
	Expr    string     `json:"expr,omitempty"`
	TZ      string     `json:"tz,omitempty"`
}

// UnmarshalJSON accepts the legacy {"kind":"at","atMs":...} form and
// normalizes it into At.
func (s *Schedule) UnmarshalJSON(b []byte) error {
	type plain Schedule
	var tmp struct {
		plain
		AtMs *int64 `json:"atMs,omitempty"`
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*s = Schedule(tmp.plain)
	if s.At == nil && tmp.AtMs != nil {
		at := time.UnixMilli(*tmp.AtMs).UTC()
		s.At = &at
	}
	return nil
}

func Every(d time.Duration) Schedule {
	return Schedule{Kind: KindEvery, EveryMs: d.Milliseconds()}
}

func At(t time.Time) Schedule {
	at := t
	return Schedule{Kind: KindAt, At: &at}
}

func Cron(expr, tz string) Schedule {
	return Schedule{Kind: KindCron, Expr: expr, TZ: tz}
}

// Interval returns the fixed interval of an "every" schedule (0 otherwise).
func (s Schedule) Interval() time.Duration {
	if s.Kind != KindEvery {
		return 0
	}
	return time.Duration(s.EveryMs) * time.Millisecond
}

// OneShot reports whether the schedule is consumed after a single run.
func (s Schedule) OneShot() bool { return s.Kind == KindAt }

func (s Schedule) String() string {
	switch s.Kind {
	case KindEvery:
		return "every " + s.Interval().String()
	case KindAt:
		if s.At == nil {
			return "at <unset>"
		}
		return "at " + s.At.Format(time.RFC3339)
	case KindCron:
		if s.TZ != "" {
			return fmt.Sprintf("cron %q (%s)", s.Expr, s.TZ)
		}
		return fmt.Sprintf("cron %q", s.Expr)
	default:
		return string(s.Kind)
	}
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports the first problem with s, or nil.
func Validate(s Schedule) error {
	switch s.Kind {
	case KindEvery:
		if s.EveryMs <= 0 {
			return errors.New("schedule.everyMs must be > 0")
		}
	case KindAt:
		if s.At == nil || s.At.IsZero() {
			return errors.New("schedule.at required")
		}
	case KindCron:
		expr := strings.TrimSpace(s.Expr)
		if expr == "" {
			return errors.New("schedule.expr required")
		}
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("schedule.expr: invalid %q: %w", s.Expr, err)
		}
		if tz := strings.TrimSpace(s.TZ); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("schedule.tz: invalid %q: %w", tz, err)
			}
		}
	case "":
		return errors.New("schedule.kind required")
	default:
		return fmt.Errorf("schedule.kind: unsupported %q (use every, at or cron)", s.Kind)
	}
	return nil
}

// Calculator evaluates schedules. Location is the fallback timezone for cron
// schedules without their own tz (nil means time.Local).
type Calculator struct {
	Location *time.Location
}

// NextDue uses a Calculator in time.Local.
func NextDue(s Schedule, lastRunAt *time.Time, now time.Time) (time.Time, bool) {
	return Calculator{}.NextDue(s, lastRunAt, now)
}

// NextDue maps a schedule and the last completion time to the next due time.
// ok is false when the schedule will never fire again (exhausted one-shot or
// an invalid schedule).
func (c Calculator) NextDue(s Schedule, lastRunAt *time.Time, now time.Time) (next time.Time, ok bool) {
	switch s.Kind {
	case KindEvery:
		every := s.Interval()
		if every <= 0 {
			return time.Time{}, false
		}
		if lastRunAt == nil {
			return now, true
		}
		due := lastRunAt.Add(every)
		if now.Sub(due) > every {
			return now, true
		}
		return due, true

	case KindAt:
		if s.At == nil || lastRunAt != nil {
			return time.Time{}, false
		}
		return *s.At, true

	case KindCron:
		sched, err := parser.Parse(strings.TrimSpace(s.Expr))
		if err != nil {
			return time.Time{}, false
		}
		loc := c.location(s.TZ)
		if lastRunAt == nil {
			return sched.Next(now.In(loc)), true
		}
		due := sched.Next(lastRunAt.In(loc))
		if due.IsZero() {
			return time.Time{}, false
		}
		if !due.After(now) {
			period := sched.Next(due).Sub(due)
			if period > 0 && now.Sub(due) > period {
				return now, true
			}
		}
		return due, true
	}
	return time.Time{}, false
}

func (c Calculator) location(tz string) *time.Location {
	if tz = strings.TrimSpace(tz); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}
