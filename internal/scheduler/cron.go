package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchboard/internal/errs"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// loadLocation resolves tz, falling back to def and then UTC.
func loadLocation(tz string, def *time.Location) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		if def != nil {
			return def, nil
		}
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler: timezone %q: %w", tz, errs.ErrValidation)
	}
	return loc, nil
}

// NextRun returns the first time strictly after `after` at which expr
// fires, evaluated in loc. The result is in UTC.
func NextRun(expr string, loc *time.Location, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: cron %q: %v: %w", expr, err, errs.ErrValidation)
	}
	if loc == nil {
		loc = time.UTC
	}
	next := sched.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("scheduler: cron %q never fires: %w", expr, errs.ErrValidation)
	}
	return next.UTC(), nil
}

// OnceExpr pins a cron expression to the minute, hour, day and month of t.
// On its own it would fire yearly; run-once jobs are deleted after firing.
func OnceExpr(t time.Time) string {
	return fmt.Sprintf("%d %d %d %d *", t.Minute(), t.Hour(), t.Day(), int(t.Month()))
}
