package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ppiankov/probeplane/internal/config"
	"github.com/ppiankov/probeplane/internal/model"
)

// Windows are the configured fallbacks for window derivation.
type Windows struct {
	DefaultCron string
	EventWindow time.Duration
	AdhocWindow time.Duration
}

// WindowsFrom extracts Windows from the scheduler config section.
func WindowsFrom(c config.Scheduler) Windows {
	return Windows{
		DefaultCron: c.DefaultCron,
		EventWindow: c.EventWindow.Duration,
		AdhocWindow: c.AdhocWindow.Duration,
	}
}

// NextWindow computes the next run time strictly after now, truncated to
// the second, and returns the effective expression.
//
// cron expressions use the standard five-field syntax or descriptors such as
// @hourly; an empty expression falls back to w.DefaultCron. event and adhoc
// expressions may be a Go duration ("10m") overriding the configured window.
func NextWindow(typ model.ScheduleType, expression string, now time.Time, w Windows) (time.Time, string, error) {
	expression = strings.TrimSpace(expression)
	now = now.UTC()

	switch typ {
	case model.ScheduleCron:
		if expression == "" {
			expression = w.DefaultCron
		}
		sched, err := cron.ParseStandard(expression)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("schedule: invalid cron expression %q: %w", expression, err)
		}
		next := sched.Next(now)
		if next.IsZero() {
			return time.Time{}, "", fmt.Errorf("schedule: cron expression %q never fires", expression)
		}
		return next.UTC().Truncate(time.Second), expression, nil

	case model.ScheduleEvent:
		return after(now, expression, w.EventWindow), expression, nil

	case model.ScheduleAdhoc:
		return after(now, expression, w.AdhocWindow), expression, nil

	default:
		return time.Time{}, "", fmt.Errorf("schedule: unknown schedule type %q", typ)
	}
}

func after(now time.Time, expression string, fallback time.Duration) time.Time {
	window := fallback
	if d, err := time.ParseDuration(expression); err == nil && d > 0 {
		window = d
	}
	if window < time.Second {
		window = time.Second
	}
	next := now.Add(window).Truncate(time.Second)
	if !next.After(now) {
		next = next.Add(time.Second)
	}
	return next
}
