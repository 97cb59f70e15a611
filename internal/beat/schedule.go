package beat

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"pluginsched/internal/store"
)

// Schedule computes the next due time after a reference instant, the
// compiled form of a task's schedule_type/schedule_config, per spec.md §3.
type Schedule interface {
	Next(after time.Time) time.Time
}

type intervalSchedule struct {
	seconds int
}

func (s intervalSchedule) Next(after time.Time) time.Time {
	if s.seconds <= 0 {
		s.seconds = 1
	}
	return after.Add(time.Duration(s.seconds) * time.Second)
}

type cronSchedule struct {
	spec cron.Schedule
}

func (s cronSchedule) Next(after time.Time) time.Time {
	return s.spec.Next(after)
}

// CompileSchedule builds a Schedule from a task's persisted configuration,
// grounded on clark22134-task-processing-platform/internal/scheduler/
// service.go's cron.ParseStandard use, generalized to also cover the
// interval schedule type and the five-field day_of_week/month_of_year
// manifest shape of spec.md §6.
func CompileSchedule(t store.Task, loc *time.Location) (Schedule, error) {
	switch t.ScheduleType {
	case store.ScheduleInterval:
		cfg := t.DecodeInterval()
		if cfg.IntervalSeconds <= 0 {
			return nil, fmt.Errorf("task %s: interval_seconds must be > 0", t.ID)
		}
		return intervalSchedule{seconds: cfg.IntervalSeconds}, nil
	case store.ScheduleCron:
		cfg := t.DecodeCron()
		expr := fmt.Sprintf("%s %s %s %s %s", cfg.Minute, cfg.Hour, cfg.DayOfMonth, cfg.MonthOfYear, cfg.DayOfWeek)
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		spec, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("task %s: invalid cron expression %q: %w", t.ID, expr, err)
		}
		return cronSchedule{spec: spec}, nil
	default:
		return nil, fmt.Errorf("task %s: unsupported schedule type %q", t.ID, t.ScheduleType)
	}
}
