package beat

import (
	"time"

	"pluginsched/internal/store"
)

// EntryState is the per-entry state machine of spec.md §4.3.6.
type EntryState string

const (
	StatePending   EntryState = "PENDING"
	StateDue       EntryState = "DUE"
	StateSubmitted EntryState = "SUBMITTED"
)

// ScheduleEntry is C6's in-memory schedule entry, spec.md §3: the task
// snapshot, the compiled schedule spec, last_run_at, and a cached due time.
type ScheduleEntry struct {
	Task       store.Task
	Schedule   Schedule
	LastRunAt  *time.Time
	DueAt      time.Time
	Priority   int
	State      EntryState

	index int // heap bookkeeping, managed by pqueue
}

// computeDue recomputes DueAt from LastRunAt. A nil LastRunAt is the
// re-enable reset case (spec.md §4.3.4): the task is immediately eligible
// rather than waiting out a full interval/cron period from "now".
//
// An overdue result (Next(LastRunAt) already in the past, i.e. Beat was
// down or slow through one or more missed slots) is left as-is rather
// than walked forward: isDue reports it due immediately so it fires
// exactly once on the next dispatch, and the post-fire recompute (called
// with LastRunAt = the fire time) is what produces a future-aligned due
// time — this is what keeps a backlog from firing once per missed slot,
// per spec.md §4.3.7's catch-up rule.
func (e *ScheduleEntry) computeDue(now time.Time) {
	if e.LastRunAt == nil {
		e.DueAt = now
		return
	}
	e.DueAt = e.Schedule.Next(*e.LastRunAt)
}

// isDue reports whether the entry's due time has passed.
func (e *ScheduleEntry) isDue(now time.Time) bool {
	return !e.DueAt.After(now)
}
