// Package beat implements C6, the Beat Scheduler of spec.md §4.3 — the
// core of this module. It reconciles an in-memory schedule against the
// persisted task table on a fixed wake interval, detects any mutation via
// a disjunction of independent signals, rebuilds a due-time priority
// queue only when something actually changed, and dispatches due tasks
// through the broker gateway. Grounded on
// clark22134-task-processing-platform/internal/scheduler/service.go's
// ticker-driven Service for the run loop shape, and on
// original_source/scheduler/database_scheduler.py's
// DatabaseScheduleEntry for the re-enable reset tiers this spec requires.
package beat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pluginsched/internal/broker"
	"pluginsched/internal/clock"
	"pluginsched/internal/store"
)

// Config carries the tunables of spec.md §6.
type Config struct {
	MaxLoopInterval   time.Duration
	ReenableSoftReset time.Duration
	ReenableHardReset time.Duration
	Location          *time.Location
}

// cacheSignature holds the change-detection cache slots of spec.md
// §4.3.3, one snapshot per reconcile.
type cacheSignature struct {
	count        int
	ids          []string
	contentHash  uint64
	enabledByID  map[string]bool
	maxUpdatedAt time.Time
}

// Scheduler is C6's operation set: a background reconcile+dispatch loop,
// synchronized on a single lock per spec.md §4.3.8.
type Scheduler struct {
	store  store.Store
	broker broker.Gateway
	cfg    Config
	log    zerolog.Logger
	clock  clock.Clock

	mu       sync.Mutex
	entries  map[string]*ScheduleEntry
	queue    *pqueue
	cache    cacheSignature
	lastRebuildErr error

	stop chan struct{}
	done chan struct{}
}

func New(st store.Store, br broker.Gateway, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		store:   st,
		broker:  br,
		cfg:     cfg,
		log:     log,
		clock:   clock.Real,
		entries: map[string]*ScheduleEntry{},
		queue:   newPQueue(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// WithClock overrides the scheduler's time source, letting tests drive
// re-enable-latency and propagation scenarios with a clock.Fake instead of
// real sleeps.
func (s *Scheduler) WithClock(c clock.Clock) *Scheduler {
	s.clock = c
	return s
}

// Run blocks, reconciling and dispatching on cfg.MaxLoopInterval until ctx
// is canceled or Stop is called, matching the ticker-loop shape of
// clark22134-task-processing-platform's scheduler.Service.Start.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.MaxLoopInterval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// tick performs one reconcile-then-dispatch cycle under the single
// scheduler lock, per spec.md §4.3.8.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, err := s.store.ListEnabled(ctx)
	if err != nil {
		// Store read failure: retry on next tick, keep serving from last
		// good snapshot, per spec.md §4.3.7.
		s.log.Warn().Err(err).Msg("beat: failed to list enabled tasks, keeping last snapshot")
		s.lastRebuildErr = err
	} else {
		s.lastRebuildErr = nil
		sig := computeSignature(tasks)
		if s.dirty(sig) {
			s.rebuild(ctx, tasks, sig)
		}
	}

	s.dispatch(ctx)
}

// computeSignature derives the five change-detection signals of spec.md
// §4.3.3 from a fresh snapshot of enabled tasks.
func computeSignature(tasks []store.Task) cacheSignature {
	ids := make([]string, 0, len(tasks))
	enabledByID := make(map[string]bool, len(tasks))
	var maxUpdated time.Time

	sorted := make([]store.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, t := range sorted {
		ids = append(ids, t.ID)
		enabledByID[t.ID] = t.Enabled
		if t.UpdatedAt.After(maxUpdated) {
			maxUpdated = t.UpdatedAt
		}
	}

	return cacheSignature{
		count:        len(sorted),
		ids:          ids,
		contentHash:  contentHashOf(sorted),
		enabledByID:  enabledByID,
		maxUpdatedAt: maxUpdated,
	}
}

// dirty evaluates the disjunction of spec.md §4.3.3's five signals against
// the cached signature. Any one true signal triggers a rebuild; none true
// means the steady-state tick did one query and one hash comparison and
// nothing else, per spec.md §4.3.1's "cheap steady state" goal.
func (s *Scheduler) dirty(next cacheSignature) bool {
	cur := s.cache

	if next.count != cur.count {
		return true
	}
	if !idsEqual(next.ids, cur.ids) {
		return true
	}
	if next.contentHash != cur.contentHash {
		return true
	}
	for id, enabled := range next.enabledByID {
		if cur.enabledByID[id] != enabled {
			return true
		}
	}
	for id, enabled := range cur.enabledByID {
		if _, ok := next.enabledByID[id]; !ok && enabled {
			return true
		}
	}
	if next.maxUpdatedAt.After(cur.maxUpdatedAt) {
		return true
	}
	return false
}

func idsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rebuild implements spec.md §4.3.4's atomic rebuild: compile a fresh
// schedule map, apply the re-enable reset tiers, discard and repopulate
// the priority queue, and only then commit the new change-detection cache.
func (s *Scheduler) rebuild(ctx context.Context, tasks []store.Task, sig cacheSignature) {
	now := s.clock.Now()
	fresh := make(map[string]*ScheduleEntry, len(tasks))

	for _, t := range tasks {
		sched, err := CompileSchedule(t, s.cfg.Location)
		if err != nil {
			s.log.Error().Err(err).Str("task_id", t.ID).Msg("beat: skipping task with invalid schedule")
			continue
		}

		entry := &ScheduleEntry{
			Task:     t,
			Schedule: sched,
			Priority: t.Priority,
			State:    StatePending,
		}

		old, existedBefore := s.entries[t.ID]
		justReenabled := existedBefore && !old.Task.Enabled && t.Enabled

		entry.LastRunAt = t.LastRun
		if existedBefore {
			entry.LastRunAt = old.LastRunAt
		}

		// A task new to Beat's cache with no persisted last_run is the
		// never-ran case and already resolves to resetHard below via
		// classifyReset (t.LastRun == nil). A pre-existing task that
		// already carries a legitimate last_run is NOT force-reset merely
		// for being new-to-cache — that would replay fires across every
		// Beat restart, which spec.md §1's Non-goals explicitly excludes.
		// s.entries holds only tasks ListEnabled returned, so a task that
		// was disabled and is enabled again arrives here as new to the
		// cache and justReenabled stays false for it; such a task is reset
		// only when its updated_at/last_run gap crosses a tier threshold.
		resetTier := classifyReset(t, s.cfg)
		switch {
		case justReenabled || resetTier == resetHard:
			entry.LastRunAt = nil
			if err := s.store.ResetForReenable(ctx, t.ID); err != nil {
				s.log.Warn().Err(err).Str("task_id", t.ID).Msg("beat: failed to persist re-enable reset")
			}
		case resetTier == resetSoft:
			// Soft reset: eligible immediately in memory, but the store's
			// last_run is left untouched, per spec.md §4.3.4.
			entry.LastRunAt = nil
		}

		entry.computeDue(now)
		fresh[t.ID] = entry
	}

	s.entries = fresh
	s.queue = newPQueue()
	for _, e := range fresh {
		s.queue.push(e)
	}
	s.cache = sig

	s.log.Info().Int("tasks", len(fresh)).Msg("beat: rebuild complete")
}

type resetTier int

const (
	resetNone resetTier = iota
	resetSoft
	resetHard
)

// classifyReset implements the re-enable reset threshold tiers of spec.md
// §4.3.4, grounded on original_source/database_scheduler.py's
// _get_aggressive_last_run (1800s hard / 60s soft thresholds).
func classifyReset(t store.Task, cfg Config) resetTier {
	if t.LastRun == nil {
		return resetHard
	}
	gap := t.UpdatedAt.Sub(*t.LastRun)
	switch {
	case gap > cfg.ReenableHardReset:
		return resetHard
	case gap > cfg.ReenableSoftReset:
		return resetSoft
	default:
		return resetNone
	}
}

// dispatch implements spec.md §4.3.5: consult the queue head, and for
// every entry whose due time has passed, submit via the broker and
// re-enqueue with the next due time.
func (s *Scheduler) dispatch(ctx context.Context) {
	now := s.clock.Now()

	for {
		head := s.queue.peek()
		if head == nil || !head.isDue(now) {
			return
		}
		s.queue.pop()

		head.State = StateDue
		submissionID, err := s.broker.Submit(ctx, head.Task.PluginName, head.Task.Parameters, broker.SubmitOptions{
			Priority:   head.Task.Priority,
			MaxRetries: head.Task.MaxRetries,
			TimeLimit:  time.Duration(head.Task.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			// Submission failure: leave last_run_at unchanged, re-enqueue
			// at the same due time to retry next tick, per spec.md §4.3.7.
			s.log.Warn().Err(err).Str("task_id", head.Task.ID).Msg("beat: submission failed, will retry")
			s.queue.push(head)
			return
		}

		head.State = StateSubmitted
		_ = submissionID

		runAt := now
		head.LastRunAt = &runAt
		head.computeDue(now)
		head.State = StatePending

		nextRun := head.DueAt
		if err := s.store.TouchLastRun(ctx, head.Task.ID, &runAt, &nextRun); err != nil {
			s.log.Warn().Err(err).Str("task_id", head.Task.ID).Msg("beat: failed to persist last_run (no-touch path)")
		}

		s.queue.push(head)
	}
}

// Snapshot returns a read-only copy of the current in-memory schedule, for
// observability/testing, grounded on inipew-pewbot's Snapshot() pattern.
func (s *Scheduler) Snapshot() []ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}
