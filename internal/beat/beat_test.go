package beat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pluginsched/internal/broker"
	"pluginsched/internal/clock"
	"pluginsched/internal/store"
)

type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]store.Task
}

func newFakeStore(tasks ...store.Task) *fakeStore {
	m := map[string]store.Task{}
	for _, t := range tasks {
		m[t.ID] = t
	}
	return &fakeStore{tasks: m}
}

func (f *fakeStore) ListEnabled(ctx context.Context) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Task
	for _, t := range f.tasks {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id], nil
}

func (f *fakeStore) Upsert(ctx context.Context, task *store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task.UpdatedAt = time.Now()
	f.tasks[task.ID] = *task
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) TouchLastRun(ctx context.Context, id string, lastRun, nextRun *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	t.LastRun = lastRun
	t.NextRun = nextRun
	f.tasks[id] = t
	return nil
}

func (f *fakeStore) ResetForReenable(ctx context.Context, id string) error {
	return f.TouchLastRun(ctx, id, nil, nil)
}

type fakeBroker struct {
	mu        sync.Mutex
	submitted []string
	fail      bool
}

func (b *fakeBroker) Submit(ctx context.Context, pluginName string, parameters map[string]interface{}, opts broker.SubmitOptions) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return "", assertErr
	}
	b.submitted = append(b.submitted, pluginName)
	return "sub-" + pluginName, nil
}
func (b *fakeBroker) Status(id string) (broker.SubmissionStatus, bool)   { return "", false }
func (b *fakeBroker) Revoke(id string, terminate bool) error            { return nil }
func (b *fakeBroker) RevokeByPlugin(name string, terminate bool) error  { return nil }
func (b *fakeBroker) InspectActive() []string                           { return nil }
func (b *fakeBroker) IsRevoked(submissionID string) bool                { return false }
func (b *fakeBroker) Close() error                                      { return nil }

func (b *fakeBroker) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submitted)
}

var assertErr = &submitError{}

type submitError struct{}

func (*submitError) Error() string { return "submit failed" }

func baseConfig() Config {
	return Config{
		MaxLoopInterval:   time.Hour, // tests call tick() directly
		ReenableSoftReset: 60 * time.Second,
		ReenableHardReset: 1800 * time.Second,
		Location:          time.UTC,
	}
}

func intervalTask(id string, seconds int, enabled bool) store.Task {
	return store.Task{
		ID:             id,
		PluginName:     "echo",
		Parameters:     store.JSONMap{},
		ScheduleType:   store.ScheduleInterval,
		ScheduleConfig: store.JSONMap{"interval_seconds": float64(seconds)},
		Enabled:        enabled,
		Priority:       5,
		UpdatedAt:      time.Now(),
	}
}

func TestRebuildOnlyHappensWhenSignalsFire(t *testing.T) {
	task := intervalTask("t1", 3600, true)
	task.LastRun = ptrTime(time.Now())
	task.UpdatedAt = *task.LastRun

	st := newFakeStore(task)
	br := &fakeBroker{}
	s := New(st, br, baseConfig(), zerolog.Nop())

	s.tick(context.Background())
	firstCache := s.cache
	firstEntry := s.entries["t1"]
	require.NotNil(t, firstEntry)

	s.tick(context.Background())
	assert.Equal(t, firstCache, s.cache, "identical snapshot must not trigger a second rebuild")
	assert.Same(t, firstEntry, s.entries["t1"], "identical snapshot must not trigger a second rebuild")
}

func TestReenabledTaskIsImmediatelyEligible(t *testing.T) {
	stale := time.Now().Add(-2 * time.Hour)
	task := intervalTask("t1", 3600, false)
	task.LastRun = &stale
	task.UpdatedAt = stale

	st := newFakeStore(task)
	br := &fakeBroker{}
	s := New(st, br, baseConfig(), zerolog.Nop())

	s.tick(context.Background())
	assert.Equal(t, 0, br.submitCount(), "disabled task must never be scheduled")

	enabled := task
	enabled.Enabled = true
	enabled.UpdatedAt = time.Now()
	st.mu.Lock()
	st.tasks["t1"] = enabled
	st.mu.Unlock()

	s.tick(context.Background())
	assert.Equal(t, 1, br.submitCount(), "re-enabled task must fire within the next reconcile despite a stale last_run")
}

func TestParameterEditDoesNotCauseExtraFire(t *testing.T) {
	now := time.Now()
	task := intervalTask("t1", 3600, true)
	task.LastRun = &now
	task.UpdatedAt = now

	st := newFakeStore(task)
	br := &fakeBroker{}
	s := New(st, br, baseConfig(), zerolog.Nop())

	s.tick(context.Background())
	assert.Equal(t, 0, br.submitCount())

	edited := task
	edited.Parameters = store.JSONMap{"x": "changed"}
	edited.UpdatedAt = time.Now()
	st.mu.Lock()
	st.tasks["t1"] = edited
	st.mu.Unlock()

	s.tick(context.Background())
	assert.Equal(t, 0, br.submitCount(), "a parameter edit with schedule unchanged must not trigger a fire")
}

func TestDueTaskFiresAndReenqueues(t *testing.T) {
	past := time.Now().Add(-10 * time.Second)
	task := intervalTask("t1", 5, true)
	task.LastRun = &past
	task.UpdatedAt = past.Add(1 * time.Second)

	st := newFakeStore(task)
	br := &fakeBroker{}
	s := New(st, br, baseConfig(), zerolog.Nop())

	s.tick(context.Background())
	assert.Equal(t, 1, br.submitCount())

	entries := s.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, StatePending, entries[0].State)
	assert.True(t, entries[0].DueAt.After(time.Now()), "entry must be re-enqueued with a future due time")
}

func TestSubmissionFailureLeavesLastRunUnchanged(t *testing.T) {
	past := time.Now().Add(-10 * time.Second)
	task := intervalTask("t1", 5, true)
	task.LastRun = &past
	task.UpdatedAt = past.Add(1 * time.Second)

	st := newFakeStore(task)
	br := &fakeBroker{fail: true}
	s := New(st, br, baseConfig(), zerolog.Nop())

	s.tick(context.Background())

	stored, err := st.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastRun)
	assert.WithinDuration(t, past, *stored.LastRun, time.Millisecond, "failed submission must not advance last_run")
}

func TestDeletedTaskDropsOutOfSchedule(t *testing.T) {
	task := intervalTask("t1", 3600, true)
	st := newFakeStore(task)
	br := &fakeBroker{}
	s := New(st, br, baseConfig(), zerolog.Nop())

	s.tick(context.Background())
	require.Len(t, s.Snapshot(), 1)

	require.NoError(t, st.Delete(context.Background(), "t1"))
	s.tick(context.Background())
	assert.Len(t, s.Snapshot(), 0)
}

// TestWithClockDrivesDeterministicDispatchTiming exercises WithClock's
// injection seam directly: the scheduler fires, re-enqueues, and fires
// again purely by advancing a clock.Fake, with no real sleep and no
// reliance on wall-clock time.Now() drift between assertions.
func TestWithClockDrivesDeterministicDispatchTiming(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)

	past := start.Add(-10 * time.Second)
	task := intervalTask("t1", 5, true)
	task.LastRun = &past
	task.UpdatedAt = past.Add(1 * time.Second)

	st := newFakeStore(task)
	br := &fakeBroker{}
	s := New(st, br, baseConfig(), zerolog.Nop()).WithClock(fc)

	s.tick(context.Background())
	assert.Equal(t, 1, br.submitCount(), "overdue task must fire on the first tick at the fake clock's current time")

	entries := s.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, start.Add(5*time.Second), entries[0].DueAt, "next due time must be computed from the fake clock, not wall time")

	fc.Advance(4 * time.Second)
	s.tick(context.Background())
	assert.Equal(t, 1, br.submitCount(), "advancing short of the due time must not cause a second fire")

	fc.Advance(1 * time.Second)
	s.tick(context.Background())
	assert.Equal(t, 2, br.submitCount(), "reaching the due time on the fake clock must fire exactly once more")
}

func ptrTime(t time.Time) *time.Time { return &t }
