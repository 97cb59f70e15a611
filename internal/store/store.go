// Package store implements C1, the Task Store of spec.md §4.1: the
// persistent table of task definitions, accessed through GORM the same way
// the teacher's internal/task-manager/db package does, generalized to the
// scheduled_tasks shape spec.md §3 requires.
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pluginsched/internal/errs"
)

// Store is C1's operation set: spec.md §4.1.
type Store interface {
	ListEnabled(ctx context.Context) ([]Task, error)
	Get(ctx context.Context, id string) (Task, error)
	Upsert(ctx context.Context, task *Task) error
	Delete(ctx context.Context, id string) error

	// TouchLastRun persists last_run/next_run WITHOUT bumping updated_at —
	// the no-touch write path spec.md §4.1/§4.3/§9 requires so Beat's own
	// writes never masquerade as a user edit and retrigger reconciliation.
	TouchLastRun(ctx context.Context, id string, lastRun, nextRun *time.Time) error

	// ResetForReenable clears last_run/next_run through the same no-touch
	// path, used by the rebuild's hard-reset tier (spec.md §4.3.4).
	ResetForReenable(ctx context.Context, id string) error
}

type gormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// ListEnabled returns a consistent snapshot of all enabled tasks in one
// transaction, per spec.md §4.1.
func (s *gormStore) ListEnabled(ctx context.Context) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("enabled = ?", true).Order("id").Find(&tasks).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return tasks, nil
}

func (s *gormStore) Get(ctx context.Context, id string) (Task, error) {
	var t Task
	err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return Task{}, errs.ErrTaskNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return t, nil
}

// Upsert creates or fully replaces a task's user-editable fields. This is
// the admin write path: it deliberately DOES bump updated_at (GORM's
// Save/Create convention-based timestamping) because any admin mutation
// must be visible to Beat's change detection, per spec.md §4.1's invariant.
func (s *gormStore) Upsert(ctx context.Context, task *Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Save(task).Error
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *gormStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&Task{}, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *gormStore) TouchLastRun(ctx context.Context, id string, lastRun, nextRun *time.Time) error {
	cols := map[string]interface{}{
		"last_run": lastRun,
		"next_run": nextRun,
	}
	// UpdateColumns (not Updates) skips GORM's auto-timestamp hook, so
	// updated_at is untouched — the no-touch write path.
	err := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).UpdateColumns(cols).Error
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *gormStore) ResetForReenable(ctx context.Context, id string) error {
	return s.TouchLastRun(ctx, id, nil, nil)
}
