package results

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists submission outcomes. Grounded on the teacher's GORM
// repository style (s.DB.Model(...).Updates(...)) rather than a bespoke
// query builder.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	Get(ctx context.Context, submissionID string) (Record, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore wraps an already-migrated *gorm.DB. Callers must AutoMigrate
// &Record{} before first use; appctx does this alongside store.Task.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Upsert(ctx context.Context, rec Record) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert submission result %s: %w", rec.SubmissionID, err)
	}
	return nil
}

func (s *gormStore) Get(ctx context.Context, submissionID string) (Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&rec).Error
	if err != nil {
		return Record{}, fmt.Errorf("get submission result %s: %w", submissionID, err)
	}
	return rec, nil
}
