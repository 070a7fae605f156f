package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrAlreadyPersisted = errors.New("history entries are append-only")

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, e *Entry) error
	ListByGoal(ctx context.Context, goalID uuid.UUID, from, to *time.Time) ([]Entry, error)
	Latest(ctx context.Context, goalID uuid.UUID) (*Entry, error)
	Count(ctx context.Context, goalID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

// Append stores e. RecordedAt never goes backwards for a goal: an entry stamped
// before the latest one is recorded at the latest entry's time.
func (r *repository) Append(ctx context.Context, e *Entry) error {
	if e.ID != 0 {
		return ErrAlreadyPersisted
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	latest, err := r.Latest(ctx, e.GoalID)
	if err != nil {
		return err
	}
	if latest != nil && e.RecordedAt.Before(latest.RecordedAt) {
		e.RecordedAt = latest.RecordedAt
	}

	return r.db.WithContext(ctx).Create(e).Error
}

func (r *repository) ListByGoal(ctx context.Context, goalID uuid.UUID, from, to *time.Time) ([]Entry, error) {
	q := r.db.WithContext(ctx).Where("goal_id = ?", goalID)
	if from != nil {
		q = q.Where("recorded_at >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("recorded_at <= ?", to.UTC())
	}

	var entries []Entry
	if err := q.Order("recorded_at ASC").Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) Latest(ctx context.Context, goalID uuid.UUID) (*Entry, error) {
	var e Entry
	err := r.db.WithContext(ctx).
		Where("goal_id = ?", goalID).
		Order("recorded_at DESC").
		Order("id DESC").
		Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *repository) Count(ctx context.Context, goalID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Entry{}).Where("goal_id = ?", goalID).Count(&n).Error
	return n, err
}
