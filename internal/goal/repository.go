package goal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, goal *Goal) error
	Update(ctx context.Context, goal *Goal) error
	FindByID(ctx context.Context, id uuid.UUID) (*Goal, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Goal, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*Goal, error)
	ChildIDs(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error)
	ParentID(ctx context.Context, id uuid.UUID) (*uuid.UUID, error)
	Query(ctx context.Context, f Filter, page, pageSize int) ([]*Goal, int64, error)
	List(ctx context.Context, f Filter) ([]*Goal, error)
	ListRecalculable(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	ListOverdue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Goal{}, &TeamMember{})
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, goal *Goal) error {
	return r.db.WithContext(ctx).Create(goal).Error
}

func (r *repository) Update(ctx context.Context, goal *Goal) error {
	return r.db.WithContext(ctx).Save(goal).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Goal, error) {
	var goal Goal
	if err := r.db.WithContext(ctx).First(&goal, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &goal, nil
}

// FindByIDs returns the goals in the order of ids, skipping unknown ids.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Goal, error) {
	if len(ids) == 0 {
		return []*Goal{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	var goals []*Goal
	if err := r.db.WithContext(ctx).Where("id IN ?", keys).Find(&goals).Error; err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*Goal, len(goals))
	for _, g := range goals {
		byID[g.ID] = g
	}
	ordered := make([]*Goal, 0, len(goals))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			ordered = append(ordered, g)
		}
	}
	return ordered, nil
}

// ListChildren returns the non-cancelled direct children of parentID.
func (r *repository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*Goal, error) {
	var goals []*Goal
	err := r.db.WithContext(ctx).
		Where("parent_goal_id = ? AND status <> ?", parentID, GoalStatusCancelled).
		Order("created_on ASC").
		Find(&goals).Error
	if err != nil {
		return nil, err
	}
	return goals, nil
}

func (r *repository) ChildIDs(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&Goal{}).
		Where("parent_goal_id = ? AND status <> ?", parentID, GoalStatusCancelled).
		Order("created_on ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ParentID(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	var goal Goal
	err := r.db.WithContext(ctx).Select("id", "parent_goal_id").First(&goal, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return goal.ParentGoalID, nil
}

func (r *repository) Query(ctx context.Context, f Filter, page, pageSize int) ([]*Goal, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var goals []*Goal
	err := r.filtered(ctx, f).Order("created_on DESC").
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&goals).Error
	if err != nil {
		return nil, 0, err
	}
	return goals, total, nil
}

func (r *repository) List(ctx context.Context, f Filter) ([]*Goal, error) {
	var goals []*Goal
	if err := r.filtered(ctx, f).Order("created_on DESC").Find(&goals).Error; err != nil {
		return nil, err
	}
	return goals, nil
}

// ListRecalculable returns active auto-tracked goals whose window contains now.
func (r *repository) ListRecalculable(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&Goal{}).
		Where("tracking_mode = ? AND status = ?", TrackingAuto, GoalStatusActive).
		Where("start_date <= ? AND end_date >= ?", now, now).
		Order("end_date ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListOverdue returns active goals of either tracking mode whose end date has passed.
func (r *repository) ListOverdue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&Goal{}).
		Where("status = ? AND end_date < ?", GoalStatusActive, now).
		Order("end_date ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// filtered applies f. Cancelled goals are hidden unless the filter asks for them.
func (r *repository) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&Goal{})

	if f.OwnerID != nil {
		q = q.Where("owner_id = ?", *f.OwnerID)
	}
	if f.TeamID != nil {
		q = q.Where("team_id = ?", *f.TeamID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	} else {
		q = q.Where("status <> ?", GoalStatusCancelled)
	}
	if f.MetricType != nil {
		q = q.Where("metric_type = ?", *f.MetricType)
	}
	if f.TrackingMode != nil {
		q = q.Where("tracking_mode = ?", *f.TrackingMode)
	}
	if f.ParentGoalID != nil {
		q = q.Where("parent_goal_id = ?", *f.ParentGoalID)
	}
	if f.RootsOnly {
		q = q.Where("parent_goal_id IS NULL")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	return q
}
