package goal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/saulo-duarte/chronos-goals/internal/event"
	"github.com/saulo-duarte/chronos-goals/internal/forecast"
	"github.com/saulo-duarte/chronos-goals/internal/history"
	"github.com/saulo-duarte/chronos-goals/internal/lock"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the only writer of goals and their progress history.
type Service interface {
	CreateGoal(ctx context.Context, dto CreateGoalDTO, byUser uuid.UUID) (uuid.UUID, error)
	UpdateGoal(ctx context.Context, id uuid.UUID, dto UpdateGoalDTO, byUser uuid.UUID) (bool, error)
	DeleteGoal(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (bool, error)
	GetGoal(ctx context.Context, id uuid.UUID) (*Goal, error)

	Query(ctx context.Context, f Filter, page, pageSize int) (*PagedResult, error)
	GetMetrics(ctx context.Context, f Filter) ([]GoalMetrics, error)
	GetAnalytics(ctx context.Context, f Filter) (*Analytics, error)

	ManualAdjustProgress(ctx context.Context, id uuid.UUID, newValue decimal.Decimal, reason string, byUser uuid.UUID) (*Goal, error)
	RecalculateProgress(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (*Goal, error)
	GetForecast(ctx context.Context, id uuid.UUID) (*forecast.Forecast, error)
	GetProgressHistory(ctx context.Context, id uuid.UUID, from, to *time.Time) ([]history.Entry, error)

	GetHierarchy(ctx context.Context, id uuid.UUID) (*Hierarchy, error)
	LinkToParent(ctx context.Context, childID, parentID uuid.UUID, byUser uuid.UUID) (*Goal, error)
	UnlinkFromParent(ctx context.Context, childID uuid.UUID, byUser uuid.UUID) (*Goal, error)
	GetChildren(ctx context.Context, id uuid.UUID) ([]*Goal, error)

	// ListRecalculable returns the goals a scheduled tick should recalculate.
	ListRecalculable(ctx context.Context) ([]uuid.UUID, error)
	// ListOverdue returns active goals whose end date has passed.
	ListOverdue(ctx context.Context) ([]uuid.UUID, error)
	ExpireGoal(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (bool, error)
}

type Dependencies struct {
	DB         *gorm.DB
	Repo       Repository
	History    history.Repository
	Metrics    metric.Provider
	Authorizer Authorizer
	Locker     lock.Locker
	Publisher  event.Publisher
	Forecast   *forecast.Engine
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

type service struct {
	db         *gorm.DB
	repo       Repository
	history    history.Repository
	metrics    metric.Provider
	authorizer Authorizer
	locker     lock.Locker
	publisher  event.Publisher
	engine     *forecast.Engine
	calc       ProgressCalculator
	now        func() time.Time

	// tree keeps in-process progress writes out of a relink. The treeLockKey
	// lock does the same across processes when the locker is shared.
	tree sync.RWMutex
}

// treeLockKey guards parent references and ancestor aggregation. It is always
// taken before any goal lock.
const treeLockKey = "goals:tree"

func NewService(deps Dependencies) Service {
	s := &service{
		db:         deps.DB,
		repo:       deps.Repo,
		history:    deps.History,
		metrics:    deps.Metrics,
		authorizer: deps.Authorizer,
		locker:     deps.Locker,
		publisher:  deps.Publisher,
		engine:     deps.Forecast,
		calc:       NewProgressCalculator(),
		now:        deps.Now,
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker()
	}
	if s.publisher == nil {
		s.publisher = event.LogPublisher{}
	}
	if s.engine == nil {
		s.engine = forecast.NewEngine(0)
	}
	if s.authorizer == nil {
		s.authorizer = NewScopeAuthorizer(nil)
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct reports the first failing field as a ValidationError.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return invalid(fe.Field(), "failed "+fe.Tag())
	}
	return err
}

func (s *service) CreateGoal(ctx context.Context, dto CreateGoalDTO, byUser uuid.UUID) (uuid.UUID, error) {
	log := config.WithContext(ctx)

	if err := validateCreate(dto); err != nil {
		log.WithError(err).Warn("Rejected goal creation")
		return uuid.Nil, err
	}

	scope := metric.Scope{OwnerID: dto.OwnerID, TeamID: dto.TeamID}
	if err := s.authorize(ctx, byUser, scope); err != nil {
		return uuid.Nil, err
	}

	if dto.ParentGoalID == nil {
		return s.insert(ctx, dto, byUser)
	}

	s.tree.Lock()
	defer s.tree.Unlock()

	var (
		id      uuid.UUID
		changes []statusChange
	)
	err := s.withTreeLock(ctx, func() error {
		parent, err := s.repo.FindByID(ctx, *dto.ParentGoalID)
		if err != nil {
			return fmt.Errorf("parent goal %s: %w", *dto.ParentGoalID, err)
		}
		if parent.IsCancelled() {
			return invalidOp("parent goal is cancelled")
		}
		if err := s.authorize(ctx, byUser, parent.Scope()); err != nil {
			return err
		}

		if id, err = s.insert(ctx, dto, byUser); err != nil {
			return err
		}
		changes, err = s.rollupLocked(ctx, parent.ID, byUser)
		return err
	})
	s.announce(ctx, changes)
	return id, err
}

func (s *service) insert(ctx context.Context, dto CreateGoalDTO, byUser uuid.UUID) (uuid.UUID, error) {
	log := config.WithContext(ctx)

	now := s.now()
	goal := &Goal{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(dto.Name),
		Description:        dto.Description,
		OwnerID:            dto.OwnerID,
		TeamID:             dto.TeamID,
		MetricType:         dto.MetricType,
		TargetValue:        dto.TargetValue,
		CurrentValue:       decimal.Zero,
		ProgressPercent:    decimal.Zero,
		TrackingMode:       dto.TrackingMode,
		ParentGoalID:       dto.ParentGoalID,
		StartDate:          dto.StartDate.UTC(),
		EndDate:            dto.EndDate.UTC(),
		Status:             GoalStatusActive,
		LastManualOverride: datatypes.NewJSONType[*ManualOverride](nil),
		CreatedBy:          byUser,
		CreatedOn:          now,
		UpdatedBy:          byUser,
		UpdatedOn:          now,
	}

	if err := s.repo.Create(ctx, goal); err != nil {
		log.WithError(err).Error("Failed to create goal")
		return uuid.Nil, err
	}

	log.WithFields(logrus.Fields{
		"goal_id":     goal.ID,
		"metric_type": goal.MetricType,
	}).Info("Goal created")
	return goal.ID, nil
}

func validateCreate(dto CreateGoalDTO) error {
	if err := validateStruct(dto); err != nil {
		return err
	}
	if strings.TrimSpace(dto.Name) == "" {
		return invalid("name", "is required")
	}
	if (dto.OwnerID == nil) == (dto.TeamID == nil) {
		return invalid("scope", "exactly one of owner_id and team_id must be set")
	}
	if !dto.TargetValue.IsPositive() {
		return ErrInvalidTarget
	}
	if !dto.MetricType.IsValid() {
		return invalid("metric_type", "is not supported")
	}
	if !dto.TrackingMode.IsValid() {
		return invalid("tracking_mode", "must be AUTO or MANUAL")
	}
	if dto.StartDate.IsZero() {
		return invalid("start_date", "is required")
	}
	if dto.EndDate.IsZero() {
		return invalid("end_date", "is required")
	}
	if dto.EndDate.Before(dto.StartDate) {
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

func (s *service) UpdateGoal(ctx context.Context, id uuid.UUID, dto UpdateGoalDTO, byUser uuid.UUID) (bool, error) {
	log := config.WithContext(ctx).WithField("goal_id", id)

	if err := validateStruct(dto); err != nil {
		return false, err
	}

	s.tree.RLock()
	defer s.tree.RUnlock()

	var (
		updated bool
		change  *statusChange
	)
	err := s.withGoalLock(ctx, id, func() error {
		goal, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, byUser, goal.Scope()); err != nil {
			return err
		}
		if goal.IsCancelled() {
			return invalidOp("goal is cancelled")
		}

		next := *goal
		if err := applyUpdate(&next, dto); err != nil {
			return err
		}
		if reflect.DeepEqual(next, *goal) {
			return nil
		}

		now := s.now()
		percentChanged := false
		if !next.TargetValue.Equal(goal.TargetValue) || next.TrackingMode != goal.TrackingMode {
			percent, _, err := s.calc.Compute(&next, next.CurrentValue)
			if err != nil {
				return err
			}
			percentChanged = !percent.Equal(goal.ProgressPercent)
			next.ProgressPercent = percent
		}
		next.Status = deriveStatus(&next, now)
		next.UpdatedBy = byUser
		next.UpdatedOn = now

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Update(ctx, &next); err != nil {
				return err
			}
			if !percentChanged {
				return nil
			}
			return s.history.WithTx(tx).Append(ctx, &history.Entry{
				GoalID:          next.ID,
				RecordedAt:      now,
				ProgressPercent: next.ProgressPercent,
				CurrentValue:    next.CurrentValue,
				Source:          sourceFor(byUser),
				RecordedBy:      byUser,
			})
		})
		if err != nil {
			return err
		}

		updated = true
		if next.Status != goal.Status {
			change = &statusChange{goal: next, from: goal.Status, by: byUser, at: now}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to update goal")
		return false, err
	}

	if change != nil {
		s.announce(ctx, []statusChange{*change})
	}
	if updated {
		log.Info("Goal updated")
	}
	return updated, nil
}

func applyUpdate(g *Goal, dto UpdateGoalDTO) error {
	if dto.Name != nil {
		name := strings.TrimSpace(*dto.Name)
		if name == "" {
			return invalid("name", "is required")
		}
		g.Name = name
	}
	if dto.Description != nil {
		g.Description = *dto.Description
	}
	if dto.MetricType != nil {
		if !dto.MetricType.IsValid() {
			return invalid("metric_type", "is not supported")
		}
		g.MetricType = *dto.MetricType
	}
	if dto.TargetValue != nil {
		if !dto.TargetValue.IsPositive() {
			return ErrInvalidTarget
		}
		if !dto.TargetValue.Equal(g.TargetValue) {
			g.TargetValue = *dto.TargetValue
		}
	}
	if dto.TrackingMode != nil {
		if !dto.TrackingMode.IsValid() {
			return invalid("tracking_mode", "must be AUTO or MANUAL")
		}
		g.TrackingMode = *dto.TrackingMode
	}
	if dto.StartDate != nil && !dto.StartDate.Equal(g.StartDate) {
		g.StartDate = dto.StartDate.UTC()
	}
	if dto.EndDate != nil && !dto.EndDate.Equal(g.EndDate) {
		g.EndDate = dto.EndDate.UTC()
	}
	if g.EndDate.Before(g.StartDate) {
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

// DeleteGoal cancels the goal. Its history is kept and its parent chain no
// longer counts it.
func (s *service) DeleteGoal(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (bool, error) {
	log := config.WithContext(ctx).WithField("goal_id", id)

	s.tree.RLock()
	defer s.tree.RUnlock()

	var (
		cancelled *Goal
		from      GoalStatus
	)
	now := s.now()
	err := s.withGoalLock(ctx, id, func() error {
		goal, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, byUser, goal.Scope()); err != nil {
			return err
		}
		if goal.IsCancelled() {
			return nil
		}

		from = goal.Status
		goal.Status = GoalStatusCancelled
		goal.UpdatedBy = byUser
		goal.UpdatedOn = now
		if err := s.repo.Update(ctx, goal); err != nil {
			return err
		}
		cancelled = goal
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to delete goal")
		return false, err
	}
	if cancelled == nil {
		return false, nil
	}

	log.Info("Goal cancelled")
	changes := []statusChange{{goal: *cancelled, from: from, by: byUser, at: now}}

	var rollErr error
	if cancelled.ParentGoalID != nil {
		more, err := s.rollup(ctx, *cancelled.ParentGoalID, byUser)
		changes = append(changes, more...)
		rollErr = err
	}
	s.announce(ctx, changes)
	if rollErr != nil {
		return true, rollErr
	}
	return true, nil
}

func (s *service) GetGoal(ctx context.Context, id uuid.UUID) (*Goal, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) authorize(ctx context.Context, userID uuid.UUID, scope metric.Scope) error {
	ok, err := s.authorizer.CanManage(ctx, userID, scope)
	if err != nil {
		return err
	}
	if !ok {
		config.WithContext(ctx).WithFields(logrus.Fields{
			"user_id": userID,
			"scope":   scope.String(),
		}).Warn("User cannot manage goal scope")
		return fmt.Errorf("%w: user %s cannot manage %s", ErrUnauthorized, userID, scope)
	}
	return nil
}

func (s *service) withTreeLock(ctx context.Context, fn func() error) error {
	release, err := s.locker.Lock(ctx, treeLockKey)
	if err != nil {
		return fmt.Errorf("lock goal tree: %w", err)
	}
	defer release()
	return fn()
}

func (s *service) withGoalLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	release, err := s.locker.Lock(ctx, "goal:"+id.String())
	if err != nil {
		return fmt.Errorf("lock goal %s: %w", id, err)
	}
	defer release()
	return fn()
}
