package goal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/saulo-duarte/chronos-goals/internal/event"
	"github.com/saulo-duarte/chronos-goals/internal/history"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/saulo-duarte/chronos-goals/internal/goal")

type mutation struct {
	value    decimal.Decimal
	source   history.Source
	byUser   uuid.UUID
	override *ManualOverride
}

type statusChange struct {
	goal Goal
	from GoalStatus
	by   uuid.UUID
	at   time.Time
}

func sourceFor(byUser uuid.UUID) history.Source {
	if byUser == SystemUser {
		return history.SourceScheduledTick
	}
	return history.SourceAutoCalc
}

// ManualAdjustProgress sets the goal's value directly. The override is kept for
// audit only: a later recalculation of an auto goal replaces the value.
func (s *service) ManualAdjustProgress(ctx context.Context, id uuid.UUID, newValue decimal.Decimal, reason string, byUser uuid.UUID) (*Goal, error) {
	ctx, span := tracer.Start(ctx, "goal.ManualAdjustProgress", trace.WithAttributes(
		attribute.String("goal.id", id.String()),
	))
	defer span.End()

	log := config.WithContext(ctx).WithFields(logrus.Fields{
		"goal_id": id,
		"user_id": byUser,
	})

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}
	if newValue.IsNegative() {
		return nil, invalid("value", "must not be negative")
	}

	s.tree.RLock()
	defer s.tree.RUnlock()

	var (
		result  *Goal
		changes []statusChange
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

		change, err := s.commit(ctx, goal, mutation{
			value:  newValue,
			source: history.SourceManualAdjustment,
			byUser: byUser,
			override: &ManualOverride{
				Value:  newValue,
				ByUser: byUser,
				AtTime: s.now(),
				Reason: reason,
			},
		})
		if err != nil {
			return err
		}
		if change != nil {
			changes = append(changes, *change)
		}
		result = goal
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Warn("Manual progress adjustment failed")
		return nil, err
	}

	log.WithField("progress_percent", result.ProgressPercent.String()).Info("Goal progress adjusted manually")

	if result.ParentGoalID != nil {
		more, err := s.rollup(ctx, *result.ParentGoalID, byUser)
		changes = append(changes, more...)
		if err != nil {
			s.announce(ctx, changes)
			return nil, err
		}
	}
	s.announce(ctx, changes)
	return result, nil
}

// RecalculateProgress recomputes an auto goal. A goal with children takes the
// sum of its children; a leaf asks the metric provider. Nothing is written
// unless the metric query succeeds.
func (s *service) RecalculateProgress(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (*Goal, error) {
	ctx, span := tracer.Start(ctx, "goal.RecalculateProgress", trace.WithAttributes(
		attribute.String("goal.id", id.String()),
		attribute.Bool("goal.scheduled", byUser == SystemUser),
	))
	defer span.End()

	log := config.WithContext(ctx).WithField("goal_id", id)

	s.tree.RLock()
	defer s.tree.RUnlock()

	var (
		result  *Goal
		changes []statusChange
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
		if goal.TrackingMode != TrackingAuto {
			return invalidOp("goal is manually tracked")
		}

		children, err := s.repo.ListChildren(ctx, goal.ID)
		if err != nil {
			return err
		}

		var value decimal.Decimal
		if len(children) > 0 {
			value = sumValues(children)
		} else {
			value, err = s.fetch(ctx, goal)
			if err != nil {
				return err
			}
		}

		change, err := s.commit(ctx, goal, mutation{
			value:  value,
			source: sourceFor(byUser),
			byUser: byUser,
		})
		if err != nil {
			return err
		}
		if change != nil {
			changes = append(changes, *change)
		}
		result = goal
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Warn("Goal recalculation failed")
		return nil, err
	}

	log.WithField("progress_percent", result.ProgressPercent.String()).Debug("Goal recalculated")

	if result.ParentGoalID != nil {
		more, err := s.rollup(ctx, *result.ParentGoalID, byUser)
		changes = append(changes, more...)
		if err != nil {
			s.announce(ctx, changes)
			return nil, err
		}
	}
	s.announce(ctx, changes)
	return result, nil
}

func (s *service) fetch(ctx context.Context, g *Goal) (decimal.Decimal, error) {
	value, err := s.metrics.GetValue(ctx, g.MetricType, g.Scope(), s.window(g))
	if err != nil {
		kind := "other"
		switch {
		case metric.IsTransient(err):
			kind = "transient"
		case metric.IsUpstream(err):
			kind = "permanent"
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			kind = "cancelled"
		}
		metricFailures.WithLabelValues(kind).Inc()
		return decimal.Zero, fmt.Errorf("query %s for goal %s: %w", g.MetricType, g.ID, err)
	}
	return value, nil
}

// window is the goal's active window up to now.
func (s *service) window(g *Goal) metric.Range {
	to := s.now()
	if g.EndDate.Before(to) {
		to = g.EndDate
	}
	if to.Before(g.StartDate) {
		to = g.StartDate
	}
	return metric.Range{From: g.StartDate, To: to}
}

// commit computes g's new progress from m, then updates the goal and appends
// the history entry in one transaction. Callers must hold g's lock. g is only
// modified when the transaction succeeds.
func (s *service) commit(ctx context.Context, g *Goal, m mutation) (*statusChange, error) {
	percent, current, err := s.calc.Compute(g, m.value)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := *g
	next.CurrentValue = current
	next.ProgressPercent = percent
	if m.override != nil {
		next.LastManualOverride = datatypes.NewJSONType(m.override)
	}
	next.Status = deriveStatus(&next, now)
	next.UpdatedBy = m.byUser
	next.UpdatedOn = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, &next); err != nil {
			return err
		}
		return s.history.WithTx(tx).Append(ctx, &history.Entry{
			GoalID:          next.ID,
			RecordedAt:      now,
			ProgressPercent: next.ProgressPercent,
			CurrentValue:    next.CurrentValue,
			Source:          m.source,
			RecordedBy:      m.byUser,
		})
	})
	if err != nil {
		return nil, err
	}
	observeUpdate(m.source)

	from := g.Status
	*g = next
	if from == next.Status {
		return nil, nil
	}
	return &statusChange{goal: next, from: from, by: m.byUser, at: now}, nil
}

// rollup re-aggregates the ancestor chain starting at parentID under the tree
// lock. The walk is detached from the caller's cancellation: the change that
// triggered it is already committed.
func (s *service) rollup(ctx context.Context, parentID uuid.UUID, byUser uuid.UUID) ([]statusChange, error) {
	ctx = context.WithoutCancel(ctx)

	var changes []statusChange
	err := s.withTreeLock(ctx, func() error {
		var err error
		changes, err = s.rollupLocked(ctx, parentID, byUser)
		return err
	})
	return changes, err
}

// rollupLocked walks the ancestors one goal lock at a time. It stops at a
// cancelled ancestor or once a sum is unchanged. Callers hold the tree lock.
func (s *service) rollupLocked(ctx context.Context, parentID uuid.UUID, byUser uuid.UUID) ([]statusChange, error) {
	ctx = context.WithoutCancel(ctx)
	log := config.WithContext(ctx)

	var changes []statusChange
	seen := map[uuid.UUID]struct{}{}
	current := &parentID

	for current != nil {
		id := *current
		if _, loop := seen[id]; loop {
			log.WithField("goal_id", id).Error("Cycle detected during roll-up, stopping")
			return changes, nil
		}
		seen[id] = struct{}{}

		var next *uuid.UUID
		err := s.withGoalLock(ctx, id, func() error {
			parent, err := s.repo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if parent.IsCancelled() {
				return nil
			}

			children, err := s.repo.ListChildren(ctx, id)
			if err != nil {
				return err
			}
			sum := sumValues(children)
			if sum.Equal(parent.CurrentValue) {
				return nil
			}

			change, err := s.commit(ctx, parent, mutation{
				value:  sum,
				source: sourceFor(byUser),
				byUser: byUser,
			})
			if err != nil {
				return err
			}
			if change != nil {
				changes = append(changes, *change)
			}
			log.WithFields(logrus.Fields{
				"goal_id":       parent.ID,
				"current_value": parent.CurrentValue.String(),
			}).Debug("Parent goal re-aggregated")
			next = parent.ParentGoalID
			return nil
		})
		if err != nil {
			return changes, fmt.Errorf("roll up goal %s: %w", id, err)
		}
		current = next
	}
	return changes, nil
}

func sumValues(goals []*Goal) decimal.Decimal {
	sum := decimal.Zero
	for _, g := range goals {
		sum = sum.Add(g.CurrentValue)
	}
	return sum
}

// announce publishes status transitions. Delivery failures are logged and
// never undo the committed change.
func (s *service) announce(ctx context.Context, changes []statusChange) {
	for _, c := range changes {
		statusTransitions.WithLabelValues(string(c.goal.Status)).Inc()
		err := s.publisher.Publish(ctx, event.GoalStatusChanged{
			Type:            event.TypeGoalStatusChanged,
			GoalID:          c.goal.ID,
			From:            string(c.from),
			To:              string(c.goal.Status),
			ProgressPercent: c.goal.ProgressPercent,
			ChangedBy:       c.by,
			OccurredAt:      c.at,
		})
		if err != nil {
			config.WithContext(ctx).WithError(err).WithField("goal_id", c.goal.ID).Error("Failed to publish goal status change")
		}
	}
}

// ExpireGoal moves an active goal past its end date to Expired. It reports
// false when the goal's status is already current. Progress is untouched, so
// no history entry is written.
func (s *service) ExpireGoal(ctx context.Context, id uuid.UUID, byUser uuid.UUID) (bool, error) {
	log := config.WithContext(ctx).WithField("goal_id", id)

	var change *statusChange
	err := s.withGoalLock(ctx, id, func() error {
		goal, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, byUser, goal.Scope()); err != nil {
			return err
		}
		if goal.Status != GoalStatusActive {
			return nil
		}

		now := s.now()
		status := deriveStatus(goal, now)
		if status == goal.Status {
			return nil
		}

		from := goal.Status
		goal.Status = status
		goal.UpdatedBy = byUser
		goal.UpdatedOn = now
		if err := s.repo.Update(ctx, goal); err != nil {
			return err
		}
		change = &statusChange{goal: *goal, from: from, by: byUser, at: now}
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to expire goal")
		return false, err
	}
	if change == nil {
		return false, nil
	}

	log.WithField("status", change.goal.Status).Info("Goal status refreshed after end date")
	s.announce(ctx, []statusChange{*change})
	return true, nil
}
