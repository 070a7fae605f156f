package goal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/saulo-duarte/chronos-goals/internal/hierarchy"
	"github.com/sirupsen/logrus"
)

// repoGraph exposes the stored parent references to the hierarchy walks.
type repoGraph struct {
	repo Repository
}

func (g repoGraph) ParentOf(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	return g.repo.ParentID(ctx, id)
}

func (g repoGraph) ChildrenOf(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	return g.repo.ChildIDs(ctx, id)
}

// LinkToParent makes parentID the parent of childID and re-aggregates the
// parent chain. Linking to the current parent again is a no-op.
func (s *service) LinkToParent(ctx context.Context, childID, parentID uuid.UUID, byUser uuid.UUID) (*Goal, error) {
	log := config.WithContext(ctx).WithFields(logrus.Fields{
		"goal_id":   childID,
		"parent_id": parentID,
	})

	s.tree.Lock()
	defer s.tree.Unlock()

	var (
		linked  *Goal
		changes []statusChange
	)
	err := s.withTreeLock(ctx, func() error {
		child, err := s.repo.FindByID(ctx, childID)
		if err != nil {
			return err
		}
		parent, err := s.repo.FindByID(ctx, parentID)
		if err != nil {
			return fmt.Errorf("parent goal %s: %w", parentID, err)
		}
		if err := s.authorize(ctx, byUser, child.Scope()); err != nil {
			return err
		}
		if err := s.authorize(ctx, byUser, parent.Scope()); err != nil {
			return err
		}

		if err := hierarchy.ValidateLink(ctx, repoGraph{repo: s.repo}, childID, parentID); err != nil {
			log.WithError(err).Warn("Rejected goal link")
			return err
		}
		if child.IsCancelled() {
			return invalidOp("goal is cancelled")
		}
		if parent.IsCancelled() {
			return invalidOp("parent goal is cancelled")
		}
		if child.ParentGoalID != nil {
			if *child.ParentGoalID == parentID {
				linked = child
				return nil
			}
			return invalidOp("goal already has a parent, unlink it first")
		}

		err = s.withGoalLock(ctx, childID, func() error {
			goal, err := s.repo.FindByID(ctx, childID)
			if err != nil {
				return err
			}
			goal.ParentGoalID = &parentID
			goal.UpdatedBy = byUser
			goal.UpdatedOn = s.now()
			if err := s.repo.Update(ctx, goal); err != nil {
				return err
			}
			linked = goal
			return nil
		})
		if err != nil {
			log.WithError(err).Error("Failed to link goal")
			return err
		}
		log.Info("Goal linked to parent")

		changes, err = s.rollupLocked(ctx, parentID, byUser)
		return err
	})
	s.announce(ctx, changes)
	if err != nil {
		return nil, err
	}
	return linked, nil
}

// UnlinkFromParent makes the goal a root again. The former parent chain drops
// the goal's value from its aggregate.
func (s *service) UnlinkFromParent(ctx context.Context, childID uuid.UUID, byUser uuid.UUID) (*Goal, error) {
	log := config.WithContext(ctx).WithField("goal_id", childID)

	s.tree.Lock()
	defer s.tree.Unlock()

	var (
		unlinked *Goal
		changes  []statusChange
	)
	err := s.withTreeLock(ctx, func() error {
		child, err := s.repo.FindByID(ctx, childID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, byUser, child.Scope()); err != nil {
			return err
		}
		if child.ParentGoalID == nil {
			return invalidOp("goal has no parent")
		}
		formerParent := *child.ParentGoalID

		err = s.withGoalLock(ctx, childID, func() error {
			goal, err := s.repo.FindByID(ctx, childID)
			if err != nil {
				return err
			}
			goal.ParentGoalID = nil
			goal.UpdatedBy = byUser
			goal.UpdatedOn = s.now()
			if err := s.repo.Update(ctx, goal); err != nil {
				return err
			}
			unlinked = goal
			return nil
		})
		if err != nil {
			log.WithError(err).Error("Failed to unlink goal")
			return err
		}
		log.WithField("parent_id", formerParent).Info("Goal unlinked from parent")

		changes, err = s.rollupLocked(ctx, formerParent, byUser)
		return err
	})
	s.announce(ctx, changes)
	if err != nil {
		return nil, err
	}
	return unlinked, nil
}

// GetHierarchy returns the ancestors nearest first and the descendants in
// breadth-first order.
func (s *service) GetHierarchy(ctx context.Context, id uuid.UUID) (*Hierarchy, error) {
	goal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.tree.RLock()
	defer s.tree.RUnlock()

	graph := repoGraph{repo: s.repo}
	ancestorIDs, err := hierarchy.Ancestors(ctx, graph, id)
	if err != nil {
		return nil, err
	}
	descendantIDs, err := hierarchy.Descendants(ctx, graph, id)
	if err != nil {
		return nil, err
	}

	ancestors, err := s.repo.FindByIDs(ctx, ancestorIDs)
	if err != nil {
		return nil, err
	}
	descendants, err := s.repo.FindByIDs(ctx, descendantIDs)
	if err != nil {
		return nil, err
	}

	return &Hierarchy{
		Goal:        goal,
		Ancestors:   ancestors,
		Descendants: descendants,
	}, nil
}

func (s *service) GetChildren(ctx context.Context, id uuid.UUID) ([]*Goal, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListChildren(ctx, id)
}
