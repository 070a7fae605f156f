// Package hierarchy walks the goal forest by id. Goals never point at each
// other in memory; every step is a lookup through Graph.
package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/sirupsen/logrus"
)

var ErrCycle = errors.New("goal hierarchy cycle")

type Graph interface {
	// ParentOf returns nil for a root goal.
	ParentOf(ctx context.Context, id uuid.UUID) (*uuid.UUID, error)
	ChildrenOf(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

// Ancestors returns the chain from id's parent up to its root, nearest first.
// A corrupted chain that loops back on itself is cut at the repeat and the
// partial chain is returned.
func Ancestors(ctx context.Context, g Graph, id uuid.UUID) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]struct{}{id: {}}
	var chain []uuid.UUID

	current := id
	for {
		if err := ctx.Err(); err != nil {
			return chain, err
		}
		parent, err := g.ParentOf(ctx, current)
		if err != nil {
			return chain, err
		}
		if parent == nil {
			return chain, nil
		}
		if _, loop := seen[*parent]; loop {
			config.WithContext(ctx).WithFields(logrus.Fields{
				"goal_id":   id,
				"repeat_id": *parent,
			}).Error("Cycle detected while walking goal ancestors, returning partial chain")
			return chain, nil
		}
		seen[*parent] = struct{}{}
		chain = append(chain, *parent)
		current = *parent
	}
}

// Descendants returns the subtree under id in breadth-first order.
func Descendants(ctx context.Context, g Graph, id uuid.UUID) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]struct{}{id: {}}
	var out []uuid.UUID

	queue := []uuid.UUID{id}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		next := queue[0]
		queue = queue[1:]

		children, err := g.ChildrenOf(ctx, next)
		if err != nil {
			return out, err
		}
		for _, child := range children {
			if _, dup := seen[child]; dup {
				config.WithContext(ctx).WithField("goal_id", child).Warn("Goal reached twice while walking descendants, skipping")
				continue
			}
			seen[child] = struct{}{}
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out, nil
}

// ValidateLink checks that making parentID the parent of childID keeps the
// forest acyclic. Cost is bounded by the depth of parentID.
func ValidateLink(ctx context.Context, g Graph, childID, parentID uuid.UUID) error {
	if childID == parentID {
		return fmt.Errorf("%w: a goal cannot be its own parent", ErrCycle)
	}

	ancestors, err := Ancestors(ctx, g, parentID)
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		if a == childID {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycle, childID, parentID)
		}
	}
	return nil
}
