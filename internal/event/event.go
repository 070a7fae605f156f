// Package event announces goal lifecycle transitions to the notification system.
// Delivery and fan-out are the subscriber's concern.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const TypeGoalStatusChanged = "GoalStatusChanged"

type GoalStatusChanged struct {
	Type            string          `json:"type"`
	GoalID          uuid.UUID       `json:"goal_id"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	ProgressPercent decimal.Decimal `json:"progress_percent"`
	ChangedBy       uuid.UUID       `json:"changed_by"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e GoalStatusChanged) error
}

// LogPublisher writes events to the process log. It is used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e GoalStatusChanged) error {
	config.WithContext(ctx).WithFields(logrus.Fields{
		"event":            e.Type,
		"goal_id":          e.GoalID,
		"from":             e.From,
		"to":               e.To,
		"progress_percent": e.ProgressPercent.String(),
	}).Info("Goal status changed")
	return nil
}
