package goal

import (
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SystemUser acts for background recalculation. It is allowed on every scope.
var SystemUser = uuid.MustParse("00000000-0000-0000-0000-00000000005e")

type ManualOverride struct {
	Value  decimal.Decimal `json:"value"`
	ByUser uuid.UUID       `json:"by_user"`
	AtTime time.Time       `json:"at_time"`
	Reason string          `json:"reason"`
}

type Goal struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(200);not null" json:"name"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	OwnerID     *uuid.UUID `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	TeamID      *uuid.UUID `gorm:"type:uuid;index" json:"team_id,omitempty"`

	MetricType      metric.Type     `gorm:"type:varchar(32);not null" json:"metric_type"`
	TargetValue     decimal.Decimal `gorm:"type:numeric;not null" json:"target_value"`
	CurrentValue    decimal.Decimal `gorm:"type:numeric;not null" json:"current_value"`
	ProgressPercent decimal.Decimal `gorm:"type:numeric;not null" json:"progress_percent"`
	TrackingMode    TrackingMode    `gorm:"type:varchar(16);not null" json:"tracking_mode"`

	// ParentGoalID is a lookup reference only; the parent never owns the child.
	ParentGoalID *uuid.UUID `gorm:"type:uuid;index" json:"parent_goal_id,omitempty"`

	StartDate time.Time  `gorm:"not null" json:"start_date"`
	EndDate   time.Time  `gorm:"not null;index" json:"end_date"`
	Status    GoalStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	LastManualOverride datatypes.JSONType[*ManualOverride] `json:"last_manual_override"`

	CreatedBy uuid.UUID `gorm:"type:uuid;not null" json:"created_by"`
	CreatedOn time.Time `gorm:"not null" json:"created_on"`
	UpdatedBy uuid.UUID `gorm:"type:uuid;not null" json:"updated_by"`
	UpdatedOn time.Time `gorm:"not null" json:"updated_on"`
}

func (Goal) TableName() string { return "goals" }

func (g *Goal) Scope() metric.Scope {
	return metric.Scope{OwnerID: g.OwnerID, TeamID: g.TeamID}
}

func (g *Goal) Override() *ManualOverride {
	return g.LastManualOverride.Data()
}

func (g *Goal) IsCancelled() bool {
	return g.Status == GoalStatusCancelled
}

var hundred = decimal.NewFromInt(100)

// deriveStatus maps progress and the active window onto a status. Cancelled is terminal.
func deriveStatus(g *Goal, now time.Time) GoalStatus {
	switch {
	case g.Status == GoalStatusCancelled:
		return GoalStatusCancelled
	case g.ProgressPercent.GreaterThanOrEqual(hundred):
		return GoalStatusCompleted
	case now.After(g.EndDate):
		return GoalStatusExpired
	default:
		return GoalStatusActive
	}
}
