package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceAutoCalc         Source = "AUTO_CALC"
	SourceManualAdjustment Source = "MANUAL_ADJUSTMENT"
	SourceScheduledTick    Source = "SCHEDULED_TICK"
)

// Entry is one immutable progress snapshot. GoalID is a soft reference: entries
// outlive the goal they describe.
type Entry struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	GoalID          uuid.UUID       `gorm:"type:uuid;not null;index:idx_progress_history_goal_time,priority:1" json:"goal_id"`
	RecordedAt      time.Time       `gorm:"not null;index:idx_progress_history_goal_time,priority:2" json:"recorded_at"`
	ProgressPercent decimal.Decimal `gorm:"type:numeric;not null" json:"progress_percent"`
	CurrentValue    decimal.Decimal `gorm:"type:numeric;not null" json:"current_value"`
	Source          Source          `gorm:"type:varchar(32);not null" json:"source"`
	RecordedBy      uuid.UUID       `gorm:"type:uuid;not null" json:"recorded_by"`
}

func (Entry) TableName() string { return "goal_progress_history" }
