package goal

import (
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/forecast"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/shopspring/decimal"
)

type CreateGoalDTO struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=4000"`
	OwnerID      *uuid.UUID      `json:"owner_id"`
	TeamID       *uuid.UUID      `json:"team_id"`
	MetricType   metric.Type     `json:"metric_type" validate:"required"`
	TargetValue  decimal.Decimal `json:"target_value"`
	TrackingMode TrackingMode    `json:"tracking_mode" validate:"required"`
	ParentGoalID *uuid.UUID      `json:"parent_goal_id"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
}

type UpdateGoalDTO struct {
	Name         *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description  *string          `json:"description" validate:"omitempty,max=4000"`
	MetricType   *metric.Type     `json:"metric_type"`
	TargetValue  *decimal.Decimal `json:"target_value"`
	TrackingMode *TrackingMode    `json:"tracking_mode"`
	StartDate    *time.Time       `json:"start_date"`
	EndDate      *time.Time       `json:"end_date"`
}

type ManualAdjustDTO struct {
	Value  decimal.Decimal `json:"value"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

type LinkParentDTO struct {
	ParentGoalID uuid.UUID `json:"parent_goal_id" validate:"required"`
}

type Filter struct {
	OwnerID      *uuid.UUID
	TeamID       *uuid.UUID
	Status       *GoalStatus
	MetricType   *metric.Type
	TrackingMode *TrackingMode
	ParentGoalID *uuid.UUID
	RootsOnly    bool
	Search       string
}

type PagedResult struct {
	Items    []*Goal `json:"items"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// GoalMetrics is the progress-only projection used by dashboards.
type GoalMetrics struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	TargetValue     decimal.Decimal `json:"target_value"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	ProgressPercent decimal.Decimal `json:"progress_percent"`
	Status          GoalStatus      `json:"status"`
	EndDate         time.Time       `json:"end_date"`
	DaysRemaining   int             `json:"days_remaining"`
	Updates         int64           `json:"updates"`
	LastRecordedAt  *time.Time      `json:"last_recorded_at,omitempty"`
}

type Analytics struct {
	Total             int                 `json:"total"`
	ByStatus          map[GoalStatus]int  `json:"by_status"`
	ByMetricType      map[metric.Type]int `json:"by_metric_type"`
	AverageProgress   decimal.Decimal     `json:"average_progress"`
	CompletionRate    decimal.Decimal     `json:"completion_rate"`
	OverachievedCount int                 `json:"overachieved_count"`
	TotalTarget       decimal.Decimal     `json:"total_target"`
	TotalCurrent      decimal.Decimal     `json:"total_current"`
}

type Hierarchy struct {
	Goal        *Goal   `json:"goal"`
	Ancestors   []*Goal `json:"ancestors"`
	Descendants []*Goal `json:"descendants"`
}

type ForecastResponse = forecast.Forecast
