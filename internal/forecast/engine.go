// Package forecast projects goal completion from the progress history.
package forecast

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/history"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

const day = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

type Input struct {
	GoalID          uuid.UUID
	TargetValue     decimal.Decimal
	CurrentProgress decimal.Decimal
	StartDate       time.Time
	EndDate         time.Time
	// History must be ordered by RecordedAt.
	History []history.Entry
}

type Forecast struct {
	GoalID                  uuid.UUID        `json:"goal_id"`
	CurrentProgress         decimal.Decimal  `json:"current_progress"`
	VelocityPerDay          *decimal.Decimal `json:"velocity_per_day"`
	ProjectedCompletionDate *time.Time       `json:"projected_completion_date"`
	ProjectedFinalValue     *decimal.Decimal `json:"projected_final_value"`
	Confidence              Confidence       `json:"confidence"`
	SampleSize              int              `json:"sample_size"`
	OnTrack                 bool             `json:"on_track"`
}

type Engine struct {
	trailing time.Duration
}

func NewEngine(trailingDays int) *Engine {
	if trailingDays < 1 {
		trailingDays = 14
	}
	return &Engine{trailing: time.Duration(trailingDays) * day}
}

// Project never fails: sparse or flat history yields a forecast with Low
// confidence and no completion date.
func (e *Engine) Project(in Input, now time.Time) Forecast {
	out := Forecast{
		GoalID:          in.GoalID,
		CurrentProgress: in.CurrentProgress,
		Confidence:      ConfidenceLow,
	}

	points := e.sample(in)
	out.SampleSize = len(points)
	if len(points) < 2 {
		return out
	}

	origin := points[0].RecordedAt
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.RecordedAt.Sub(origin).Hours() / 24
		ys[i] = p.ProgressPercent.InexactFloat64()
	}
	if xs[len(xs)-1] == 0 {
		// All snapshots share one instant; no slope to measure.
		return out
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return out
	}
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		// Zero variance in progress: a flat line fits exactly.
		r2 = 1
	}

	velocity := decimal.NewFromFloat(beta).Round(4)
	out.VelocityPerDay = &velocity
	out.Confidence = confidenceFor(len(points), r2)

	if in.CurrentProgress.GreaterThanOrEqual(hundred) {
		done := now
		out.ProjectedCompletionDate = &done
	} else if beta > 0 {
		remaining := hundred.Sub(in.CurrentProgress).InexactFloat64()
		eta := now.Add(time.Duration(remaining / beta * float64(day)))
		out.ProjectedCompletionDate = &eta
	}

	daysLeft := in.EndDate.Sub(now).Hours() / 24
	if daysLeft < 0 {
		daysLeft = 0
	}
	finalPercent := in.CurrentProgress.InexactFloat64() + beta*daysLeft
	if finalPercent < 0 {
		finalPercent = 0
	}
	final := decimal.NewFromFloat(finalPercent).Div(hundred).Mul(in.TargetValue).Round(2)
	out.ProjectedFinalValue = &final

	out.OnTrack = out.ProjectedCompletionDate != nil && !out.ProjectedCompletionDate.After(in.EndDate)
	return out
}

// sample keeps snapshots inside the active window, narrowed to the trailing
// window before the newest one when that still leaves two points.
func (e *Engine) sample(in Input) []history.Entry {
	var active []history.Entry
	for _, h := range in.History {
		if h.RecordedAt.Before(in.StartDate) || h.RecordedAt.After(in.EndDate) {
			continue
		}
		active = append(active, h)
	}
	if len(active) < 2 {
		return active
	}

	cutoff := active[len(active)-1].RecordedAt.Add(-e.trailing)
	var trailing []history.Entry
	for _, h := range active {
		if !h.RecordedAt.Before(cutoff) {
			trailing = append(trailing, h)
		}
	}
	if len(trailing) < 2 {
		return active
	}
	return trailing
}

func confidenceFor(n int, r2 float64) Confidence {
	switch {
	case n >= 7 && r2 >= 0.8:
		return ConfidenceHigh
	case n >= 3 && r2 >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
