package goal

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/forecast"
	"github.com/saulo-duarte/chronos-goals/internal/history"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *service) Query(ctx context.Context, f Filter, page, pageSize int) (*PagedResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	goals, total, err := s.repo.Query(ctx, f, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &PagedResult{
		Items:    goals,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *service) GetMetrics(ctx context.Context, f Filter) ([]GoalMetrics, error) {
	goals, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]GoalMetrics, 0, len(goals))
	for _, g := range goals {
		m := GoalMetrics{
			ID:              g.ID,
			Name:            g.Name,
			TargetValue:     g.TargetValue,
			CurrentValue:    g.CurrentValue,
			ProgressPercent: g.ProgressPercent,
			Status:          g.Status,
			EndDate:         g.EndDate,
			DaysRemaining:   daysRemaining(g.EndDate, now),
		}
		if m.Updates, err = s.history.Count(ctx, g.ID); err != nil {
			return nil, err
		}
		latest, err := s.history.Latest(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			m.LastRecordedAt = &latest.RecordedAt
		}
		out = append(out, m)
	}
	return out, nil
}

func daysRemaining(end, now time.Time) int {
	if !end.After(now) {
		return 0
	}
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

func (s *service) GetAnalytics(ctx context.Context, f Filter) (*Analytics, error) {
	goals, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}

	a := &Analytics{
		ByStatus:        map[GoalStatus]int{},
		ByMetricType:    map[metric.Type]int{},
		AverageProgress: decimal.Zero,
		CompletionRate:  decimal.Zero,
		TotalTarget:     decimal.Zero,
		TotalCurrent:    decimal.Zero,
	}

	progress := decimal.Zero
	active := 0
	for _, g := range goals {
		a.Total++
		a.ByStatus[g.Status]++
		a.ByMetricType[g.MetricType]++
		if g.IsCancelled() {
			continue
		}
		active++
		progress = progress.Add(g.ProgressPercent)
		a.TotalTarget = a.TotalTarget.Add(g.TargetValue)
		a.TotalCurrent = a.TotalCurrent.Add(g.CurrentValue)
		if g.ProgressPercent.GreaterThan(hundred) {
			a.OverachievedCount++
		}
	}

	if active > 0 {
		a.AverageProgress = progress.DivRound(decimal.NewFromInt(int64(active)), percentPlaces)
	}
	completed := a.ByStatus[GoalStatusCompleted]
	if closed := completed + a.ByStatus[GoalStatusExpired]; closed > 0 {
		a.CompletionRate = decimal.NewFromInt(int64(completed)).
			Mul(hundred).
			DivRound(decimal.NewFromInt(int64(closed)), percentPlaces)
	}
	return a, nil
}

// GetProgressHistory stays readable after the goal is cancelled.
func (s *service) GetProgressHistory(ctx context.Context, id uuid.UUID, from, to *time.Time) ([]history.Entry, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListByGoal(ctx, id, from, to)
}

func (s *service) GetForecast(ctx context.Context, id uuid.UUID) (*forecast.Forecast, error) {
	goal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.history.ListByGoal(ctx, id, &goal.StartDate, &goal.EndDate)
	if err != nil {
		return nil, err
	}

	f := s.engine.Project(forecast.Input{
		GoalID:          goal.ID,
		TargetValue:     goal.TargetValue,
		CurrentProgress: goal.ProgressPercent,
		StartDate:       goal.StartDate,
		EndDate:         goal.EndDate,
		History:         entries,
	}, s.now())
	return &f, nil
}

func (s *service) ListRecalculable(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListRecalculable(ctx, s.now())
}

func (s *service) ListOverdue(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListOverdue(ctx, s.now())
}
