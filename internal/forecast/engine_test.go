package forecast

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/history"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
)

func series(percents ...float64) []history.Entry {
	out := make([]history.Entry, len(percents))
	for i, p := range percents {
		out[i] = history.Entry{
			RecordedAt:      start.Add(time.Duration(i) * day),
			ProgressPercent: decimal.NewFromFloat(p),
			Source:          history.SourceAutoCalc,
		}
	}
	return out
}

func input(h []history.Entry) Input {
	current := decimal.Zero
	if len(h) > 0 {
		current = h[len(h)-1].ProgressPercent
	}
	return Input{
		GoalID:          uuid.New(),
		TargetValue:     decimal.NewFromInt(1000),
		CurrentProgress: current,
		StartDate:       start,
		EndDate:         end,
		History:         h,
	}
}

func TestProject_SparseHistoryHasNoProjection(t *testing.T) {
	e := NewEngine(14)
	for _, h := range [][]history.Entry{nil, series(10)} {
		f := e.Project(input(h), start.Add(day))
		assert.Equal(t, ConfidenceLow, f.Confidence)
		assert.Nil(t, f.ProjectedCompletionDate)
		assert.Nil(t, f.VelocityPerDay)
		assert.Nil(t, f.ProjectedFinalValue)
	}
}

func TestProject_LinearProgress(t *testing.T) {
	h := series(10, 12, 14, 16, 18, 20, 22, 24)
	now := h[len(h)-1].RecordedAt

	f := NewEngine(14).Project(input(h), now)
	require.NotNil(t, f.VelocityPerDay)
	assert.True(t, f.VelocityPerDay.Equal(decimal.NewFromInt(2)), "velocity %s", f.VelocityPerDay)
	assert.Equal(t, ConfidenceHigh, f.Confidence)
	assert.Equal(t, 8, f.SampleSize)

	require.NotNil(t, f.ProjectedCompletionDate)
	// 76 points left at 2 per day.
	assert.WithinDuration(t, now.Add(38*day), *f.ProjectedCompletionDate, time.Minute)
	assert.True(t, f.OnTrack)

	require.NotNil(t, f.ProjectedFinalValue)
	assert.True(t, f.ProjectedFinalValue.GreaterThan(decimal.NewFromInt(1000)))
}

func TestProject_FlatOrDecliningHasNoCompletionDate(t *testing.T) {
	for name, h := range map[string][]history.Entry{
		"flat":      series(30, 30, 30, 30),
		"declining": series(40, 35, 30, 25),
	} {
		t.Run(name, func(t *testing.T) {
			f := NewEngine(14).Project(input(h), h[len(h)-1].RecordedAt)
			require.NotNil(t, f.VelocityPerDay)
			assert.False(t, f.VelocityPerDay.IsPositive())
			assert.Nil(t, f.ProjectedCompletionDate)
			assert.False(t, f.OnTrack)
		})
	}
}

func TestProject_TwoPointsIsLowConfidence(t *testing.T) {
	h := series(10, 20)
	f := NewEngine(14).Project(input(h), h[1].RecordedAt)
	assert.Equal(t, ConfidenceLow, f.Confidence)
	require.NotNil(t, f.ProjectedCompletionDate)
}

func TestProject_UsesTrailingWindow(t *testing.T) {
	h := series(0, 0, 0, 0)
	// Flat for the first days, then a steep recent climb.
	for i := 0; i < 4; i++ {
		h = append(h, history.Entry{
			RecordedAt:      start.Add(time.Duration(30+i) * day),
			ProgressPercent: decimal.NewFromInt(int64(10 + 5*i)),
		})
	}

	f := NewEngine(7).Project(input(h), h[len(h)-1].RecordedAt)
	assert.Equal(t, 4, f.SampleSize)
	require.NotNil(t, f.VelocityPerDay)
	assert.True(t, f.VelocityPerDay.Equal(decimal.NewFromInt(5)))
}

func TestProject_IgnoresSnapshotsOutsideActiveWindow(t *testing.T) {
	h := []history.Entry{
		{RecordedAt: start.Add(-10 * day), ProgressPercent: decimal.NewFromInt(90)},
		{RecordedAt: start.Add(day), ProgressPercent: decimal.NewFromInt(5)},
	}
	f := NewEngine(14).Project(input(h), start.Add(2*day))
	assert.Equal(t, 1, f.SampleSize)
	assert.Nil(t, f.ProjectedCompletionDate)
}

func TestProject_AchievedGoal(t *testing.T) {
	h := series(80, 95, 110)
	now := h[2].RecordedAt
	f := NewEngine(14).Project(input(h), now)
	require.NotNil(t, f.ProjectedCompletionDate)
	assert.True(t, f.ProjectedCompletionDate.Equal(now))
}
