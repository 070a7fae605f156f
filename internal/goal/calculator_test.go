package goal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressCalculator_Compute(t *testing.T) {
	calc := NewProgressCalculator()

	tests := []struct {
		name    string
		mode    TrackingMode
		target  string
		value   string
		percent string
	}{
		{"auto halfway", TrackingAuto, "1000", "500", "50"},
		{"auto overachieved", TrackingAuto, "100", "250", "250"},
		{"auto rounds to two places", TrackingAuto, "3", "1", "33.33"},
		{"auto clamps negative", TrackingAuto, "100", "-20", "0"},
		{"manual keeps negative", TrackingManual, "100", "-20", "-20"},
		{"manual exact", TrackingManual, "80", "20", "25"},
		{"zero value", TrackingAuto, "100", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Goal{
				TrackingMode: tt.mode,
				TargetValue:  decimal.RequireFromString(tt.target),
			}
			value := decimal.RequireFromString(tt.value)

			percent, current, err := calc.Compute(g, value)
			require.NoError(t, err)
			assert.True(t, percent.Equal(decimal.RequireFromString(tt.percent)), "percent %s", percent)
			assert.True(t, current.Equal(value))
		})
	}
}

func TestProgressCalculator_RejectsNonPositiveTarget(t *testing.T) {
	calc := NewProgressCalculator()

	for _, target := range []string{"0", "-5"} {
		g := &Goal{TrackingMode: TrackingAuto, TargetValue: decimal.RequireFromString(target)}
		_, _, err := calc.Compute(g, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, ErrInvalidTarget)
		assert.ErrorIs(t, err, ErrValidation)
	}
}
