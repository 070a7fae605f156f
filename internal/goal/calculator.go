package goal

import "github.com/shopspring/decimal"

const percentPlaces = 2

// ProgressCalculator turns a raw value into the goal's progress. It is pure:
// persisting the result and writing history is the caller's job.
type ProgressCalculator struct{}

func NewProgressCalculator() ProgressCalculator {
	return ProgressCalculator{}
}

// Compute returns the progress percent and the value to store as the goal's
// current value. Auto goals never report a negative percent; manual goals
// report whatever the supplied value implies.
func (ProgressCalculator) Compute(g *Goal, value decimal.Decimal) (percent, current decimal.Decimal, err error) {
	if !g.TargetValue.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrInvalidTarget
	}

	current = value
	percent = value.Mul(hundred).DivRound(g.TargetValue, percentPlaces)

	if g.TrackingMode == TrackingAuto && percent.IsNegative() {
		percent = decimal.Zero
	}
	return percent, current, nil
}
