package calculator

import "math"

// Clamp bounds v to [lo, hi]. NaN collapses to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Utilization returns how much of its budget an entity actually spent, in [0, 1].
// Budgets below 1 are treated as 1 so zero budgets don't divide by zero.
func Utilization(recentSpend, currentBudget float64) float64 {
	return Clamp(recentSpend/math.Max(currentBudget, 1), 0, 1)
}
