package strategy

import (
	"Terminal/internal/calculator"
	"Terminal/internal/model"

	"github.com/shopspring/decimal"
)

// Estimate converts a gated signal into a budget multiplier and the USD it is
// expected to move. Hold always yields (1, 0).
func Estimate(row model.PerformanceRow, lane model.LanePolicy, sig Signal) (multiplier, spendDeltaUSD float64) {
	if sig.Action == model.ActionHold {
		return 1, 0
	}
	lo, hi := lane.MultiplierBounds()
	multiplier = calculator.Clamp(1+sig.Delta, lo, hi)
	util := calculator.Utilization(row.RecentSpend, row.CurrentBudget)

	spend := decimal.NewFromFloat(row.CurrentBudget).
		Mul(decimal.NewFromFloat(multiplier - 1)).
		Mul(decimal.NewFromFloat(util)).
		Round(2)
	return multiplier, spend.InexactFloat64()
}
