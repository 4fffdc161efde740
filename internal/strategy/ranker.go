package strategy

import (
	"math"
	"sort"
	"strings"

	"Terminal/internal/model"

	"github.com/shopspring/decimal"
)

// Rank orders decisions by |multiplier - 1|, largest first. Ties keep input order.
func Rank(ds []model.Decision) []model.Decision {
	out := make([]model.Decision, len(ds))
	copy(out, ds)
	sort.SliceStable(out, func(i, j int) bool {
		return magnitude(out[i]) > magnitude(out[j])
	})
	return out
}

func magnitude(d model.Decision) float64 {
	if d.Action == model.ActionHold {
		return 0
	}
	return math.Abs(d.BudgetMultiplier - 1)
}

// Summarize aggregates a batch for audit output.
func Summarize(ds []model.Decision) model.BatchSummary {
	s := model.BatchSummary{
		Total:   len(ds),
		Actions: map[model.Action]int{model.ActionBump: 0, model.ActionTrim: 0, model.ActionHold: 0},
	}
	total := decimal.Zero
	for _, d := range ds {
		s.Actions[d.Action]++
		total = total.Add(decimal.NewFromFloat(d.SpendDeltaUSD))
		switch {
		case strings.Contains(d.Reason, MarkerBadInput):
			s.Malformed++
		case strings.Contains(d.Reason, MarkerLowConf):
			s.LowConfidence++
		case strings.Contains(d.Reason, MarkerCooldown):
			s.CooledDown++
		}
	}
	s.SpendDeltaUSD = total.Round(2).InexactFloat64()
	return s
}
