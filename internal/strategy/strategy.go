package strategy

import (
	"fmt"
	"math"
	"strings"

	"Terminal/internal/calculator"
	"Terminal/internal/model"
)

// Reason markers appended by the gates. Summaries and audits match on them.
const (
	MarkerLowConf     = "low_conf"
	MarkerConfScale   = "conf_scale"
	MarkerCooldown    = "cooldown"
	MarkerBadInput    = "bad_input"
	MarkerUnsupported = "budget_change_unsupported"
	MarkerPreview     = "preview_clamp"
)

// DefaultExploration is the UCB1 exploration constant c.
const DefaultExploration = 1.5

// Kelly-lite edge bounds and the dead band around breakeven.
const (
	kellyEdgeMax  = 0.5
	kellyDeadBand = 0.05
)

// Signal is a strategy's raw verdict for one row, before confidence and cooldown.
type Signal struct {
	Action model.Action
	Delta  float64
	Reason []string
}

func hold(reason string) Signal {
	return Signal{Action: model.ActionHold, Reason: []string{reason}}
}

// ForceHold zeroes the signal and records why.
func (s Signal) ForceHold(marker string) Signal {
	s.Action = model.ActionHold
	s.Delta = 0
	s.Reason = append(append([]string{}, s.Reason...), marker)
	return s
}

func (s Signal) note(marker string) Signal {
	s.Reason = append(append([]string{}, s.Reason...), marker)
	return s
}

// ReasonString joins the audit trail.
func (s Signal) ReasonString() string {
	return strings.Join(s.Reason, "; ")
}

// BatchContext carries what a strategy may know about the rest of the batch.
type BatchContext struct {
	// TotalImpressions is Σ max(1, impressions) over the batch.
	TotalImpressions float64
}

// NewBatchContext summarises rows for the strategies.
func NewBatchContext(rows []model.PerformanceRow) BatchContext {
	var total float64
	for _, r := range rows {
		total += math.Max(1, r.Impressions)
	}
	return BatchContext{TotalImpressions: total}
}

// Strategy maps a row and its resolved lane policy to a raw signal.
type Strategy interface {
	Name() string
	Score(row model.PerformanceRow, lane model.LanePolicy, batch BatchContext) Signal
}

// Threshold bumps above roas_up and trims below roas_down by the lane's fixed steps.
type Threshold struct{}

func (Threshold) Name() string { return "threshold" }

func (Threshold) Score(row model.PerformanceRow, lane model.LanePolicy, _ BatchContext) Signal {
	switch {
	case row.ROAS >= lane.ROASUp:
		return Signal{
			Action: model.ActionBump,
			Delta:  lane.StepUp,
			Reason: []string{fmt.Sprintf("threshold: roas=%.3f >= roas_up=%.2f", row.ROAS, lane.ROASUp)},
		}
	case row.ROAS < lane.ROASDown:
		return Signal{
			Action: model.ActionTrim,
			Delta:  lane.StepDown,
			Reason: []string{fmt.Sprintf("threshold: roas=%.3f < roas_down=%.2f", row.ROAS, lane.ROASDown)},
		}
	}
	return hold(fmt.Sprintf("threshold: roas=%.3f within [%.2f, %.2f)", row.ROAS, lane.ROASDown, lane.ROASUp))
}

// KellyLite sizes the step by the distance from breakeven ROAS (1.0), bounded by the lane caps.
type KellyLite struct{}

func (KellyLite) Name() string { return "kelly_lite" }

func (KellyLite) Score(row model.PerformanceRow, lane model.LanePolicy, _ BatchContext) Signal {
	edge := calculator.Clamp(row.ROAS-1.0, -kellyEdgeMax, kellyEdgeMax)
	switch {
	case edge > kellyDeadBand:
		return Signal{
			Action: model.ActionBump,
			Delta:  calculator.Clamp(edge, lane.StepUp, lane.MaxStepUp),
			Reason: []string{fmt.Sprintf("kelly_lite: roas=%.3f edge=%+.3f", row.ROAS, edge)},
		}
	case edge < -kellyDeadBand:
		return Signal{
			Action: model.ActionTrim,
			Delta:  calculator.Clamp(edge, lane.MaxStepDown, lane.StepDown),
			Reason: []string{fmt.Sprintf("kelly_lite: roas=%.3f edge=%+.3f", row.ROAS, edge)},
		}
	}
	return hold(fmt.Sprintf("kelly_lite: roas=%.3f edge=%+.3f inside dead band", row.ROAS, edge))
}

// UCB adds a UCB1 exploration bonus to ROAS before testing roas_up, so thinly
// observed entities are not starved. Trims look at raw ROAS only.
type UCB struct {
	C float64
}

func (UCB) Name() string { return "ucb" }

func (u UCB) Score(row model.PerformanceRow, lane model.LanePolicy, batch BatchContext) Signal {
	c := u.C
	if c <= 0 {
		c = DefaultExploration
	}
	bonus := calculator.UCBBonus(c, batch.TotalImpressions, row.Impressions)
	score := row.ROAS + bonus
	switch {
	case score >= lane.ROASUp:
		return Signal{
			Action: model.ActionBump,
			Delta:  lane.StepUp,
			Reason: []string{fmt.Sprintf("ucb: roas=%.3f score=%.3f bonus=%.3f >= roas_up=%.2f", row.ROAS, score, bonus, lane.ROASUp)},
		}
	case row.ROAS < lane.ROASDown:
		return Signal{
			Action: model.ActionTrim,
			Delta:  lane.StepDown,
			Reason: []string{fmt.Sprintf("ucb: roas=%.3f < roas_down=%.2f", row.ROAS, lane.ROASDown)},
		}
	}
	return hold(fmt.Sprintf("ucb: roas=%.3f score=%.3f", row.ROAS, score))
}

// Names lists the selectable strategies.
func Names() []string {
	return []string{Threshold{}.Name(), KellyLite{}.Name(), UCB{}.Name()}
}

// Parse returns the strategy registered under name.
func Parse(name string, exploration float64) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "threshold":
		return Threshold{}, nil
	case "kelly_lite", "kelly-lite", "kelly":
		return KellyLite{}, nil
	case "ucb", "ucb1":
		return UCB{C: exploration}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q (want one of %s)", name, strings.Join(Names(), ", "))
}
