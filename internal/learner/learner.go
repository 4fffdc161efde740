package learner

import (
	"fmt"
	"math"
	"time"

	"Terminal/internal/calculator"
	"Terminal/internal/model"
)

// DefaultHalfLifeDays is the half-life given to entities learned for the first time.
const DefaultHalfLifeDays = 14.0

// Result reports one learning pass.
type Result struct {
	Date string
	// States holds the new state of every entity that was updated.
	States []model.EntityPolicyState
	// NoOutcome counts decisions without a realized outcome row.
	NoOutcome int
	// Invalid counts outcome rows with a non-finite ROAS.
	Invalid int
	// Duplicates counts extra outcome rows for an entity already learned in this pass.
	Duplicates int
	// Stale counts entities whose state already includes this date or a later one.
	Stale int
}

// Learner folds realized outcomes into learned entity state.
type Learner struct {
	HalfLifeDays float64
	Now          func() time.Time
}

// New returns a Learner with the given default half-life (0 means DefaultHalfLifeDays).
func New(halfLifeDays float64) *Learner {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	return &Learner{HalfLifeDays: halfLifeDays, Now: time.Now}
}

// Update applies one realized ROAS to prev, which is nil for a first sample.
func (l *Learner) Update(prev *model.EntityPolicyState, id string, level model.Level, roas float64) (model.EntityPolicyState, error) {
	if math.IsNaN(roas) || math.IsInf(roas, 0) {
		return model.EntityPolicyState{}, fmt.Errorf("entity %s: non-finite roas", id)
	}
	next := model.EntityPolicyState{ID: id, Level: level, HalfLifeDays: l.HalfLifeDays, ROASMean: roas}
	if prev != nil {
		next = *prev
		if next.HalfLifeDays <= 0 {
			next.HalfLifeDays = l.HalfLifeDays
		}
		if next.Level == "" {
			next.Level = level
		}
	}
	decay, err := calculator.Decay(next.HalfLifeDays)
	if err != nil {
		return model.EntityPolicyState{}, fmt.Errorf("entity %s: %w", id, err)
	}
	next.ROASMean, next.ROASVar = calculator.EWMAStep(next.ROASMean, next.ROASVar, roas, decay)
	next.Updates++
	next.UpdatedAt = l.Now()
	return next, nil
}

// Learn updates every entity that has both a decision and an outcome.
// prior is read only; the caller persists Result.States.
func (l *Learner) Learn(date string, decisions []model.Decision, outcomes []model.Outcome, prior model.PolicyStates) Result {
	res := Result{Date: date}
	byID := make(map[string]model.Outcome, len(outcomes))
	for _, o := range outcomes {
		if o.Date != "" && o.Date != date {
			continue
		}
		if _, seen := byID[o.ID]; seen {
			res.Duplicates++
			continue
		}
		byID[o.ID] = o
	}

	learned := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		if learned[d.ID] {
			continue
		}
		o, ok := byID[d.ID]
		if !ok || (o.Level != "" && o.Level != d.Level) {
			res.NoOutcome++
			continue
		}
		var prev *model.EntityPolicyState
		if st, ok := prior[d.ID]; ok {
			if st.LastOutcomeDate != "" && st.LastOutcomeDate >= date {
				res.Stale++
				continue
			}
			prev = &st
		}
		next, err := l.Update(prev, d.ID, d.Level, o.ROASRealized)
		if err != nil {
			res.Invalid++
			continue
		}
		next.LastOutcomeDate = date
		learned[d.ID] = true
		res.States = append(res.States, next)
	}
	return res
}
