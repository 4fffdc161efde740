package model

import "time"

// LanePolicy holds the thresholds and step sizes for one lane.
// Step-down values are negative fractions of the current budget.
type LanePolicy struct {
	ROASUp         float64 `json:"roas_up" yaml:"roas_up"`
	ROASHold       float64 `json:"roas_hold" yaml:"roas_hold"`
	ROASDown       float64 `json:"roas_down" yaml:"roas_down"`
	StepUp         float64 `json:"step_up" yaml:"step_up"`
	StepDown       float64 `json:"step_down" yaml:"step_down"`
	MaxStepUp      float64 `json:"max_step_up" yaml:"max_step_up"`
	MaxStepDown    float64 `json:"max_step_down" yaml:"max_step_down"`
	PreviewStepCap float64 `json:"preview_step_cap" yaml:"preview_step_cap"`
}

// MultiplierBounds returns the closed range a budget multiplier may take under this lane.
func (p LanePolicy) MultiplierBounds() (lo, hi float64) {
	return 1 + p.MaxStepDown, 1 + p.MaxStepUp
}

// EntityPolicyState is the learned ROAS profile of one entity.
type EntityPolicyState struct {
	ID           string    `json:"id"`
	Level        Level     `json:"level"`
	ROASMean     float64   `json:"roas_mean"`
	ROASVar      float64   `json:"roas_var"`
	Updates      int       `json:"updates"`
	HalfLifeDays float64   `json:"half_life_days"`
	UpdatedAt    time.Time `json:"updated_at"`

	// LastOutcomeDate is the newest outcome date folded in, so a date is never learned twice.
	LastOutcomeDate string `json:"last_outcome_date,omitempty"`
}

// PolicyStates maps entity id to learned state.
type PolicyStates map[string]EntityPolicyState

// Clone returns a shallow copy safe to mutate.
func (s PolicyStates) Clone() PolicyStates {
	out := make(PolicyStates, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// CooldownRecord tracks when an entity may next receive a non-hold action.
type CooldownRecord struct {
	ID             string    `json:"id"`
	Level          Level     `json:"level"`
	LastAction     Action    `json:"last_action"`
	LastChangeTS   time.Time `json:"last_change_ts"`
	ChangesLast7d  int       `json:"changes_last_7d"`
	NextEligibleTS time.Time `json:"next_eligible_ts"`
}

// Active reports whether the record still blocks actions at now.
func (r CooldownRecord) Active(now time.Time) bool {
	return r.NextEligibleTS.After(now)
}

// CooldownRecords maps entity id to its cooldown record.
type CooldownRecords map[string]CooldownRecord

// Clone returns a shallow copy safe to mutate.
func (c CooldownRecords) Clone() CooldownRecords {
	out := make(CooldownRecords, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
