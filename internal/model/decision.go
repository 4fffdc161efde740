package model

import (
	"fmt"
	"strings"
	"time"
)

// Action is the budget change a decision asks for.
type Action string

const (
	ActionBump Action = "bump_budget"
	ActionTrim Action = "trim_budget"
	ActionHold Action = "hold"
)

// Decision is the immutable output for one entity.
type Decision struct {
	DecisionID       string    `json:"decision_id"`
	ID               string    `json:"id"`
	Level            Level     `json:"level"`
	AccountID        string    `json:"account_id"`
	Lane             string    `json:"lane"`
	Action           Action    `json:"action"`
	BudgetMultiplier float64   `json:"budget_multiplier"`
	BidCapMultiplier *float64  `json:"bid_cap_multiplier,omitempty"`
	SpendDeltaUSD    float64   `json:"spend_delta_usd"`
	Reason           string    `json:"reason"`
	PolicyVersion    string    `json:"policy_version"`
	Confidence       float64   `json:"confidence"`
	Date             string    `json:"date"`
	Provenance       string    `json:"provenance"`
	CreatedAt        time.Time `json:"created_at"`
}

// DecisionID builds the `date:level:id` key.
func DecisionID(date string, level Level, id string) string {
	return date + ":" + string(level) + ":" + id
}

// Batch is one persisted run of the pipeline for a date and level.
type Batch struct {
	BatchID   string       `json:"batch_id"`
	Date      string       `json:"date"`
	Level     Level        `json:"level"`
	Strategy  string       `json:"strategy"`
	Decisions []Decision   `json:"decisions"`
	Summary   BatchSummary `json:"summary"`
	CreatedAt time.Time    `json:"created_at"`
}

// BatchSummary aggregates a batch for audit output.
type BatchSummary struct {
	Total         int            `json:"total"`
	Actions       map[Action]int `json:"actions"`
	SpendDeltaUSD float64        `json:"spend_delta_usd"`
	LowConfidence int            `json:"low_confidence"`
	CooledDown    int            `json:"cooled_down"`
	Malformed     int            `json:"malformed"`
}

func (s BatchSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "decisions=%d bump=%d trim=%d hold=%d spend_delta_usd=%+.2f",
		s.Total, s.Actions[ActionBump], s.Actions[ActionTrim], s.Actions[ActionHold], s.SpendDeltaUSD)
	if s.LowConfidence > 0 {
		fmt.Fprintf(&b, " low_conf=%d", s.LowConfidence)
	}
	if s.CooledDown > 0 {
		fmt.Fprintf(&b, " cooldown=%d", s.CooledDown)
	}
	if s.Malformed > 0 {
		fmt.Fprintf(&b, " malformed=%d", s.Malformed)
	}
	return b.String()
}
