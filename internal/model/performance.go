package model

// Level is the entity granularity a row or decision refers to.
type Level string

const (
	LevelAdset    Level = "adset"
	LevelCampaign Level = "campaign"
)

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelAdset, LevelCampaign:
		return Level(s), true
	}
	return "", false
}

// PerformanceRow is one entity's metrics for a day, as handed over by the snapshot source.
type PerformanceRow struct {
	ID                   string  `json:"id"`
	Level                Level   `json:"level"`
	AccountID            string  `json:"account_id"`
	Lane                 string  `json:"lane"`
	ROAS                 float64 `json:"roas"`
	Impressions          float64 `json:"impressions"`
	Clicks               float64 `json:"clicks"`
	CurrentBudget        float64 `json:"current_budget"`
	RecentSpend          float64 `json:"recent_spend"`
	SupportsBudgetChange bool    `json:"supports_budget_change"`
	SupportsBidCapChange bool    `json:"supports_bid_cap_change"`

	// Malformed lists numeric fields that could not be parsed and were zeroed.
	Malformed []string `json:"malformed,omitempty"`
}

// Outcome is the realized ROAS of an entity for a date, known the day after.
type Outcome struct {
	ID           string  `json:"id"`
	Level        Level   `json:"level"`
	Date         string  `json:"date"`
	ROASRealized float64 `json:"roas_realized"`
}

// Manifest lists the dates the outcome source has confirmed complete.
type Manifest struct {
	Source string   `json:"source"`
	Dates  []string `json:"dates"`
}

// Complete reports whether date is listed.
func (m *Manifest) Complete(date string) bool {
	if m == nil {
		return false
	}
	for _, d := range m.Dates {
		if d == date {
			return true
		}
	}
	return false
}
