package model

import "time"

// ApplyReport describes the cooldowns an apply run wrote.
type ApplyReport struct {
	BatchID string    `json:"batch_id"`
	Date    string    `json:"date"`
	Level   Level     `json:"level"`
	Applied []string  `json:"applied"`
	Skipped int       `json:"skipped"`
	At      time.Time `json:"at"`
}

// LearnReport describes one learner pass.
type LearnReport struct {
	BatchID    string    `json:"batch_id"`
	Date       string    `json:"date"`
	Level      Level     `json:"level"`
	Updated    int       `json:"updated"`
	NoOutcome  int       `json:"no_outcome"`
	Invalid    int       `json:"invalid"`
	Duplicates int       `json:"duplicates"`
	Stale      int       `json:"stale"`
	At         time.Time `json:"at"`
}
