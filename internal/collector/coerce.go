package collector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"Terminal/internal/model"
)

// RawRow is a row as decoded from JSON with numbers kept as json.Number.
type RawRow map[string]any

// ErrInvalidRow marks a row that can't be attributed to any entity.
var ErrInvalidRow = errors.New("invalid row")

// DecodeRows parses a JSON array of rows, keeping numbers exact.
func DecodeRows(data []byte) ([]RawRow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []RawRow
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// CoerceRow turns a raw row into a PerformanceRow. Unparseable numeric fields are
// zeroed and listed in Malformed; only a missing id is an error.
func CoerceRow(raw RawRow, level model.Level) (model.PerformanceRow, error) {
	id := str(raw["id"])
	if id == "" {
		return model.PerformanceRow{}, fmt.Errorf("%w: missing id", ErrInvalidRow)
	}
	row := model.PerformanceRow{
		ID:        id,
		Level:     level,
		AccountID: str(raw["account_id"]),
		Lane:      str(raw["lane"]),
	}
	if lv, ok := model.ParseLevel(str(raw["level"])); ok {
		row.Level = lv
	}

	num := func(key string, required bool, dst *float64) {
		rv, present := raw[key]
		if !present && !required {
			return
		}
		v, ok := number(rv)
		if !ok || v < 0 {
			row.Malformed = append(row.Malformed, key)
			return
		}
		*dst = v
	}
	num("roas", true, &row.ROAS)
	num("impressions", false, &row.Impressions)
	num("clicks", false, &row.Clicks)
	num("current_budget", true, &row.CurrentBudget)
	num("recent_spend", true, &row.RecentSpend)

	row.SupportsBudgetChange = flag(raw["supports_budget_change"], true)
	row.SupportsBidCapChange = flag(raw["supports_bid_cap_change"], false)
	return row, nil
}

// CoerceRows coerces a whole batch. Any row without an id rejects the batch.
func CoerceRows(raws []RawRow, level model.Level) ([]model.PerformanceRow, error) {
	rows := make([]model.PerformanceRow, 0, len(raws))
	for i, raw := range raws {
		row, err := CoerceRow(raw, level)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CoerceOutcome reads a realized outcome. A malformed ROAS comes back as NaN
// so the learner skips the entity instead of learning a zero.
func CoerceOutcome(raw RawRow, date string, level model.Level) (model.Outcome, error) {
	id := str(raw["id"])
	if id == "" {
		return model.Outcome{}, fmt.Errorf("%w: missing id", ErrInvalidRow)
	}
	o := model.Outcome{ID: id, Level: level, Date: date, ROASRealized: math.NaN()}
	if lv, ok := model.ParseLevel(str(raw["level"])); ok {
		o.Level = lv
	}
	if d := str(raw["date"]); d != "" {
		o.Date = d
	}
	key := "roas_realized"
	if _, ok := raw[key]; !ok {
		key = "roas"
	}
	if v, ok := number(raw[key]); ok {
		o.ROASRealized = v
	}
	return o, nil
}

func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		p, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func flag(v any, def bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	case json.Number:
		return t.String() != "0"
	}
	return def
}
