package strategy

import (
	"fmt"
	"strings"
	"time"

	"Terminal/internal/calculator"
	"Terminal/internal/model"
)

// LaneResolver returns a fully populated policy for a lane name.
type LaneResolver interface {
	Resolve(lane string) model.LanePolicy
}

// Options configures an Engine.
type Options struct {
	Confidence    ConfidenceOptions
	PolicyVersion string
}

// Engine runs rows through simulate → confidence → cooldown → estimate → rank.
// It holds no state of its own; callers pass the loaded snapshots in.
type Engine struct {
	lanes    LaneResolver
	strategy Strategy
	opts     Options
	now      func() time.Time
}

// NewEngine builds an Engine. A nil strategy means Threshold.
func NewEngine(lanes LaneResolver, s Strategy, opts Options) *Engine {
	if s == nil {
		s = Threshold{}
	}
	if opts.PolicyVersion == "" {
		opts.PolicyVersion = "terminal-v1"
	}
	return &Engine{lanes: lanes, strategy: s, opts: opts, now: time.Now}
}

// WithClock overrides the engine's notion of now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// Strategy returns the configured strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// PolicyVersion identifies the strategy and settings that produced a decision.
func (e *Engine) PolicyVersion() string {
	return e.opts.PolicyVersion + ":" + e.strategy.Name()
}

// Input is one batch for the stateful pipeline.
type Input struct {
	Date       string
	Level      model.Level
	Rows       []model.PerformanceRow
	Policies   model.PolicyStates
	Cooldowns  model.CooldownRecords
	Provenance string
}

// Decide runs the full pipeline against the given state snapshots and returns
// the ranked decisions with their summary. It does not mutate the snapshots.
func (e *Engine) Decide(in Input) ([]model.Decision, model.BatchSummary) {
	now := e.now()
	batch := NewBatchContext(in.Rows)
	out := make([]model.Decision, 0, len(in.Rows))
	for _, row := range in.Rows {
		lane := e.lanes.Resolve(row.Lane)
		sig := e.simulate(row, lane, batch)

		var st *model.EntityPolicyState
		if s, ok := in.Policies[row.ID]; ok {
			st = &s
		}
		sig, conf := ScaleConfidence(sig, st, e.opts.Confidence)

		var rec *model.CooldownRecord
		if r, ok := in.Cooldowns[row.ID]; ok {
			rec = &r
		}
		sig = GateCooldown(sig, rec, now)

		out = append(out, e.build(in.Date, in.Level, row, lane, sig, conf, in.Provenance, now))
	}
	ranked := Rank(out)
	return ranked, Summarize(ranked)
}

// Preview simulates without reading or writing state. Deltas are capped at
// ±lane.preview_step_cap and confidence is reported as 0.
func (e *Engine) Preview(date string, level model.Level, rows []model.PerformanceRow, provenance string) ([]model.Decision, model.BatchSummary) {
	now := e.now()
	batch := NewBatchContext(rows)
	out := make([]model.Decision, 0, len(rows))
	for _, row := range rows {
		lane := e.lanes.Resolve(row.Lane)
		sig := e.simulate(row, lane, batch)
		if sig.Action != model.ActionHold {
			capped := calculator.Clamp(sig.Delta, -lane.PreviewStepCap, lane.PreviewStepCap)
			if capped != sig.Delta {
				sig.Delta = capped
				sig = sig.note(fmt.Sprintf("%s=%.2f", MarkerPreview, lane.PreviewStepCap))
			}
			if sig.Delta == 0 {
				sig = sig.ForceHold(MarkerPreview)
			}
		}
		out = append(out, e.build(date, level, row, lane, sig, 0, provenance, now))
	}
	ranked := Rank(out)
	return ranked, Summarize(ranked)
}

func (e *Engine) simulate(row model.PerformanceRow, lane model.LanePolicy, batch BatchContext) Signal {
	if len(row.Malformed) > 0 {
		return hold(fmt.Sprintf("%s(%s)", MarkerBadInput, strings.Join(row.Malformed, ",")))
	}
	if !row.SupportsBudgetChange {
		return hold(MarkerUnsupported)
	}
	return e.strategy.Score(row, lane, batch)
}

func (e *Engine) build(date string, level model.Level, row model.PerformanceRow, lane model.LanePolicy,
	sig Signal, conf float64, provenance string, now time.Time) model.Decision {
	mult, spend := Estimate(row, lane, sig)
	if level == "" {
		level = row.Level
	}
	return model.Decision{
		DecisionID:       model.DecisionID(date, level, row.ID),
		ID:               row.ID,
		Level:            level,
		AccountID:        row.AccountID,
		Lane:             row.Lane,
		Action:           sig.Action,
		BudgetMultiplier: mult,
		SpendDeltaUSD:    spend,
		Reason:           sig.ReasonString(),
		PolicyVersion:    e.PolicyVersion(),
		Confidence:       conf,
		Date:             date,
		Provenance:       provenance,
		CreatedAt:        now,
	}
}
