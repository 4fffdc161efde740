package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Terminal/internal/collector"
	"Terminal/internal/learner"
	"Terminal/internal/metrics"
	"Terminal/internal/model"
	"Terminal/internal/recorder"
	"Terminal/internal/state"
	"Terminal/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier is told about every persisted batch and learner pass.
type Notifier interface {
	NotifyBatch(ctx context.Context, b *model.Batch) error
	NotifyLearn(ctx context.Context, r *model.LearnReport) error
}

// Deps wires a Service. Collector and Notifier may be nil: without a
// collector only Preview works.
type Deps struct {
	Engine          *strategy.Engine
	Store           *state.Store
	Recorder        recorder.Recorder
	Collector       *collector.Collector
	Learner         *learner.Learner
	Gate            learner.Gate
	Notifier        Notifier
	Logger          *zap.Logger
	CooldownSpacing time.Duration
	Now             func() time.Time
}

// Service exposes preview, suggest, apply and learn over the policy core.
type Service struct {
	engine   *strategy.Engine
	store    *state.Store
	rec      recorder.Recorder
	col      *collector.Collector
	learner  *learner.Learner
	gate     learner.Gate
	notifier Notifier
	logger   *zap.Logger
	spacing  time.Duration
	now      func() time.Time
}

// New builds a Service.
func New(d Deps) *Service {
	s := &Service{
		engine:   d.Engine,
		store:    d.Store,
		rec:      d.Recorder,
		col:      d.Collector,
		learner:  d.Learner,
		gate:     d.Gate,
		notifier: d.Notifier,
		logger:   d.Logger,
		spacing:  d.CooldownSpacing,
		now:      d.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.learner == nil {
		s.learner = learner.New(0)
	}
	if s.spacing <= 0 {
		s.spacing = state.DefaultCooldown
	}
	if s.gate.Now == nil {
		s.gate.Now = s.now
	}
	return s
}

// Preview simulates rows without touching state. Deltas are capped to the
// lane's preview_step_cap.
func (s *Service) Preview(date string, level model.Level, rows []model.PerformanceRow) (*model.Batch, error) {
	if err := validateRequest(date, level); err != nil {
		return nil, err
	}
	if err := validateRows(rows); err != nil {
		return nil, err
	}
	decisions, summary := s.engine.Preview(date, level, rows, "preview")
	return &model.Batch{
		Date:      date,
		Level:     level,
		Strategy:  s.engine.Strategy().Name(),
		Decisions: decisions,
		Summary:   summary,
		CreatedAt: s.now(),
	}, nil
}

// Suggest collects the day's rows, runs the full pipeline against the stored
// state and persists the result as a new immutable batch.
func (s *Service) Suggest(ctx context.Context, date string, level model.Level) (*model.Batch, error) {
	start := time.Now()
	if err := validateRequest(date, level); err != nil {
		return nil, err
	}
	if s.col == nil {
		return nil, fmt.Errorf("%w: no snapshot source configured", ErrNotFound)
	}

	rows, err := s.col.Collect(ctx, date, level)
	switch {
	case errors.Is(err, collector.ErrNoData):
		return nil, fmt.Errorf("%w: no rows for %s/%s", ErrNotFound, date, level)
	case errors.Is(err, collector.ErrInvalidRow):
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	case err != nil:
		return nil, fmt.Errorf("collect rows: %w", err)
	}
	if err := validateRows(rows); err != nil {
		return nil, err
	}

	var (
		decisions []model.Decision
		summary   model.BatchSummary
	)
	// Decide inside the store span so a concurrent learn can't change state mid-batch.
	err = s.store.Run(ctx, func(txn *state.Txn) error {
		decisions, summary = s.engine.Decide(strategy.Input{
			Date:       date,
			Level:      level,
			Rows:       rows,
			Policies:   txn.Policies,
			Cooldowns:  txn.Cooldowns,
			Provenance: s.col.Provenance(date, level),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	batch := &model.Batch{
		BatchID:   uuid.NewString(),
		Date:      date,
		Level:     level,
		Strategy:  s.engine.Strategy().Name(),
		Decisions: decisions,
		Summary:   summary,
		CreatedAt: s.now(),
	}
	if err := s.rec.RecordBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("record batch: %w", err)
	}

	lv := string(level)
	metrics.BatchesTotal.WithLabelValues(lv, batch.Strategy).Inc()
	for action, n := range summary.Actions {
		metrics.DecisionsTotal.WithLabelValues(lv, string(action)).Add(float64(n))
	}
	metrics.LowConfidenceTotal.WithLabelValues(lv).Add(float64(summary.LowConfidence))
	metrics.CooldownBlockedTotal.WithLabelValues(lv).Add(float64(summary.CooledDown))
	metrics.MalformedRowsTotal.WithLabelValues(lv).Add(float64(summary.Malformed))
	metrics.SpendDeltaUSD.WithLabelValues(lv).Set(summary.SpendDeltaUSD)
	metrics.SuggestLatency.WithLabelValues(lv).Observe(time.Since(start).Seconds())

	s.logger.Info("batch persisted",
		zap.String("batch_id", batch.BatchID),
		zap.String("date", date),
		zap.String("level", lv),
		zap.String("summary", summary.String()))

	if s.notifier != nil {
		if err := s.notifier.NotifyBatch(ctx, batch); err != nil {
			s.logger.Warn("batch notification failed", zap.Error(err))
		}
	}
	return batch, nil
}

// Latest returns the authoritative batch for date and level.
func (s *Service) Latest(ctx context.Context, date string, level model.Level) (*model.Batch, error) {
	if err := validateRequest(date, level); err != nil {
		return nil, err
	}
	b, err := s.rec.LatestBatch(ctx, date, level)
	if errors.Is(err, recorder.ErrNoBatch) {
		return nil, fmt.Errorf("%w: no batch for %s/%s", ErrNotFound, date, level)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}
	return b, nil
}

// Apply writes cooldown records for the non-hold decisions of the latest
// batch. ids narrows the set; empty means every non-hold decision. Entities
// already changed at or after the batch was created are skipped, so applying
// a batch twice is harmless.
func (s *Service) Apply(ctx context.Context, date string, level model.Level, ids []string) (*model.ApplyReport, error) {
	batch, err := s.Latest(ctx, date, level)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Decision, len(batch.Decisions))
	for _, d := range batch.Decisions {
		byID[d.ID] = d
	}
	wanted := make(map[string]bool, len(ids))
	var unknown []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			unknown = append(unknown, id)
		}
		wanted[id] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: ids not in batch %s: %s", ErrInvalidInput, batch.BatchID, strings.Join(unknown, ","))
	}

	now := s.now()
	report := &model.ApplyReport{BatchID: batch.BatchID, Date: date, Level: level, At: now}
	err = s.store.Run(ctx, func(txn *state.Txn) error {
		for _, d := range batch.Decisions {
			if len(wanted) > 0 && !wanted[d.ID] {
				continue
			}
			if d.Action == model.ActionHold {
				report.Skipped++
				continue
			}
			var prev *model.CooldownRecord
			if r, ok := txn.Cooldowns[d.ID]; ok {
				if !r.LastChangeTS.Before(batch.CreatedAt) {
					report.Skipped++
					continue
				}
				prev = &r
			}
			txn.SetCooldown(state.NextCooldown(prev, d, now, s.spacing))
			report.Applied = append(report.Applied, d.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("write cooldowns: %w", err)
	}

	if err := s.rec.RecordApply(ctx, report); err != nil {
		s.logger.Warn("record apply failed", zap.Error(err))
	}
	metrics.CooldownsWrittenTotal.WithLabelValues(string(level)).Add(float64(len(report.Applied)))
	s.logger.Info("batch applied",
		zap.String("batch_id", batch.BatchID),
		zap.Int("applied", len(report.Applied)),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// Learn folds the realized outcomes for date into the learned state of every
// entity in the latest batch. It refuses with ErrNotReady until the outcome
// source has confirmed the date complete and the local cutoff has passed.
func (s *Service) Learn(ctx context.Context, date string, level model.Level) (*model.LearnReport, error) {
	if err := validateRequest(date, level); err != nil {
		return nil, err
	}
	if s.col == nil {
		return nil, fmt.Errorf("%w: no outcome source configured", ErrNotFound)
	}
	lv := string(level)

	manifest, err := s.col.Manifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	if err := s.gate.Check(manifest, date); err != nil {
		if errors.Is(err, ErrNotReady) {
			metrics.LearnerNotReadyTotal.WithLabelValues(lv).Inc()
			s.logger.Info("learn deferred", zap.String("date", date), zap.String("level", lv), zap.Error(err))
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	batch, err := s.Latest(ctx, date, level)
	if err != nil {
		return nil, err
	}
	outcomes, err := s.col.CollectOutcomes(ctx, date, level)
	if errors.Is(err, collector.ErrNoData) {
		return nil, fmt.Errorf("%w: no outcomes for %s/%s", ErrNotFound, date, level)
	}
	if err != nil {
		return nil, fmt.Errorf("collect outcomes: %w", err)
	}

	var res learner.Result
	err = s.store.Run(ctx, func(txn *state.Txn) error {
		res = s.learner.Learn(date, batch.Decisions, outcomes, txn.Policies)
		for _, st := range res.States {
			if err := txn.SetPolicy(st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("write policy state: %w", err)
	}

	report := &model.LearnReport{
		BatchID:    batch.BatchID,
		Date:       date,
		Level:      level,
		Updated:    len(res.States),
		NoOutcome:  res.NoOutcome,
		Invalid:    res.Invalid,
		Duplicates: res.Duplicates,
		Stale:      res.Stale,
		At:         s.now(),
	}
	if err := s.rec.RecordLearn(ctx, report); err != nil {
		s.logger.Warn("record learn failed", zap.Error(err))
	}
	metrics.LearnerUpdatesTotal.WithLabelValues(lv).Add(float64(report.Updated))
	metrics.LearnerSkippedTotal.WithLabelValues(lv, "no_outcome").Add(float64(report.NoOutcome))
	metrics.LearnerSkippedTotal.WithLabelValues(lv, "invalid").Add(float64(report.Invalid))
	metrics.LearnerSkippedTotal.WithLabelValues(lv, "stale").Add(float64(report.Stale))
	s.logger.Info("learned outcomes",
		zap.String("batch_id", batch.BatchID),
		zap.String("date", date),
		zap.Int("updated", report.Updated),
		zap.Int("no_outcome", report.NoOutcome),
		zap.Int("invalid", report.Invalid),
		zap.Int("stale", report.Stale))

	if s.notifier != nil {
		if err := s.notifier.NotifyLearn(ctx, report); err != nil {
			s.logger.Warn("learn notification failed", zap.Error(err))
		}
	}
	return report, nil
}

// PruneCooldowns drops cooldown records that closed more than keep ago.
func (s *Service) PruneCooldowns(ctx context.Context, keep time.Duration) (int, error) {
	n, err := s.store.PruneCooldowns(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("prune cooldowns: %w", err)
	}
	return n, nil
}

// Strategy names the configured strategy.
func (s *Service) Strategy() string { return s.engine.Strategy().Name() }

func validateRequest(date string, level model.Level) error {
	if _, err := time.Parse(learner.DateLayout, date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, date)
	}
	if _, ok := model.ParseLevel(string(level)); !ok {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidInput, level)
	}
	return nil
}

func validateRows(rows []model.PerformanceRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(rows))
	for i, r := range rows {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("%w: row %d has no id", ErrInvalidInput, i)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidInput, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}
