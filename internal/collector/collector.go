package collector

import (
	"context"
	"errors"
	"fmt"

	"Terminal/internal/model"

	"go.uber.org/zap"
)

// MockSource serves fixed data for development and tests.
type MockSource struct {
	Rows     map[string][]RawRow
	Outcomes map[string][]RawRow
	Manifest model.Manifest
}

func mockKey(date string, level model.Level) string { return date + "/" + string(level) }

// NewMockSource returns an empty MockSource.
func NewMockSource() *MockSource {
	return &MockSource{Rows: map[string][]RawRow{}, Outcomes: map[string][]RawRow{}}
}

// SetRows registers rows for a date and level.
func (m *MockSource) SetRows(date string, level model.Level, rows ...RawRow) {
	m.Rows[mockKey(date, level)] = rows
}

// SetOutcomes registers outcomes for a date and level and marks the date complete.
func (m *MockSource) SetOutcomes(date string, level model.Level, rows ...RawRow) {
	m.Outcomes[mockKey(date, level)] = rows
	if !m.Manifest.Complete(date) {
		m.Manifest.Dates = append(m.Manifest.Dates, date)
	}
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) FetchRows(_ context.Context, date string, level model.Level) ([]RawRow, error) {
	rows, ok := m.Rows[mockKey(date, level)]
	if !ok {
		return nil, ErrNoData
	}
	return rows, nil
}

func (m *MockSource) FetchOutcomes(_ context.Context, date string, level model.Level) ([]RawRow, error) {
	rows, ok := m.Outcomes[mockKey(date, level)]
	if !ok {
		return nil, ErrNoData
	}
	return rows, nil
}

func (m *MockSource) FetchManifest(_ context.Context) (*model.Manifest, error) {
	mf := m.Manifest
	mf.Source = m.Name()
	return &mf, nil
}

// Collector fetches and coerces rows from a Source.
type Collector struct {
	Source Source
	logger *zap.Logger
}

// NewCollector creates a new Collector.
func NewCollector(source Source, logger *zap.Logger) *Collector {
	return &Collector{Source: source, logger: logger.With(zap.String("source", source.Name()))}
}

// Provenance names where a batch's rows came from.
func (c *Collector) Provenance(date string, level model.Level) string {
	return fmt.Sprintf("%s:snapshots/%s/%s", c.Source.Name(), date, level)
}

// Collect fetches the rows for date and level. ErrNoData is returned for an empty snapshot.
func (c *Collector) Collect(ctx context.Context, date string, level model.Level) ([]model.PerformanceRow, error) {
	raws, err := c.Source.FetchRows(ctx, date, level)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, ErrNoData
	}
	rows, err := CoerceRows(raws, level)
	if err != nil {
		return nil, err
	}
	malformed := 0
	for _, r := range rows {
		if len(r.Malformed) > 0 {
			malformed++
			c.logger.Warn("row has malformed fields, entity will hold",
				zap.String("id", r.ID), zap.Strings("fields", r.Malformed))
		}
	}
	c.logger.Info("collected rows",
		zap.String("date", date), zap.String("level", string(level)),
		zap.Int("rows", len(rows)), zap.Int("malformed", malformed))
	return rows, nil
}

// CollectOutcomes fetches realized outcomes for date and level.
func (c *Collector) CollectOutcomes(ctx context.Context, date string, level model.Level) ([]model.Outcome, error) {
	raws, err := c.Source.FetchOutcomes(ctx, date, level)
	if err != nil {
		return nil, err
	}
	out := make([]model.Outcome, 0, len(raws))
	for i, raw := range raws {
		o, err := CoerceOutcome(raw, date, level)
		if err != nil {
			if errors.Is(err, ErrInvalidRow) {
				c.logger.Warn("skipping outcome row", zap.Int("index", i), zap.Error(err))
				continue
			}
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Manifest returns the outcome source's completeness manifest.
func (c *Collector) Manifest(ctx context.Context) (*model.Manifest, error) {
	return c.Source.FetchManifest(ctx)
}
