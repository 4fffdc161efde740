package terminal

import (
	"context"
	"strings"
	"testing"
	"time"

	"Terminal/internal/collector"
	"Terminal/internal/learner"
	"Terminal/internal/model"
	"Terminal/internal/policy"
	"Terminal/internal/recorder"
	"Terminal/internal/state"
	"Terminal/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDate = "2026-03-01"

type fakeNotifier struct {
	batches []*model.Batch
	learns  []*model.LearnReport
}

func (f *fakeNotifier) NotifyBatch(_ context.Context, b *model.Batch) error {
	f.batches = append(f.batches, b)
	return nil
}

func (f *fakeNotifier) NotifyLearn(_ context.Context, r *model.LearnReport) error {
	f.learns = append(f.learns, r)
	return nil
}

type fixture struct {
	svc    *Service
	src    *collector.MockSource
	repo   *state.MemoryRepository
	rec    *recorder.MemoryRecorder
	notify *fakeNotifier
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		src:    collector.NewMockSource(),
		repo:   state.NewMemoryRepository(),
		rec:    recorder.NewMemoryRecorder(),
		notify: &fakeNotifier{},
		now:    time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	tbl, err := policy.Merge(policy.File{})
	require.NoError(t, err)
	engine := strategy.NewEngine(tbl, strategy.Threshold{}, strategy.Options{}).WithClock(clock)
	l := learner.New(0)
	l.Now = clock

	f.svc = New(Deps{
		Engine:    engine,
		Store:     state.NewStore(f.repo),
		Recorder:  f.rec,
		Collector: collector.NewCollector(f.src, zap.NewNop()),
		Learner:   l,
		Gate:      learner.Gate{Location: time.UTC},
		Notifier:  f.notify,
		Logger:    zap.NewNop(),
		Now:       clock,
	})
	return f
}

func (f *fixture) seedRows() {
	f.src.SetRows(testDate, model.LevelAdset,
		collector.RawRow{"id": "weak", "roas": 0.5, "current_budget": 300.0, "recent_spend": 300.0},
		collector.RawRow{"id": "strong", "roas": 1.5, "current_budget": 1000.0, "recent_spend": 800.0},
		collector.RawRow{"id": "broken", "roas": "oops", "current_budget": 100.0, "recent_spend": 50.0},
	)
}

func (f *fixture) seedTrusted(t *testing.T, ids ...string) {
	t.Helper()
	states := model.PolicyStates{}
	for _, id := range ids {
		states[id] = model.EntityPolicyState{
			ID: id, Level: model.LevelAdset, Updates: 10, ROASMean: 1.4, ROASVar: 0.01, HalfLifeDays: 14,
		}
	}
	require.NoError(t, f.repo.SavePolicies(context.Background(), states))
}

func byID(b *model.Batch) map[string]model.Decision {
	out := map[string]model.Decision{}
	for _, d := range b.Decisions {
		out[d.ID] = d
	}
	return out
}

func TestSuggest_PersistsRankedBatch(t *testing.T) {
	f := newFixture(t)
	f.seedRows()
	f.seedTrusted(t, "strong")
	ctx := context.Background()

	batch, err := f.svc.Suggest(ctx, testDate, model.LevelAdset)
	require.NoError(t, err)
	require.NotEmpty(t, batch.BatchID)
	require.Len(t, batch.Decisions, 3)

	assert.Equal(t, "strong", batch.Decisions[0].ID, "largest move ranks first")
	ds := byID(batch)
	assert.Equal(t, model.ActionBump, ds["strong"].Action)
	assert.InDelta(t, 1.182, ds["strong"].BudgetMultiplier, 1e-3)
	assert.InDelta(t, 145.5, ds["strong"].SpendDeltaUSD, 0.1)
	assert.Equal(t, "mock:snapshots/2026-03-01/adset", ds["strong"].Provenance)
	assert.Equal(t, "2026-03-01:adset:strong", ds["strong"].DecisionID)

	assert.Equal(t, model.ActionHold, ds["weak"].Action)
	assert.Contains(t, ds["weak"].Reason, strategy.MarkerLowConf)
	assert.Contains(t, ds["broken"].Reason, strategy.MarkerBadInput)
	assert.Equal(t, 1, batch.Summary.Malformed)

	stored, err := f.svc.Latest(ctx, testDate, model.LevelAdset)
	require.NoError(t, err)
	assert.Equal(t, batch.BatchID, stored.BatchID)
	require.Len(t, f.notify.batches, 1)

	// Suggest reads state but never writes it.
	cds, err := f.repo.LoadCooldowns(ctx)
	require.NoError(t, err)
	assert.Empty(t, cds)
}

func TestSuggest_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Suggest(ctx, testDate, model.LevelAdset)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Suggest(ctx, "03/01/2026", model.LevelAdset)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Suggest(ctx, testDate, model.Level("keyword"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.src.SetRows(testDate, model.LevelAdset,
		collector.RawRow{"id": "a", "roas": 1, "current_budget": 1, "recent_spend": 1},
		collector.RawRow{"id": "a", "roas": 2, "current_budget": 1, "recent_spend": 1},
	)
	_, err = f.svc.Suggest(ctx, testDate, model.LevelAdset)
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.src.SetRows(testDate, model.LevelCampaign, collector.RawRow{"roas": 1})
	_, err = f.svc.Suggest(ctx, testDate, model.LevelCampaign)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Latest(ctx, testDate, model.LevelAdset)
	assert.ErrorIs(t, err, ErrNotFound, "rejected batches are not persisted")
}

func TestApply_WritesCooldownsAndGatesNextSuggest(t *testing.T) {
	f := newFixture(t)
	f.seedRows()
	f.seedTrusted(t, "strong", "weak")
	ctx := context.Background()

	batch, err := f.svc.Suggest(ctx, testDate, model.LevelAdset)
	require.NoError(t, err)
	ds := byID(batch)
	require.Equal(t, model.ActionBump, ds["strong"].Action)
	require.Equal(t, model.ActionTrim, ds["weak"].Action)

	rep, err := f.svc.Apply(ctx, testDate, model.LevelAdset, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"strong", "weak"}, rep.Applied)
	assert.Equal(t, 1, rep.Skipped, "hold decisions are not applied")

	cds, err := f.repo.LoadCooldowns(ctx)
	require.NoError(t, err)
	require.Contains(t, cds, "strong")
	assert.Equal(t, f.now.Add(24*time.Hour), cds["strong"].NextEligibleTS)
	assert.Equal(t, 1, cds["strong"].ChangesLast7d)
	assert.Equal(t, model.ActionTrim, cds["weak"].LastAction)

	again, err := f.svc.Apply(ctx, testDate, model.LevelAdset, nil)
	require.NoError(t, err)
	assert.Empty(t, again.Applied, "re-applying the same batch is a no-op")

	next, err := f.svc.Suggest(ctx, testDate, model.LevelAdset)
	require.NoError(t, err)
	for _, d := range next.Decisions {
		assert.Equal(t, model.ActionHold, d.Action, d.ID)
		assert.Equal(t, 1.0, d.BudgetMultiplier)
		assert.Zero(t, d.SpendDeltaUSD)
	}
	assert.True(t, strings.Contains(byID(next)["strong"].Reason, strategy.MarkerCooldown))
	assert.Equal(t, 2, next.Summary.CooledDown)

	require.Len(t, f.rec.Applies, 2)
}

func TestApply_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, testDate, model.LevelAdset, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	f.seedRows()
	_, err = f.svc.Suggest(ctx, testDate, model.LevelAdset)
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, testDate, model.LevelAdset, []string{"strong", "ghost"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	cds, err := f.repo.LoadCooldowns(ctx)
	require.NoError(t, err)
	assert.Empty(t, cds, "nothing written on rejection")
}

func TestApply_FiltersByID(t *testing.T) {
	f := newFixture(t)
	f.seedRows()
	f.seedTrusted(t, "strong", "weak")
	ctx := context.Background()

	_, err := f.svc.Suggest(ctx, testDate, model.LevelAdset)
	require.NoError(t, err)
	rep, err := f.svc.Apply(ctx, testDate, model.LevelAdset, []string{"weak"})
	require.NoError(t, err)
	assert.Equal(t, []string{"weak"}, rep.Applied)

	cds, err := f.repo.LoadCooldowns(ctx)
	require.NoError(t, err)
	assert.NotContains(t, cds, "strong")
}

func TestLearn_GateThenUpdate(t *testing.T) {
	f := newFixture(t)
	f.seedRows()
	f.seedTrusted(t, "strong")
	ctx := context.Background()

	_, err := f.svc.Suggest(ctx, testDate, model.LevelAdset)
	require.NoError(t, err)

	_, err = f.svc.Learn(ctx, testDate, model.LevelAdset)
	assert.ErrorIs(t, err, ErrNotReady, "manifest does not list the date yet")

	f.src.SetOutcomes(testDate, model.LevelAdset,
		collector.RawRow{"id": "strong", "roas_realized": 2.0},
		collector.RawRow{"id": "weak", "roas_realized": 0.4},
		collector.RawRow{"id": "broken", "roas_realized": "n/a"},
	)

	f.now = time.Date(2026, 3, 2, 4, 59, 0, 0, time.UTC)
	_, err = f.svc.Learn(ctx, testDate, model.LevelAdset)
	assert.ErrorIs(t, err, ErrNotReady, "before the local cutoff")

	f.now = time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)
	rep, err := f.svc.Learn(ctx, testDate, model.LevelAdset)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Updated)
	assert.Equal(t, 1, rep.Invalid)

	states, err := f.repo.LoadPolicies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, states["strong"].Updates)
	assert.Greater(t, states["strong"].ROASMean, 1.4)
	assert.Equal(t, 1, states["weak"].Updates)
	assert.Equal(t, 0.4, states["weak"].ROASMean)
	assert.Zero(t, states["weak"].ROASVar)

	again, err := f.svc.Learn(ctx, testDate, model.LevelAdset)
	require.NoError(t, err)
	assert.Zero(t, again.Updated)
	assert.Equal(t, 2, again.Stale)

	states, err = f.repo.LoadPolicies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, states["strong"].Updates, "a date is never learned twice")
	require.Len(t, f.notify.learns, 2)
}

func TestLearn_NoBatchIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.src.SetOutcomes(testDate, model.LevelAdset, collector.RawRow{"id": "a", "roas_realized": 1})
	_, err := f.svc.Learn(context.Background(), testDate, model.LevelAdset)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPreview_StatelessAndCapped(t *testing.T) {
	f := newFixture(t)
	f.seedTrusted(t, "strong")
	rows := []model.PerformanceRow{
		{ID: "strong", ROAS: 1.5, CurrentBudget: 1000, RecentSpend: 800, SupportsBudgetChange: true},
		{ID: "weak", ROAS: 0.5, CurrentBudget: 300, RecentSpend: 300, SupportsBudgetChange: true},
	}
	b, err := f.svc.Preview(testDate, model.LevelAdset, rows)
	require.NoError(t, err)
	assert.Empty(t, b.BatchID)
	ds := byID(b)
	assert.InDelta(t, 1.05, ds["strong"].BudgetMultiplier, 1e-9)
	assert.InDelta(t, 0.95, ds["weak"].BudgetMultiplier, 1e-9)
	assert.Zero(t, ds["strong"].Confidence)

	_, err = f.svc.Latest(context.Background(), testDate, model.LevelAdset)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Preview(testDate, model.LevelAdset, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Preview(testDate, model.LevelAdset, []model.PerformanceRow{{ROAS: 1}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
