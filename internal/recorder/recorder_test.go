package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"Terminal/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleBatch(id string, created time.Time, actions ...model.Action) *model.Batch {
	b := &model.Batch{
		BatchID:   id,
		Date:      "2026-03-01",
		Level:     model.LevelAdset,
		Strategy:  "threshold",
		CreatedAt: created,
		Summary:   model.BatchSummary{Total: len(actions), Actions: map[model.Action]int{}},
	}
	for i, a := range actions {
		entity := string(rune('a' + i))
		b.Decisions = append(b.Decisions, model.Decision{
			DecisionID:       model.DecisionID(b.Date, b.Level, entity),
			ID:               entity,
			Level:            b.Level,
			Lane:             "default",
			Action:           a,
			BudgetMultiplier: 1.1,
			SpendDeltaUSD:    12.5,
			Reason:           "roas_above_up",
			PolicyVersion:    "terminal-v1:threshold",
			Confidence:       0.8,
			Date:             b.Date,
			Provenance:       "mock:snapshots/2026-03-01/adset",
			CreatedAt:        created,
		})
		b.Summary.Actions[a]++
	}
	return b
}

func recorders(t *testing.T) map[string]Recorder {
	sr, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "terminal.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sr.Close() })
	return map[string]Recorder{"sqlite": sr, "memory": NewMemoryRecorder()}
}

func TestRecorder_LatestBatchWins(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	for name, rec := range recorders(t) {
		t.Run(name, func(t *testing.T) {
			_, err := rec.LatestBatch(ctx, "2026-03-01", model.LevelAdset)
			assert.ErrorIs(t, err, ErrNoBatch)

			require.NoError(t, rec.RecordBatch(ctx, sampleBatch("b1", t0, model.ActionHold)))
			require.NoError(t, rec.RecordBatch(ctx, sampleBatch("b2", t0.Add(time.Hour),
				model.ActionBump, model.ActionTrim, model.ActionHold)))

			got, err := rec.LatestBatch(ctx, "2026-03-01", model.LevelAdset)
			require.NoError(t, err)
			assert.Equal(t, "b2", got.BatchID)
			require.Len(t, got.Decisions, 3)
			assert.Equal(t, []model.Action{model.ActionBump, model.ActionTrim, model.ActionHold},
				[]model.Action{got.Decisions[0].Action, got.Decisions[1].Action, got.Decisions[2].Action})
			assert.Equal(t, 1, got.Summary.Actions[model.ActionTrim])
			assert.Nil(t, got.Decisions[0].BidCapMultiplier)
			assert.True(t, got.CreatedAt.Equal(t0.Add(time.Hour)))
			assert.Equal(t, "2026-03-01:adset:a", got.Decisions[0].DecisionID)

			_, err = rec.LatestBatch(ctx, "2026-03-01", model.LevelCampaign)
			assert.ErrorIs(t, err, ErrNoBatch)
		})
	}
}

func TestSQLiteRecorder_DuplicateBatchIDRejected(t *testing.T) {
	sr, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "terminal.db"), zap.NewNop())
	require.NoError(t, err)
	defer sr.Close()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, sr.RecordBatch(ctx, sampleBatch("b1", now, model.ActionBump)))
	assert.Error(t, sr.RecordBatch(ctx, sampleBatch("b1", now, model.ActionTrim)))

	got, err := sr.LatestBatch(ctx, "2026-03-01", model.LevelAdset)
	require.NoError(t, err)
	require.Len(t, got.Decisions, 1)
	assert.Equal(t, model.ActionBump, got.Decisions[0].Action)
}

func TestSQLiteRecorder_Events(t *testing.T) {
	sr, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "terminal.db"), zap.NewNop())
	require.NoError(t, err)
	defer sr.Close()
	ctx := context.Background()

	require.NoError(t, sr.RecordApply(ctx, &model.ApplyReport{BatchID: "b1", Date: "2026-03-01",
		Level: model.LevelAdset, Applied: []string{"a", "b"}, Skipped: 1, At: time.Now()}))
	require.NoError(t, sr.RecordLearn(ctx, &model.LearnReport{BatchID: "b1", Date: "2026-03-01",
		Level: model.LevelAdset, Updated: 3, Stale: 1, At: time.Now()}))

	var applied, updated, stale int
	var entities string
	require.NoError(t, sr.db.QueryRow(`SELECT applied, entities FROM apply_events`).Scan(&applied, &entities))
	require.NoError(t, sr.db.QueryRow(`SELECT updated, stale FROM learn_events`).Scan(&updated, &stale))
	assert.Equal(t, 2, applied)
	assert.JSONEq(t, `["a","b"]`, entities)
	assert.Equal(t, 3, updated)
	assert.Equal(t, 1, stale)
}
