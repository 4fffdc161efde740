package collector

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"Terminal/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const snapshotJSON = `[
  {"id": "a1", "account_id": "act_1", "lane": "brand", "roas": 1.5, "impressions": 12000,
   "clicks": 300, "current_budget": 1000, "recent_spend": 800, "supports_budget_change": true},
  {"id": "a2", "roas": "n/a", "current_budget": "250.5", "recent_spend": 10, "supports_bid_cap_change": "true"},
  {"id": 77, "roas": 0.4, "current_budget": -1, "recent_spend": null}
]`

func TestCoerceRows(t *testing.T) {
	raws, err := DecodeRows([]byte(snapshotJSON))
	require.NoError(t, err)
	rows, err := CoerceRows(raws, model.LevelAdset)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	a1 := rows[0]
	assert.Equal(t, "act_1", a1.AccountID)
	assert.Equal(t, "brand", a1.Lane)
	assert.Equal(t, 1.5, a1.ROAS)
	assert.Equal(t, 12000.0, a1.Impressions)
	assert.True(t, a1.SupportsBudgetChange)
	assert.Empty(t, a1.Malformed)

	a2 := rows[1]
	assert.Equal(t, []string{"roas"}, a2.Malformed)
	assert.Equal(t, 0.0, a2.ROAS)
	assert.Equal(t, 250.5, a2.CurrentBudget)
	assert.True(t, a2.SupportsBudgetChange, "missing capability defaults to true")
	assert.True(t, a2.SupportsBidCapChange)

	a3 := rows[2]
	assert.Equal(t, "77", a3.ID)
	assert.ElementsMatch(t, []string{"current_budget", "recent_spend"}, a3.Malformed)
	assert.Equal(t, model.LevelAdset, a3.Level)
}

func TestCoerceRows_MissingIDRejectsBatch(t *testing.T) {
	raws, err := DecodeRows([]byte(`[{"id":"a1","roas":1,"current_budget":1,"recent_spend":1},{"roas":2}]`))
	require.NoError(t, err)
	_, err = CoerceRows(raws, model.LevelAdset)
	assert.ErrorIs(t, err, ErrInvalidRow)

	_, err = DecodeRows([]byte(`{"id":"a1"}`))
	assert.Error(t, err)
}

func TestCoerceOutcome(t *testing.T) {
	o, err := CoerceOutcome(RawRow{"id": "a1", "roas_realized": "1.25"}, "2026-03-01", model.LevelAdset)
	require.NoError(t, err)
	assert.Equal(t, 1.25, o.ROASRealized)
	assert.Equal(t, "2026-03-01", o.Date)

	o, err = CoerceOutcome(RawRow{"id": "a1", "roas": "bad"}, "2026-03-01", model.LevelAdset)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(o.ROASRealized))
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/snapshots/2026-03-01/adset":
			_, _ = w.Write([]byte(snapshotJSON))
		case "/api/v1/outcomes/2026-03-01/adset":
			_, _ = w.Write([]byte(`[{"id":"a1","roas_realized":1.1}]`))
		case "/api/v1/outcomes/manifest":
			_, _ = w.Write([]byte(`{"dates":["2026-03-01"]}`))
		case "/api/v1/snapshots/2026-03-02/adset":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "secret", "")
	col := NewCollector(src, zap.NewNop())
	ctx := context.Background()

	rows, err := col.Collect(ctx, "2026-03-01", model.LevelAdset)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	outs, err := col.CollectOutcomes(ctx, "2026-03-01", model.LevelAdset)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, 1.1, outs[0].ROASRealized)

	m, err := col.Manifest(ctx)
	require.NoError(t, err)
	assert.True(t, m.Complete("2026-03-01"))
	assert.Equal(t, "snapshot-http", m.Source)

	_, err = col.Collect(ctx, "2026-02-01", model.LevelCampaign)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = col.Collect(ctx, "2026-03-02", model.LevelAdset)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
	assert.Contains(t, err.Error(), "status 500")
}

func TestMockSource_EmptySnapshotIsNoData(t *testing.T) {
	src := NewMockSource()
	src.SetRows("2026-03-01", model.LevelAdset)
	col := NewCollector(src, zap.NewNop())

	_, err := col.Collect(context.Background(), "2026-03-01", model.LevelAdset)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, "mock:snapshots/2026-03-01/adset", col.Provenance("2026-03-01", model.LevelAdset))
}
