package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"Terminal/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleBatch() *model.Batch {
	return &model.Batch{
		BatchID:  "b-1",
		Date:     "2026-03-01",
		Level:    model.LevelAdset,
		Strategy: "threshold",
		Decisions: []model.Decision{
			{ID: "a<1>", Action: model.ActionBump, BudgetMultiplier: 1.182, SpendDeltaUSD: 145.45},
			{ID: "a2", Action: model.ActionTrim, BudgetMultiplier: 0.864, SpendDeltaUSD: -40.8},
			{ID: "a3", Action: model.ActionHold, BudgetMultiplier: 1},
		},
		Summary: model.BatchSummary{
			Total:         3,
			Actions:       map[model.Action]int{model.ActionBump: 1, model.ActionTrim: 1, model.ActionHold: 1},
			SpendDeltaUSD: 104.65,
			LowConfidence: 1,
		},
	}
}

func TestFormatBatch(t *testing.T) {
	msg := FormatBatch(sampleBatch(), 10)
	assert.Contains(t, msg, "bump 1, trim 1, hold 1")
	assert.Contains(t, msg, "$+104.65")
	assert.Contains(t, msg, "a&lt;1&gt; ×1.182")
	assert.Contains(t, msg, "low_conf 1")
	assert.NotContains(t, msg, "a3")
	assert.Contains(t, msg, "<code>b-1</code>")

	short := FormatBatch(sampleBatch(), 1)
	assert.Contains(t, short, "… 1 more")
	assert.NotContains(t, short, "a2")
}

func TestFormatLearn(t *testing.T) {
	msg := FormatLearn(&model.LearnReport{Date: "2026-03-01", Level: model.LevelAdset, Updated: 4, NoOutcome: 2, Stale: 1})
	assert.Contains(t, msg, "Updated: 4")
	assert.Contains(t, msg, "Already learned: 1")
	assert.NotContains(t, msg, "Invalid")
}

type fakeTelegram struct {
	mu       sync.Mutex
	sent     []map[string]string
	updates  string
	polled   chan struct{}
	pollOnce sync.Once
}

func (f *fakeTelegram) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			f.mu.Lock()
			f.sent = append(f.sent, payload)
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true}`))
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if r.URL.Query().Get("offset") == "0" {
				_, _ = w.Write([]byte(f.updates))
				return
			}
			f.pollOnce.Do(func() { close(f.polled) })
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		default:
			http.NotFound(w, r)
		}
	}
}

func (f *fakeTelegram) messages() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.sent...)
}

func TestNotifyBatch(t *testing.T) {
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	tn := NewTelegramNotifier("tok", "42", "", zap.NewNop())
	tn.APIBase = srv.URL
	require.NoError(t, tn.NotifyBatch(context.Background(), sampleBatch()))

	msgs := fake.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0]["chat_id"])
	assert.Equal(t, "HTML", msgs[0]["parse_mode"])
	assert.Contains(t, msgs[0]["text"], "Terminal")
}

func TestSend_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("tok", "42", "", zap.NewNop())
	tn.APIBase = srv.URL
	err := tn.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestStartPolling_DispatchesCommands(t *testing.T) {
	fake := &fakeTelegram{
		updates: `{"ok":true,"result":[
			{"update_id":7,"message":{"text":" /summary 2026-03-01 "}},
			{"update_id":8}
		]}`,
		polled: make(chan struct{}),
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	tn := NewTelegramNotifier("tok", "42", "", zap.NewNop())
	tn.APIBase = srv.URL

	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tn.StartPolling(ctx, func(_ context.Context, cmd string) string {
			got = append(got, cmd)
			return "ok: " + cmd
		})
	}()

	<-fake.polled
	cancel()
	<-done

	assert.Equal(t, []string{"/summary 2026-03-01"}, got)
	msgs := fake.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok: /summary 2026-03-01", msgs[0]["text"])
}
