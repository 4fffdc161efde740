package recorder

import (
	"context"
	"sync"

	"Terminal/internal/model"
)

// MemoryRecorder keeps batches in process. Used when SQLite is not configured
// and in tests.
type MemoryRecorder struct {
	mu      sync.Mutex
	batches map[string][]*model.Batch
	Applies []model.ApplyReport
	Learns  []model.LearnReport
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{batches: map[string][]*model.Batch{}}
}

func batchKey(date string, level model.Level) string { return date + "/" + string(level) }

func (m *MemoryRecorder) RecordBatch(_ context.Context, b *model.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	cp.Decisions = append([]model.Decision(nil), b.Decisions...)
	k := batchKey(b.Date, b.Level)
	m.batches[k] = append(m.batches[k], &cp)
	return nil
}

func (m *MemoryRecorder) LatestBatch(_ context.Context, date string, level model.Level) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bs := m.batches[batchKey(date, level)]
	if len(bs) == 0 {
		return nil, ErrNoBatch
	}
	cp := *bs[len(bs)-1]
	cp.Decisions = append([]model.Decision(nil), cp.Decisions...)
	return &cp, nil
}

func (m *MemoryRecorder) RecordApply(_ context.Context, r *model.ApplyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Applies = append(m.Applies, *r)
	return nil
}

func (m *MemoryRecorder) RecordLearn(_ context.Context, r *model.LearnReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Learns = append(m.Learns, *r)
	return nil
}

func (m *MemoryRecorder) Close() error { return nil }
