package recorder

import (
	"context"
	"errors"

	"Terminal/internal/model"
)

// ErrNoBatch is returned when no batch was recorded for a date and level.
var ErrNoBatch = errors.New("no batch recorded")

// Recorder is the batch writer. Batches are immutable once recorded; the
// most recent batch for a date and level is the authoritative one.
type Recorder interface {
	RecordBatch(ctx context.Context, b *model.Batch) error
	LatestBatch(ctx context.Context, date string, level model.Level) (*model.Batch, error)
	RecordApply(ctx context.Context, r *model.ApplyReport) error
	RecordLearn(ctx context.Context, r *model.LearnReport) error
	Close() error
}
