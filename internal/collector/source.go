package collector

import (
	"context"
	"errors"

	"Terminal/internal/model"
)

// ErrNoData is returned by a Source that has nothing for the requested date and level.
var ErrNoData = errors.New("no data")

// Source hands performance rows, realized outcomes and the outcome manifest to the engine.
type Source interface {
	Name() string
	FetchRows(ctx context.Context, date string, level model.Level) ([]RawRow, error)
	FetchOutcomes(ctx context.Context, date string, level model.Level) ([]RawRow, error)
	FetchManifest(ctx context.Context) (*model.Manifest, error)
}
