package learner

import (
	"errors"
	"fmt"
	"time"

	"Terminal/internal/model"
)

// ErrNotReady means outcomes for the date can't be trusted yet. Callers retry later.
var ErrNotReady = errors.New("outcomes not ready")

// DateLayout is the calendar date format used for batches and outcomes.
const DateLayout = "2006-01-02"

// DefaultCutoff is the local time of day before which learning is refused.
const DefaultCutoff = 5 * time.Hour

// Gate refuses to learn from partial data: the outcome manifest must list the date
// and the local wall clock must be past the cutoff.
type Gate struct {
	Cutoff   time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Check returns nil when date may be learned, or an error wrapping ErrNotReady.
func (g Gate) Check(m *model.Manifest, date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	loc := g.Location
	if loc == nil {
		loc = time.Local
	}
	cutoff := g.Cutoff
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}

	// Wall-clock time of day, not time since midnight: they differ on DST days.
	local := now().In(loc)
	clock := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute
	if clock < cutoff {
		return fmt.Errorf("%w: local time %s is before cutoff %s", ErrNotReady, local.Format("15:04"), formatCutoff(cutoff))
	}
	if !m.Complete(date) {
		return fmt.Errorf("%w: manifest does not list %s", ErrNotReady, date)
	}
	return nil
}

// ParseCutoff reads an "HH:MM" time of day.
func ParseCutoff(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func formatCutoff(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
