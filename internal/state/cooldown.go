package state

import (
	"time"

	"Terminal/internal/model"
)

// DefaultCooldown is the minimum spacing between non-hold actions on one entity.
const DefaultCooldown = 24 * time.Hour

const changeWindow = 7 * 24 * time.Hour

// NextCooldown returns the record an applied decision leaves behind.
// prev may be nil for an entity that was never changed.
func NextCooldown(prev *model.CooldownRecord, d model.Decision, now time.Time, spacing time.Duration) model.CooldownRecord {
	if spacing <= 0 {
		spacing = DefaultCooldown
	}
	changes := 1
	if prev != nil && now.Sub(prev.LastChangeTS) < changeWindow {
		changes = prev.ChangesLast7d + 1
	}
	return model.CooldownRecord{
		ID:             d.ID,
		Level:          d.Level,
		LastAction:     d.Action,
		LastChangeTS:   now,
		ChangesLast7d:  changes,
		NextEligibleTS: now.Add(spacing),
	}
}
