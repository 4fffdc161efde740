package strategy

import (
	"fmt"
	"time"

	"Terminal/internal/model"
)

// GateCooldown holds any non-hold signal for an entity still inside its cooldown window.
func GateCooldown(sig Signal, rec *model.CooldownRecord, now time.Time) Signal {
	if rec == nil || sig.Action == model.ActionHold || !rec.Active(now) {
		return sig
	}
	return sig.ForceHold(fmt.Sprintf("%s(until=%s)", MarkerCooldown, rec.NextEligibleTS.UTC().Format(time.RFC3339)))
}
