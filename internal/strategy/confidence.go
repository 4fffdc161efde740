package strategy

import (
	"fmt"
	"math"

	"Terminal/internal/model"
)

// Confidence defaults.
const (
	DefaultMinUpdates = 3
	DefaultMaxSigma   = 0.5
)

// ConfidenceOptions bounds how much learned history an action needs.
// A nil MinUpdates means DefaultMinUpdates; zero turns the update-count check off.
type ConfidenceOptions struct {
	MinUpdates *int
	MaxSigma   float64
}

func (o ConfidenceOptions) limits() (minUpdates int, maxSigma float64) {
	minUpdates, maxSigma = DefaultMinUpdates, o.MaxSigma
	if o.MinUpdates != nil {
		minUpdates = *o.MinUpdates
	}
	if maxSigma <= 0 {
		maxSigma = DefaultMaxSigma
	}
	return minUpdates, maxSigma
}

// StepScale turns learned state into a step-size multiplier.
// A nil state counts as zero updates and zero variance.
func StepScale(st *model.EntityPolicyState) (scale, sigma float64) {
	var updates int
	var variance float64
	if st != nil {
		updates, variance = st.Updates, st.ROASVar
	}
	sigma = math.Sqrt(math.Max(variance, 0))
	updatesFactor := math.Min(1, float64(updates)/10)
	sigmaFactor := 1 / (1 + sigma)
	scale = math.Max(0.3, 0.2+0.8*updatesFactor) * sigmaFactor
	return scale, sigma
}

// ScaleConfidence vetoes the signal when history is too short or too noisy,
// otherwise shrinks its delta by StepScale. It also returns the confidence to
// report: the scale, or 0 when vetoed.
func ScaleConfidence(sig Signal, st *model.EntityPolicyState, opts ConfidenceOptions) (Signal, float64) {
	minUpdates, maxSigma := opts.limits()
	scale, sigma := StepScale(st)
	updates := 0
	if st != nil {
		updates = st.Updates
	}
	if updates < minUpdates || sigma > maxSigma {
		return sig.ForceHold(fmt.Sprintf("%s(updates=%d sigma=%.3f)", MarkerLowConf, updates, sigma)), 0
	}
	if sig.Action == model.ActionHold {
		return sig, scale
	}
	sig.Delta *= scale
	return sig.note(fmt.Sprintf("%s=%.3f", MarkerConfScale, scale)), scale
}
