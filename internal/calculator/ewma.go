package calculator

import (
	"errors"
	"math"
)

// Decay returns the per-day weight kept by an observation with the given half-life.
func Decay(halfLifeDays float64) (float64, error) {
	if halfLifeDays <= 0 || math.IsNaN(halfLifeDays) {
		return 0, errors.New("half-life must be positive")
	}
	return math.Pow(0.5, 1/halfLifeDays), nil
}

// EWMAStep folds one sample into a decayed mean and variance.
// The variance term is measured against the updated mean.
func EWMAStep(mean, variance, sample, decay float64) (newMean, newVar float64) {
	newMean = decay*mean + (1-decay)*sample
	d := sample - newMean
	newVar = decay*variance + (1-decay)*d*d
	return newMean, newVar
}
