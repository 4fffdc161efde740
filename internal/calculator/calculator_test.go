package calculator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-1, 0, 1, 0},
		{2, 0, 1, 1},
		{math.NaN(), -0.5, 0.5, -0.5},
		{math.Inf(1), -0.5, 0.5, 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp(tt.v, tt.lo, tt.hi), "clamp(%v, %v, %v)", tt.v, tt.lo, tt.hi)
	}
}

func TestUtilization(t *testing.T) {
	assert.InDelta(t, 0.8, Utilization(800, 1000), 1e-12)
	assert.Equal(t, 1.0, Utilization(1500, 1000))
	assert.Equal(t, 0.0, Utilization(-5, 1000))
	// zero budget is floored at 1
	assert.Equal(t, 1.0, Utilization(3, 0))
}

func TestDecay(t *testing.T) {
	d, err := Decay(14)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, math.Pow(d, 14), 1e-12)

	_, err = Decay(0)
	assert.Error(t, err)
}

func TestEWMAStep_UsesUpdatedMean(t *testing.T) {
	mean, v := EWMAStep(1.0, 0, 2.0, 0.5)
	assert.InDelta(t, 1.5, mean, 1e-12)
	// (2.0 - 1.5)^2 * 0.5
	assert.InDelta(t, 0.125, v, 1e-12)
}

func TestUCBBonus(t *testing.T) {
	assert.Equal(t, 0.0, UCBBonus(1.5, 1, 1))
	assert.InDelta(t, math.Sqrt(1.5*math.Log(100)/10), UCBBonus(1.5, 100, 10), 1e-12)
	assert.Greater(t, UCBBonus(1.5, 1000, 1), UCBBonus(1.5, 1000, 500))
}
