package calculator

import "math"

// UCBBonus is the UCB1 exploration term sqrt(c·ln(T)/n).
// T and n are floored at 1, so a single-observation batch gets no bonus.
func UCBBonus(c, total, n float64) float64 {
	total = math.Max(total, 1)
	n = math.Max(n, 1)
	return math.Sqrt(c * math.Log(total) / n)
}
