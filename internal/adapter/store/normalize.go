package store

import (
	"math"

	"github.com/viant/vec/search"

	"groundrag/internal/domain"
)

// float32 sums of squares stay normal and finite while the magnitude lies
// in this range.
const (
	minSafeMagnitude = 1e-18
	maxSafeMagnitude = 1e18
)

// Normalize returns a unit-L2 copy of v. A zero vector is returned as a zero
// vector rather than divided by zero; any other finite vector normalizes,
// however large or small its components.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	if isZero(v) {
		return out
	}

	m := float64(search.Float32s(v).Magnitude())
	if math.IsInf(m, 0) || math.IsNaN(m) || m < minSafeMagnitude || m > maxSafeMagnitude {
		m = magnitude64(v)
	}
	for i, x := range v {
		out[i] = float32(float64(x) / m)
	}
	return out
}

// magnitude64 squares in float64, which cannot overflow or underflow for
// any finite float32 input.
func magnitude64(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func checkFinite(v []float32) error {
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return domain.Validationf("component %d is not finite", i)
		}
	}
	return nil
}
