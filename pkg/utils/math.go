package utils

import "math"

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	n := NormL2(x)
	if n == 0 {
		return
	}
	inv := 1.0 / n
	for i := range x {
		x[i] = float32(float64(x[i]) * inv)
	}
}

// NormL2 returns the Euclidean norm of x, accumulated in float64.
func NormL2(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
