// Package vector provides float32 vector math shared by the fusion and index layers.
//
// All similarity in modalsearch is angular: vectors are L2-normalized once, after
// which cosine similarity reduces to a dot product and angular distance to
// sqrt(2 - 2*dot). Callers rely only on the ordering of distances, not the scale.
package vector

import (
	"errors"
	"math"
)

// ErrDegenerateVector is returned when a zero-norm vector cannot be normalized.
// A zero vector has no direction, so it cannot participate in angular search.
var ErrDegenerateVector = errors.New("degenerate vector: zero norm")

// Dot returns the dot product of a and b. Lengths must match; the caller is
// responsible for dimension checks (the index validates dimensions up front).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the Euclidean (L2) norm of v.
func Norm(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}

// Normalize returns a unit-length copy of v.
// Returns ErrDegenerateVector when v has zero norm.
func Normalize(v []float32) ([]float32, error) {
	out := make([]float32, len(v))
	copy(out, v)
	if err := NormalizeInPlace(out); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeInPlace scales v to unit length in place.
// Returns ErrDegenerateVector when v has zero norm.
func NormalizeInPlace(v []float32) error {
	norm := Norm(v)
	if norm == 0 {
		return ErrDegenerateVector
	}
	inv := 1 / norm
	for i := range v {
		v[i] *= inv
	}
	return nil
}

// AngularDistance returns sqrt(2 - 2*cos) for unit vectors a and b.
// The value is clamped at zero so float rounding never produces NaN for
// near-identical vectors.
func AngularDistance(a, b []float32) float32 {
	d := 2 - 2*Dot(a, b)
	if d < 0 {
		d = 0
	}
	return float32(math.Sqrt(float64(d)))
}
