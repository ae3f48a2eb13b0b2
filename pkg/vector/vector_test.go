package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUnitNorm(t *testing.T) {
	cases := [][]float32{
		{3, 4},
		{1, 0, 0},
		{0.001, -0.002, 0.003},
		{-5, 12, 0, 0},
	}
	for _, v := range cases {
		out, err := Normalize(v)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, float64(Norm(out)), 1e-5)
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	v := []float32{3, 4}
	_, err := Normalize(v)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, v)
}

func TestNormalizeZeroVector(t *testing.T) {
	_, err := Normalize([]float32{0, 0, 0})
	require.ErrorIs(t, err, ErrDegenerateVector)

	err = NormalizeInPlace([]float32{0, 0})
	require.ErrorIs(t, err, ErrDegenerateVector)
}

func TestAngularDistanceOrdering(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	c := []float32{-1, 0}

	// identical < orthogonal < opposite
	assert.InDelta(t, 0, float64(AngularDistance(a, a)), 1e-6)
	assert.InDelta(t, math.Sqrt2, float64(AngularDistance(a, b)), 1e-5)
	assert.InDelta(t, 2, float64(AngularDistance(a, c)), 1e-5)
}

func TestAngularDistanceNoNaN(t *testing.T) {
	// Rounding can push 2-2*dot slightly negative for unit vectors.
	v, err := Normalize([]float32{0.70710677, 0.70710677})
	require.NoError(t, err)
	d := AngularDistance(v, v)
	assert.False(t, math.IsNaN(float64(d)))
	assert.GreaterOrEqual(t, d, float32(0))
}
