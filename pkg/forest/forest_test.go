package forest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomVectors returns n unit-ish random vectors of the given dimension,
// deterministic for a fixed seed.
func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = float32(rng.NormFloat64())
		}
		out[i] = v
	}
	return out
}

func TestBuildEmptyFails(t *testing.T) {
	_, err := Build(nil, 5, Options{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Build([][]float32{}, 5, Options{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBuildInvalidTrees(t *testing.T) {
	_, err := Build([][]float32{{1, 0}}, 0, Options{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBuildMixedDimensionsFails(t *testing.T) {
	_, err := Build([][]float32{{1, 0}, {1, 0, 0}}, 2, Options{})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQueryExactMatchFirst(t *testing.T) {
	vecs := randomVectors(200, 16, 7)
	idx, err := Build(vecs, 10, Options{})
	require.NoError(t, err)

	for _, pos := range []int{0, 42, 199} {
		results, err := idx.Query(vecs[pos], 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, pos, results[0].Position)
		assert.InDelta(t, 0, float64(results[0].Distance), 1e-3)
	}
}

func TestQueryOrderedByDistance(t *testing.T) {
	vecs := randomVectors(100, 8, 3)
	idx, err := Build(vecs, 8, Options{})
	require.NoError(t, err)

	results, err := idx.Query(vecs[0], 10)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestQueryKLargerThanN(t *testing.T) {
	vecs := randomVectors(5, 4, 1)
	idx, err := Build(vecs, 3, Options{})
	require.NoError(t, err)

	results, err := idx.Query(vecs[0], 50)
	require.NoError(t, err)
	assert.Len(t, results, 5, "k > N returns exactly N results")

	seen := map[int]bool{}
	for _, r := range results {
		seen[r.Position] = true
	}
	assert.Len(t, seen, 5, "every position returned exactly once")
}

func TestQueryUsageErrors(t *testing.T) {
	vecs := randomVectors(10, 4, 2)
	idx, err := Build(vecs, 2, Options{})
	require.NoError(t, err)

	_, err = idx.Query(vecs[0], 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = idx.Query(vecs[0], -3)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = idx.Query([]float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	var unbuilt Index
	_, err = unbuilt.Query(vecs[0], 1)
	require.ErrorIs(t, err, ErrNotBuilt)
}

func TestQuerySelfConsistency(t *testing.T) {
	vecs := randomVectors(300, 12, 11)
	idx, err := Build(vecs, 6, Options{})
	require.NoError(t, err)

	q := vecs[17]
	first, err := idx.Query(q, 10)
	require.NoError(t, err)
	second, err := idx.Query(q, 10)
	require.NoError(t, err)
	assert.Equal(t, first, second, "the same built index must answer identically")
}

func TestBuildDeterministicForSeed(t *testing.T) {
	vecs := randomVectors(150, 8, 5)

	a, err := Build(vecs, 4, Options{Seed: 99})
	require.NoError(t, err)
	b, err := Build(vecs, 4, Options{Seed: 99})
	require.NoError(t, err)

	q := randomVectors(1, 8, 6)[0]
	ra, err := a.Query(q, 5)
	require.NoError(t, err)
	rb, err := b.Query(q, 5)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestBuildIdenticalPointsTerminates(t *testing.T) {
	// All points identical: no separating hyperplane exists. The build must
	// fall back to leaves, not recurse forever.
	vecs := make([][]float32, 100)
	for i := range vecs {
		vecs[i] = []float32{1, 2, 3}
	}
	idx, err := Build(vecs, 3, Options{LeafSize: 4})
	require.NoError(t, err)

	results, err := idx.Query([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	// Position tiebreak: identical distances come back in ascending position.
	for i := 1; i < len(results); i++ {
		assert.Greater(t, results[i].Position, results[i-1].Position)
	}
}

func TestQueryRecallAgainstBruteForce(t *testing.T) {
	vecs := randomVectors(500, 16, 21)
	idx, err := Build(vecs, 20, Options{})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(33))
	const k = 10
	hits, total := 0, 0
	for trial := 0; trial < 20; trial++ {
		q := make([]float32, 16)
		for d := range q {
			q[d] = float32(rng.NormFloat64())
		}
		want := bruteForceTopK(vecs, q, k)
		got, err := idx.Query(q, k)
		require.NoError(t, err)
		gotSet := map[int]bool{}
		for _, r := range got {
			gotSet[r.Position] = true
		}
		for _, w := range want {
			if gotSet[w] {
				hits++
			}
			total++
		}
	}
	recall := float64(hits) / float64(total)
	assert.Greater(t, recall, 0.6, "forest recall@%d too low: %.2f", k, recall)
}

func bruteForceTopK(vecs [][]float32, q []float32, k int) []int {
	type scored struct {
		pos  int
		dist float64
	}
	var qn float64
	for _, x := range q {
		qn += float64(x) * float64(x)
	}
	qn = math.Sqrt(qn)

	all := make([]scored, len(vecs))
	for i, v := range vecs {
		var dot, vn float64
		for d := range v {
			dot += float64(v[d]) * float64(q[d])
			vn += float64(v[d]) * float64(v[d])
		}
		cos := dot / (math.Sqrt(vn) * qn)
		all[i] = scored{pos: i, dist: math.Sqrt(math.Max(0, 2-2*cos))}
	}
	for i := 0; i < k; i++ {
		min := i
		for j := i + 1; j < len(all); j++ {
			if all[j].dist < all[min].dist {
				min = j
			}
		}
		all[i], all[min] = all[min], all[i]
	}
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = all[i].pos
	}
	return out
}
