// Package forest implements approximate nearest-neighbor search over fixed
// dimension vectors using a forest of random-hyperplane partition trees with
// angular (cosine) distance.
//
// Build splits each tree node by sampling two distinct points and separating
// the node's point set with the hyperplane equidistant between them; a query
// runs a joint best-first descent across all trees, re-entering sibling
// half-spaces by hyperplane margin until a work budget proportional to
// k×numTrees is spent, then scores the collected candidates exactly.
//
// An Index is immutable once built: the only mutation model is a full rebuild.
// Queries against a built (or loaded) index are read-only and safe for
// concurrent callers without locking.
package forest

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/orneryd/modalsearch/pkg/vector"
)

var (
	// ErrDimensionMismatch is returned when a query vector's dimension does
	// not match the index.
	ErrDimensionMismatch = errors.New("forest: vector dimension mismatch")

	// ErrInvalidArgument is returned for unusable build/query arguments
	// (no vectors, k <= 0, numTrees <= 0).
	ErrInvalidArgument = errors.New("forest: invalid argument")

	// ErrNotBuilt is returned when querying an index that has not completed a build.
	ErrNotBuilt = errors.New("forest: index not built")

	// ErrCorruptIndexState is returned when persisted index/id-map artifacts
	// are unreadable, incomplete, or disagree with each other.
	ErrCorruptIndexState = errors.New("forest: corrupt index state")
)

const (
	defaultLeafSize      = 16
	defaultMaxDepth      = 64
	defaultSplitAttempts = 5
	defaultSeed          = int64(1)
)

// Options tune index construction. Zero values fall back to defaults.
type Options struct {
	// LeafSize is the point-count threshold at or below which a node becomes
	// a leaf (default 16).
	LeafSize int

	// MaxDepth bounds recursion depth; a node at MaxDepth becomes a leaf
	// regardless of size (default 64).
	MaxDepth int

	// SplitAttempts bounds resampling when a sampled hyperplane fails to
	// separate the points (default 5). Exhausting attempts makes a leaf.
	SplitAttempts int

	// Seed drives the per-tree RNG. Tree t uses Seed+t, so builds are
	// reproducible for a fixed seed and vector set.
	Seed int64
}

func (o Options) withDefaults() Options {
	if o.LeafSize <= 0 {
		o.LeafSize = defaultLeafSize
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = defaultMaxDepth
	}
	if o.SplitAttempts <= 0 {
		o.SplitAttempts = defaultSplitAttempts
	}
	if o.Seed == 0 {
		o.Seed = defaultSeed
	}
	return o
}

// node is one tree node in a flat per-tree array. Internal nodes carry a
// splitting hyperplane and child indexes; leaves carry their point list.
type node struct {
	Normal []float32 `msgpack:"normal"`
	Offset float32   `msgpack:"offset"`
	Left   int32     `msgpack:"left"`
	Right  int32     `msgpack:"right"`
	Points []int32   `msgpack:"points"`
}

func (n *node) isLeaf() bool { return n.Normal == nil }

// tree is one partition tree. Root is always node 0.
type tree struct {
	Nodes []node `msgpack:"nodes"`
}

// Index is an immutable forest of partition trees over N aligned vectors.
// Positions are dense integers 0..N-1 assigned at build time.
type Index struct {
	dim     int
	trees   []tree
	vectors [][]float32 // unit-normalized copies, indexed by position
	opts    Options
	built   bool
}

// Result is one query hit: the internal position and its angular distance
// from the query vector.
type Result struct {
	Position int
	Distance float32
}

// Build constructs a forest index over vectors using numTrees independent
// partition trees. vectors[i] becomes position i; all vectors must share one
// dimension. Trees are built in parallel over the read-only point set.
//
// Building from zero vectors fails with ErrInvalidArgument: an empty index is
// never considered built.
func Build(vectors [][]float32, numTrees int, opts Options) (*Index, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no vectors to index", ErrInvalidArgument)
	}
	if numTrees <= 0 {
		return nil, fmt.Errorf("%w: numTrees must be positive, got %d", ErrInvalidArgument, numTrees)
	}
	opts = opts.withDefaults()

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-dimension vectors", ErrInvalidArgument)
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dim %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		nv, err := vector.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("forest: vector %d: %w", i, err)
		}
		normalized[i] = nv
	}

	idx := &Index{
		dim:     dim,
		trees:   make([]tree, numTrees),
		vectors: normalized,
		opts:    opts,
	}

	all := make([]int32, len(vectors))
	for i := range all {
		all[i] = int32(i)
	}

	// Per-tree construction shares only read-only access to the point set.
	var wg sync.WaitGroup
	for t := range idx.trees {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(opts.Seed + int64(t)))
			b := &treeBuilder{idx: idx, rng: rng}
			points := make([]int32, len(all))
			copy(points, all)
			b.buildNode(points, 0)
			idx.trees[t] = tree{Nodes: b.nodes}
		}(t)
	}
	wg.Wait()

	idx.built = true
	return idx, nil
}

// Len returns the number of indexed vectors.
func (i *Index) Len() int { return len(i.vectors) }

// Dim returns the vector dimension of the index.
func (i *Index) Dim() int { return i.dim }

// NumTrees returns the number of partition trees in the forest.
func (i *Index) NumTrees() int { return len(i.trees) }

type treeBuilder struct {
	idx   *Index
	rng   *rand.Rand
	nodes []node
}

// buildNode recursively partitions points, returning the new node's index in
// the flat node array.
func (b *treeBuilder) buildNode(points []int32, depth int) int32 {
	id := int32(len(b.nodes))
	if len(points) <= b.idx.opts.LeafSize || depth >= b.idx.opts.MaxDepth {
		b.nodes = append(b.nodes, node{Points: points})
		return id
	}

	normal, offset, left, right, ok := b.split(points)
	if !ok {
		// Identical or inseparable points: terminate as a leaf rather than
		// recursing forever.
		b.nodes = append(b.nodes, node{Points: points})
		return id
	}

	b.nodes = append(b.nodes, node{Normal: normal, Offset: offset})
	leftID := b.buildNode(left, depth+1)
	rightID := b.buildNode(right, depth+1)
	b.nodes[id].Left = leftID
	b.nodes[id].Right = rightID
	return id
}

// split samples two distinct points and partitions by the hyperplane
// equidistant between them. Retries up to SplitAttempts when the sampled pair
// coincides or the resulting split leaves one side empty.
func (b *treeBuilder) split(points []int32) (normal []float32, offset float32, left, right []int32, ok bool) {
	for attempt := 0; attempt < b.idx.opts.SplitAttempts; attempt++ {
		ai := points[b.rng.Intn(len(points))]
		bi := points[b.rng.Intn(len(points))]
		if ai == bi {
			continue
		}
		va := b.idx.vectors[ai]
		vb := b.idx.vectors[bi]

		// normal = difference vector, offset = projection of the midpoint.
		n := make([]float32, b.idx.dim)
		for d := range n {
			n[d] = va[d] - vb[d]
		}
		if err := vector.NormalizeInPlace(n); err != nil {
			continue // identical vectors under different positions
		}
		var off float32
		for d := range n {
			off += n[d] * (va[d] + vb[d]) / 2
		}

		l := make([]int32, 0, len(points)/2)
		r := make([]int32, 0, len(points)/2)
		for _, p := range points {
			if vector.Dot(n, b.idx.vectors[p])-off > 0 {
				r = append(r, p)
			} else {
				l = append(l, p)
			}
		}
		if len(l) == 0 || len(r) == 0 {
			continue
		}
		return n, off, l, r, true
	}
	return nil, 0, nil, nil, false
}
