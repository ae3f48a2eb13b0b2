package forest

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/orneryd/modalsearch/pkg/vector"
)

// queueItem is one frontier entry in the joint best-first descent: a node in
// one tree, prioritized by the smallest hyperplane margin along its path.
type queueItem struct {
	tree     int
	node     int32
	priority float32
}

// descentQueue is a max-heap over queueItem priority: the most promising
// unexplored node across all trees is expanded first.
type descentQueue []queueItem

func (q descentQueue) Len() int           { return len(q) }
func (q descentQueue) Less(i, j int) bool { return q[i].priority > q[j].priority }
func (q descentQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *descentQueue) Push(x any)        { *q = append(*q, x.(queueItem)) }
func (q *descentQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Query returns the k approximate nearest neighbors of q by angular distance,
// ordered ascending by distance with ties broken by ascending position.
//
// k greater than the vector count returns every position (not an error).
// searchK, the candidate work budget, defaults to k×numTrees; QueryWithBudget
// accepts an explicit budget for recall tuning.
func (i *Index) Query(q []float32, k int) ([]Result, error) {
	return i.QueryWithBudget(q, k, 0)
}

// QueryWithBudget is Query with an explicit candidate budget. budget <= 0
// falls back to k×numTrees.
func (i *Index) QueryWithBudget(q []float32, k int, budget int) ([]Result, error) {
	if i == nil || !i.built {
		return nil, ErrNotBuilt
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}
	if len(q) != i.dim {
		return nil, fmt.Errorf("%w: query dim %d, index dim %d", ErrDimensionMismatch, len(q), i.dim)
	}
	query, err := vector.Normalize(q)
	if err != nil {
		return nil, fmt.Errorf("forest: query: %w", err)
	}
	if budget <= 0 {
		budget = k * len(i.trees)
	}
	if budget < k {
		budget = k
	}

	candidates := i.collectCandidates(query, budget)

	results := make([]Result, 0, len(candidates))
	for _, pos := range candidates {
		results = append(results, Result{
			Position: int(pos),
			Distance: vector.AngularDistance(query, i.vectors[pos]),
		})
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Distance != results[b].Distance {
			return results[a].Distance < results[b].Distance
		}
		return results[a].Position < results[b].Position
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// collectCandidates runs the best-first descent until budget leaf points have
// been gathered (deduplicated) or every frontier node is exhausted.
func (i *Index) collectCandidates(query []float32, budget int) []int32 {
	pq := make(descentQueue, 0, len(i.trees)*2)
	for t := range i.trees {
		pq = append(pq, queueItem{tree: t, node: 0, priority: float32(math.Inf(1))})
	}
	heap.Init(&pq)

	seen := make(map[int32]struct{}, budget)
	out := make([]int32, 0, budget)

	for pq.Len() > 0 && len(out) < budget {
		item := heap.Pop(&pq).(queueItem)
		n := &i.trees[item.tree].Nodes[item.node]

		if n.isLeaf() {
			for _, p := range n.Points {
				if _, dup := seen[p]; dup {
					continue
				}
				seen[p] = struct{}{}
				out = append(out, p)
			}
			continue
		}

		// Both half-spaces stay reachable; the far side is revisited only when
		// its margin-capped priority beats the rest of the frontier.
		margin := vector.Dot(n.Normal, query) - n.Offset
		heap.Push(&pq, queueItem{item.tree, n.Right, minf(item.priority, margin)})
		heap.Push(&pq, queueItem{item.tree, n.Left, minf(item.priority, -margin)})
	}
	return out
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
