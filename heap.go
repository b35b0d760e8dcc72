package adp

import (
	"container/heap"
	"math"
)

// NeighborHeap is a bounded max-heap of (point index, distance) candidates
// with fixed capacity k. It keeps the k smallest distances seen so far;
// the root is always the current worst kept candidate. Both spatial index
// backends use it to drive exact k-nearest-neighbor searches, and it is
// exported for callers building their own traversals.
//
// Distance ties are broken by insertion order: when a full heap is offered
// a candidate no closer than the current worst, the earlier insertion is
// kept, and DrainSorted orders equal distances by insertion order. This
// makes results reproducible regardless of memory layout.
type NeighborHeap struct {
	items candidateHeap
	k     int
	seq   int
}

// NewNeighborHeap creates a heap with capacity k. k must be >= 1; smaller
// values are clamped to 1.
func NewNeighborHeap(k int) *NeighborHeap {
	if k < 1 {
		k = 1
	}
	return &NeighborHeap{items: make(candidateHeap, 0, k), k: k}
}

// Len returns the number of candidates currently kept.
func (h *NeighborHeap) Len() int { return len(h.items) }

// Cap returns the fixed capacity k.
func (h *NeighborHeap) Cap() int { return h.k }

// Full reports whether the heap holds k candidates.
func (h *NeighborHeap) Full() bool { return len(h.items) == h.k }

// PeekMax returns the largest kept distance, or +Inf when the heap is
// empty. Tree traversals prune a subtree only when the heap is full and
// the subtree's distance lower bound is not below PeekMax.
func (h *NeighborHeap) PeekMax() float64 {
	if len(h.items) == 0 {
		return math.Inf(1)
	}
	return h.items[0].dist
}

// Insert offers a candidate. While the heap is below capacity the
// candidate is always kept; at capacity it replaces the current worst only
// if strictly closer. O(log k).
func (h *NeighborHeap) Insert(index int, dist float64) {
	if len(h.items) < h.k {
		heap.Push(&h.items, candidate{index: index, dist: dist, seq: h.seq})
		h.seq++
		return
	}
	if dist >= h.items[0].dist {
		return
	}
	h.items[0] = candidate{index: index, dist: dist, seq: h.seq}
	h.seq++
	heap.Fix(&h.items, 0)
}

// DrainSorted empties the heap and returns the kept candidates in
// ascending distance order, equal distances in insertion order. The heap
// is unusable afterwards except by inserting into the freed capacity.
func (h *NeighborHeap) DrainSorted() ([]int, []float64) {
	n := len(h.items)
	indices := make([]int, n)
	distances := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		c := heap.Pop(&h.items).(candidate)
		indices[i] = c.index
		distances[i] = c.dist
	}
	h.seq = 0
	return indices, distances
}

type candidate struct {
	index int
	dist  float64
	seq   int
}

// candidateHeap is a max-heap ordered by (dist, seq): among equal
// distances the latest insertion sits closer to the root, so evictions
// and pops preserve insertion order for the survivors.
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	return h[i].seq > h[j].seq
}
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
