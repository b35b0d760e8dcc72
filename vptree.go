package adp

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const (
	// vantageCandidates is the number of points sampled as candidate
	// vantage points per node.
	vantageCandidates = 8
	// vantageWorkload is the number of points each candidate is scored
	// against. The candidate whose distances have the greatest variance
	// splits the node most evenly.
	vantageWorkload = 16
)

// VPTree is an exact vantage-point tree index. Unlike KDTree it never
// looks at coordinates, only at pairwise distances, so it works with any
// true metric, including user-supplied DistanceFunc values. Pruning
// relies on the triangle inequality alone.
//
// Each internal node stores one vantage point (the first entry of its
// index range) and the median distance from it to the remaining points
// as Radius. The left child holds the points inside the radius, the
// right child the points at or beyond it.
type VPTree struct {
	data     []float64
	n        int
	dims     int
	leafSize int
	metric   DistanceMetric
	idxArray []int
	nodes    []NodeData
	numNodes int
}

// vpCandidate pairs a point index with its distance from the current
// vantage point during node construction.
type vpCandidate struct {
	idx  int
	dist float64
}

// NewVPTree builds a vantage-point tree from flat row-major data with n
// points of dimensionality dims. leafSize controls the max points per
// leaf. workers > 1 lets large sibling subtrees build concurrently; the
// finished tree is identical for any worker count.
func NewVPTree(data []float64, n, dims int, metric DistanceMetric, leafSize, workers int) *VPTree {
	if leafSize < 1 {
		leafSize = 1
	}

	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	maxNodes := treeMaxNodes(n, leafSize)

	t := &VPTree{
		data:     dataCopy,
		n:        n,
		dims:     dims,
		leafSize: leafSize,
		metric:   metric,
		idxArray: idxArray,
		nodes:    make([]NodeData, maxNodes),
	}

	if n > 0 {
		t.buildNode(0, 0, n, newBuildLimiter(workers))
		t.numNodes = countTreeNodes(t.nodes, 0, maxNodes)
	}

	return t
}

// buildNode recursively builds the tree for points in idxArray[start:end].
func (t *VPTree) buildNode(nodeID, start, end int, lim buildLimiter) {
	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: true}
		return
	}

	// Move the chosen vantage point to the front of the range.
	vp := t.selectVantage(start, end)
	t.idxArray[start], t.idxArray[vp] = t.idxArray[vp], t.idxArray[start]

	// Order the remaining points by distance from the vantage point.
	// Ties fall back to index order so the tree is deterministic.
	vpPoint := t.point(t.idxArray[start])
	rest := make([]vpCandidate, count-1)
	for i := range rest {
		idx := t.idxArray[start+1+i]
		rest[i] = vpCandidate{idx: idx, dist: t.metric.Distance(vpPoint, t.point(idx))}
	}
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].dist != rest[j].dist {
			return rest[i].dist < rest[j].dist
		}
		return rest[i].idx < rest[j].idx
	})
	for i := range rest {
		t.idxArray[start+1+i] = rest[i].idx
	}

	// Median split: the nearer half goes left, the rest right. The
	// radius is the first right-side distance, so inside points sit at
	// or within it and outside points at or beyond it; pruning relies
	// only on those two bounds.
	mid := start + count/2
	radius := rest[count/2-1].dist

	t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: false, Radius: radius}

	if count > buildGrain && lim.tryAcquire() {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer lim.release()
			t.buildNode(2*nodeID+1, start+1, mid, lim)
		}()
		t.buildNode(2*nodeID+2, mid, end, lim)
		wg.Wait()
		return
	}

	t.buildNode(2*nodeID+1, start+1, mid, lim)
	t.buildNode(2*nodeID+2, mid, end, lim)
}

// selectVantage returns the idxArray position in [start,end) of the point
// whose distances to a fixed workload sample have the greatest variance.
// High variance separates the inside and outside children most cleanly.
// Small nodes skip the scoring and take the first point.
func (t *VPTree) selectVantage(start, end int) int {
	count := end - start
	if count < 2*vantageWorkload {
		return start
	}

	candStride := count / vantageCandidates
	workStride := count / vantageWorkload

	workload := make([][]float64, vantageWorkload)
	for i := range workload {
		workload[i] = t.point(t.idxArray[start+i*workStride])
	}

	best := start
	bestVar := -1.0
	dists := make([]float64, vantageWorkload)
	for c := 0; c < vantageCandidates; c++ {
		pos := start + c*candStride
		cand := t.point(t.idxArray[pos])
		for i, w := range workload {
			dists[i] = t.metric.Distance(cand, w)
		}
		if v := stat.Variance(dists, nil); v > bestVar {
			bestVar = v
			best = pos
		}
	}
	return best
}

func (t *VPTree) point(i int) []float64 {
	return t.data[i*t.dims : (i+1)*t.dims]
}

// --- NeighborIndex interface ---

func (t *VPTree) Data() []float64           { return t.data }
func (t *VPTree) NumPoints() int            { return t.n }
func (t *VPTree) NumFeatures() int          { return t.dims }
func (t *VPTree) IdxArray() []int           { return t.idxArray }
func (t *VPTree) NodeDataArray() []NodeData { return t.nodes[:t.numNodes] }
func (t *VPTree) NumNodes() int             { return t.numNodes }

// QueryKNN finds the k nearest indexed points to an arbitrary query point.
func (t *VPTree) QueryKNN(point []float64, k int) ([]int, []float64, error) {
	if len(point) != t.dims {
		return nil, nil, &DimensionMismatchError{Expected: t.dims, Actual: len(point)}
	}
	if k < 1 {
		return nil, nil, fmt.Errorf("adp: k must be >= 1, got %d", k)
	}
	indices, distances := t.search(point, k, -1)
	return indices, distances, nil
}

// KNNOf finds the k nearest other points of indexed point i. Point i is
// excluded by identity, so exact duplicates of it still appear.
func (t *VPTree) KNNOf(i, k int) ([]int, []float64, error) {
	if i < 0 || i >= t.n {
		return nil, nil, fmt.Errorf("adp: point index %d out of range [0,%d)", i, t.n)
	}
	if k < 1 {
		return nil, nil, fmt.Errorf("adp: k must be >= 1, got %d", k)
	}
	indices, distances := t.search(t.point(i), k, i)
	return indices, distances, nil
}

// search traverses in true-distance space; no conversion is needed on
// the way out. skip is a point index excluded from the results, or -1.
func (t *VPTree) search(query []float64, k, skip int) ([]int, []float64) {
	h := NewNeighborHeap(k)
	if t.n > 0 {
		t.knnSearch(0, query, h, skip)
	}
	return h.DrainSorted()
}

// knnSearch performs a single-tree KNN traversal with a bounded max-heap.
func (t *VPTree) knnSearch(nodeID int, query []float64, h *NeighborHeap, skip int) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.IdxStart == node.IdxEnd && nodeID != 0 {
		return // uninitialized or empty node
	}

	if node.IsLeaf {
		for i := node.IdxStart; i < node.IdxEnd; i++ {
			ptIdx := t.idxArray[i]
			if ptIdx == skip {
				continue
			}
			h.Insert(ptIdx, t.metric.Distance(query, t.point(ptIdx)))
		}
		return
	}

	vpIdx := t.idxArray[node.IdxStart]
	d := t.metric.Distance(query, t.point(vpIdx))
	if vpIdx != skip {
		h.Insert(vpIdx, d)
	}

	inside := 2*nodeID + 1
	outside := 2*nodeID + 2

	// Visit the child containing the query first; the other child can be
	// pruned only when the heap is full and the triangle inequality rules
	// out any candidate within the current worst distance.
	if d < node.Radius {
		t.knnSearch(inside, query, h, skip)
		if !h.Full() || d+h.PeekMax() >= node.Radius {
			t.knnSearch(outside, query, h, skip)
		}
	} else {
		t.knnSearch(outside, query, h, skip)
		if !h.Full() || d-h.PeekMax() <= node.Radius {
			t.knnSearch(inside, query, h, skip)
		}
	}
}
