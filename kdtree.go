package adp

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// KDTree is an exact KD-tree index for nearest-neighbor queries. Points
// are stored in a flat row-major array and reordered internally via an
// index permutation array. It requires a coordinate metric (Euclidean,
// Manhattan, Chebyshev, Minkowski): pruning relies on axis-aligned
// bounding boxes, which only bound distances that decompose along axes.
//
// The tree is stored as a complete binary tree in array form:
//   - node i has children at 2*i+1 and 2*i+2
//   - node bounds are stored as min/max per dimension per node
type KDTree struct {
	data     []float64 // flat row-major point data (n * dims)
	n        int       // number of points
	dims     int       // dimensionality
	leafSize int
	metric   DistanceMetric
	idxArray []int      // permutation: tree-order position → original index
	nodes    []NodeData // one entry per tree node
	// nodeBoundsMin[node*dims + j] = min value of feature j in node
	nodeBoundsMin []float64
	// nodeBoundsMax[node*dims + j] = max value of feature j in node
	nodeBoundsMax []float64
	numNodes      int
}

// NewKDTree builds a KD-tree from flat row-major data with n points of
// dimensionality dims. leafSize controls the max points per leaf node.
// workers > 1 lets large sibling subtrees build concurrently; the
// finished tree is identical for any worker count.
func NewKDTree(data []float64, n, dims int, metric DistanceMetric, leafSize, workers int) *KDTree {
	if leafSize < 1 {
		leafSize = 1
	}

	// Copy data and build identity index array.
	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	// The node arrays must be fully allocated up front: concurrent
	// subtree builds write into them without locking.
	maxNodes := treeMaxNodes(n, leafSize)

	t := &KDTree{
		data:          dataCopy,
		n:             n,
		dims:          dims,
		leafSize:      leafSize,
		metric:        metric,
		idxArray:      idxArray,
		nodes:         make([]NodeData, maxNodes),
		nodeBoundsMin: make([]float64, maxNodes*dims),
		nodeBoundsMax: make([]float64, maxNodes*dims),
	}

	if n > 0 {
		t.buildNode(0, 0, n, newBuildLimiter(workers))
		t.numNodes = countTreeNodes(t.nodes, 0, maxNodes)
	}

	return t
}

// buildNode recursively builds the tree for points in idxArray[start:end].
func (t *KDTree) buildNode(nodeID, start, end int, lim buildLimiter) {
	// Compute bounds for this node.
	t.computeNodeBounds(nodeID, start, end)

	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: true}
		return
	}

	// Find dimension with greatest spread.
	splitDim := 0
	maxSpread := -1.0
	for d := 0; d < t.dims; d++ {
		spread := t.nodeBoundsMax[nodeID*t.dims+d] - t.nodeBoundsMin[nodeID*t.dims+d]
		if spread > maxSpread {
			maxSpread = spread
			splitDim = d
		}
	}

	// Sort by the split dimension and split at the median. Zero spread in
	// every dimension means the range holds exact duplicates; it keeps
	// its index order and still halves, so recursion terminates.
	if maxSpread > 0 {
		t.sortByDimension(start, end, splitDim)
	}
	mid := start + count/2

	t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: false}

	if count > buildGrain && lim.tryAcquire() {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer lim.release()
			t.buildNode(2*nodeID+1, start, mid, lim)
		}()
		t.buildNode(2*nodeID+2, mid, end, lim)
		wg.Wait()
		return
	}

	t.buildNode(2*nodeID+1, start, mid, lim)
	t.buildNode(2*nodeID+2, mid, end, lim)
}

// computeNodeBounds computes min/max per dimension for points idxArray[start:end].
func (t *KDTree) computeNodeBounds(nodeID, start, end int) {
	base := nodeID * t.dims
	for d := 0; d < t.dims; d++ {
		t.nodeBoundsMin[base+d] = math.Inf(1)
		t.nodeBoundsMax[base+d] = math.Inf(-1)
	}
	for i := start; i < end; i++ {
		ptIdx := t.idxArray[i]
		for d := 0; d < t.dims; d++ {
			v := t.data[ptIdx*t.dims+d]
			if v < t.nodeBoundsMin[base+d] {
				t.nodeBoundsMin[base+d] = v
			}
			if v > t.nodeBoundsMax[base+d] {
				t.nodeBoundsMax[base+d] = v
			}
		}
	}
}

// sortByDimension sorts idxArray[start:end] by the given dimension.
func (t *KDTree) sortByDimension(start, end, dim int) {
	sub := t.idxArray[start:end]
	dims := t.dims
	data := t.data
	sort.Slice(sub, func(i, j int) bool {
		return data[sub[i]*dims+dim] < data[sub[j]*dims+dim]
	})
}

// --- NeighborIndex interface ---

func (t *KDTree) Data() []float64           { return t.data }
func (t *KDTree) NumPoints() int            { return t.n }
func (t *KDTree) NumFeatures() int          { return t.dims }
func (t *KDTree) IdxArray() []int           { return t.idxArray }
func (t *KDTree) NodeDataArray() []NodeData { return t.nodes[:t.numNodes] }
func (t *KDTree) NumNodes() int             { return t.numNodes }

// QueryKNN finds the k nearest indexed points to an arbitrary query point.
func (t *KDTree) QueryKNN(point []float64, k int) ([]int, []float64, error) {
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
func (t *KDTree) KNNOf(i, k int) ([]int, []float64, error) {
	if i < 0 || i >= t.n {
		return nil, nil, fmt.Errorf("adp: point index %d out of range [0,%d)", i, t.n)
	}
	if k < 1 {
		return nil, nil, fmt.Errorf("adp: k must be >= 1, got %d", k)
	}
	query := t.data[i*t.dims : (i+1)*t.dims]
	indices, distances := t.search(query, k, i)
	return indices, distances, nil
}

// search traverses in reduced-distance space and converts the drained
// results back to true distances. skip is a point index excluded from the
// results, or -1.
func (t *KDTree) search(query []float64, k, skip int) ([]int, []float64) {
	h := NewNeighborHeap(k)
	if t.n > 0 {
		t.knnSearch(0, query, h, skip)
	}
	indices, distances := h.DrainSorted()
	for i, rd := range distances {
		distances[i] = t.metric.RdistToDist(rd)
	}
	return indices, distances
}

// knnSearch performs a single-tree KNN traversal with a bounded max-heap.
func (t *KDTree) knnSearch(nodeID int, query []float64, h *NeighborHeap, skip int) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.IdxStart == node.IdxEnd && nodeID != 0 {
		return // uninitialized node
	}

	if node.IsLeaf {
		for i := node.IdxStart; i < node.IdxEnd; i++ {
			ptIdx := t.idxArray[i]
			if ptIdx == skip {
				continue
			}
			pt := t.data[ptIdx*t.dims : (ptIdx+1)*t.dims]
			h.Insert(ptIdx, t.metric.ReducedDistance(query, pt))
		}
		return
	}

	// Determine which child to visit first (nearer child first).
	left := 2*nodeID + 1
	right := 2*nodeID + 2

	leftRdist := t.minRdistPointInternal(left, query)
	rightRdist := t.minRdistPointInternal(right, query)

	nearChild, farChild := left, right
	farRdist := rightRdist
	if rightRdist < leftRdist {
		nearChild, farChild = right, left
		farRdist = leftRdist
	}

	t.knnSearch(nearChild, query, h, skip)

	// Prune the far child only when the heap is full and its box cannot
	// beat the current worst candidate.
	if !h.Full() || farRdist < h.PeekMax() {
		t.knnSearch(farChild, query, h, skip)
	}
}

// MinRdistPoint returns a lower bound in reduced-distance space on the
// distance between a point and any point in the given node.
func (t *KDTree) MinRdistPoint(node int, point []float64) float64 {
	return t.minRdistPointInternal(node, point)
}

func (t *KDTree) minRdistPointInternal(node int, point []float64) float64 {
	if node >= len(t.nodes) {
		return math.Inf(1)
	}
	dims := t.dims
	base := node * dims

	switch m := t.metric.(type) {
	case ChebyshevMetric:
		var rdist float64
		for j := 0; j < dims; j++ {
			lo := t.nodeBoundsMin[base+j]
			hi := t.nodeBoundsMax[base+j]
			var d float64
			if point[j] < lo {
				d = lo - point[j]
			} else if point[j] > hi {
				d = point[j] - hi
			}
			if d > rdist {
				rdist = d
			}
		}
		return rdist

	case MinkowskiMetric:
		var rdist float64
		for j := 0; j < dims; j++ {
			lo := t.nodeBoundsMin[base+j]
			hi := t.nodeBoundsMax[base+j]
			var d float64
			if point[j] < lo {
				d = lo - point[j]
			} else if point[j] > hi {
				d = point[j] - hi
			}
			rdist += math.Pow(d, m.P)
		}
		return rdist

	default:
		// Euclidean, Manhattan, and others that decompose along axes.
		// For Euclidean: sum of squared per-dim gaps (reduced distance).
		// For Manhattan: sum of per-dim gaps (same as distance).
		var rdist float64
		p := metricP(t.metric)
		for j := 0; j < dims; j++ {
			lo := t.nodeBoundsMin[base+j]
			hi := t.nodeBoundsMax[base+j]
			var d float64
			if point[j] < lo {
				d = lo - point[j]
			} else if point[j] > hi {
				d = point[j] - hi
			}
			rdist += math.Pow(d, p)
		}
		return rdist
	}
}

// metricP returns the Minkowski exponent for the metric, defaulting to
// 2 for Euclidean and 1 for Manhattan.
func metricP(m DistanceMetric) float64 {
	switch v := m.(type) {
	case EuclideanMetric:
		return 2.0
	case ManhattanMetric:
		return 1.0
	case MinkowskiMetric:
		return v.P
	case ChebyshevMetric:
		return math.Inf(1)
	default:
		return 2.0 // fallback; Euclidean-like
	}
}
