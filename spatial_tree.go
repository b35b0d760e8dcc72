package adp

// NodeData describes a single node in a spatial tree.
type NodeData struct {
	IdxStart, IdxEnd int
	IsLeaf           bool
	Radius           float64 // vp-tree split radius; 0 for KD-tree
}

// NeighborIndex is the read interface shared by the KD-tree and VP-tree
// backends. Both are exact: no pruning may discard a true nearest
// neighbor. Results are sorted ascending by distance; equal distances
// keep the traversal's insertion order, which is fixed for a given
// dataset, so repeated runs return identical slices.
type NeighborIndex interface {
	// QueryKNN finds the k nearest indexed points to an arbitrary query
	// point. If k exceeds the number of indexed points, all points are
	// returned. Errors only on a dimension mismatch or k < 1.
	QueryKNN(point []float64, k int) (indices []int, distances []float64, err error)

	// KNNOf finds the k nearest other points of the i-th indexed point.
	// The point itself is excluded by identity, so exact duplicates of it
	// still appear. Density estimation depends on this strict other-points
	// contract.
	KNNOf(i, k int) (indices []int, distances []float64, err error)

	// Data returns the flat row-major point data owned by the tree.
	Data() []float64

	// NumPoints returns the number of points in the tree.
	NumPoints() int

	// NumFeatures returns the dimensionality of each point.
	NumFeatures() int
}

// Both backends store their tree as a complete binary tree in array form
// (node i has children at 2*i+1 and 2*i+2) over idxArray, the permutation
// from tree position to original point index. Every node covers one
// contiguous idxArray range.

// treeMaxNodes returns an upper bound on the node count of an array-form
// tree over n points with the given leaf size. Both backends split at the
// median, so a subtree at depth d holds at most ceil(n/2^d) points and a
// complete tree of the matching depth always fits.
func treeMaxNodes(n, leafSize int) int {
	if n == 0 {
		return 1
	}
	leaves := (n + leafSize - 1) / leafSize
	depth := 0
	v := 1
	for v < leaves {
		v *= 2
		depth++
	}
	return (1 << (depth + 1)) - 1 + 2 // +2 for safety margin
}

// countTreeNodes counts how many nodes were actually initialized by a
// build.
func countTreeNodes(nodes []NodeData, nodeID, maxNodes int) int {
	if nodeID >= maxNodes {
		return 0
	}
	if nodes[nodeID].IdxStart == 0 && nodes[nodeID].IdxEnd == 0 && nodeID != 0 {
		return 0
	}
	count := 1
	if !nodes[nodeID].IsLeaf {
		count += countTreeNodes(nodes, 2*nodeID+1, maxNodes)
		count += countTreeNodes(nodes, 2*nodeID+2, maxNodes)
	}
	return count
}

// buildGrain is the subtree size below which tree construction stays on
// the calling goroutine; forking smaller subtrees costs more in
// scheduling than the partition saves.
const buildGrain = 2048

// buildLimiter caps the extra goroutines a parallel tree build may hold
// alive at once. A nil limiter builds serially. Sibling subtrees write
// disjoint idxArray ranges and node slots, so no further coordination is
// needed and the finished tree is identical for any worker count.
type buildLimiter chan struct{}

func newBuildLimiter(workers int) buildLimiter {
	if workers <= 1 {
		return nil
	}
	return make(buildLimiter, workers-1)
}

func (l buildLimiter) tryAcquire() bool {
	if l == nil {
		return false
	}
	select {
	case l <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l buildLimiter) release() { <-l }
