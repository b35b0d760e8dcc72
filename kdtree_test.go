package adp

import (
	"math"
	"sort"
	"testing"
)

// --- Construction tests ---

func TestKDTree_Construction_BasicProperties(t *testing.T) {
	// 6 points in 2D
	data := []float64{
		0, 0,
		1, 0,
		2, 0,
		0, 3,
		1, 3,
		2, 3,
	}
	n, dims := 6, 2
	tree := NewKDTree(data, n, dims, EuclideanMetric{}, 2, 1)

	if tree.NumPoints() != n {
		t.Errorf("NumPoints() = %d, want %d", tree.NumPoints(), n)
	}
	if tree.NumFeatures() != dims {
		t.Errorf("NumFeatures() = %d, want %d", tree.NumFeatures(), dims)
	}
	if tree.NumNodes() < 1 {
		t.Errorf("NumNodes() = %d, want >= 1", tree.NumNodes())
	}

	// IdxArray should be a permutation of 0..n-1.
	idx := tree.IdxArray()
	if len(idx) != n {
		t.Fatalf("IdxArray length = %d, want %d", len(idx), n)
	}
	seen := make(map[int]bool)
	for _, v := range idx {
		if v < 0 || v >= n {
			t.Errorf("IdxArray contains out-of-range index %d", v)
		}
		if seen[v] {
			t.Errorf("IdxArray contains duplicate index %d", v)
		}
		seen[v] = true
	}
}

func TestKDTree_Construction_LeafSize1(t *testing.T) {
	data := []float64{0, 0, 1, 1, 2, 2, 3, 3}
	tree := NewKDTree(data, 4, 2, EuclideanMetric{}, 1, 1)

	// With leafSize=1, every leaf has exactly 1 point.
	for _, nd := range tree.NodeDataArray() {
		if nd.IsLeaf && (nd.IdxEnd-nd.IdxStart) != 1 {
			t.Errorf("leaf has %d points, want 1", nd.IdxEnd-nd.IdxStart)
		}
	}
}

func TestKDTree_Construction_LeafSizeLargerThanN(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	tree := NewKDTree(data, 2, 2, EuclideanMetric{}, 100, 1)

	// All points fit in one leaf.
	nodes := tree.NodeDataArray()
	if len(nodes) != 1 {
		t.Errorf("expected 1 node for leafSize > n, got %d", len(nodes))
	}
	if !nodes[0].IsLeaf {
		t.Error("root should be a leaf when leafSize > n")
	}
}

func TestKDTree_Construction_SinglePoint(t *testing.T) {
	data := []float64{5, 5}
	tree := NewKDTree(data, 1, 2, EuclideanMetric{}, 10, 1)

	if tree.NumPoints() != 1 {
		t.Errorf("NumPoints() = %d, want 1", tree.NumPoints())
	}
	if tree.NumNodes() != 1 {
		t.Errorf("NumNodes() = %d, want 1", tree.NumNodes())
	}
}

// Parallel builds fork at subtree boundaries but write disjoint ranges,
// so the finished tree must be identical to the serial one.
func TestKDTree_Construction_WorkerInvariance(t *testing.T) {
	rng := newTestRNG(11)
	n, dims := 3000, 3 // large enough to cross the forking grain
	data := make([]float64, n*dims)
	for i := range data {
		data[i] = rng.Float64() * 100
	}

	serial := NewKDTree(data, n, dims, EuclideanMetric{}, 16, 1)
	for _, workers := range []int{2, 4, 8} {
		parallel := NewKDTree(data, n, dims, EuclideanMetric{}, 16, workers)

		if parallel.NumNodes() != serial.NumNodes() {
			t.Fatalf("workers=%d: NumNodes %d != %d", workers, parallel.NumNodes(), serial.NumNodes())
		}
		for i := range serial.idxArray {
			if parallel.idxArray[i] != serial.idxArray[i] {
				t.Fatalf("workers=%d: idxArray[%d] = %d, want %d",
					workers, i, parallel.idxArray[i], serial.idxArray[i])
			}
		}
	}
}

// --- KNN query tests ---

func TestKDTree_QueryKNN_BruteForceMatch(t *testing.T) {
	// 5 points in 2D: compare tree KNN to brute-force.
	data := []float64{
		0, 0,
		3, 0,
		0, 4,
		3, 4,
		1.5, 2,
	}
	n, dims := 5, 2

	for _, metric := range []DistanceMetric{
		EuclideanMetric{},
		ManhattanMetric{},
		ChebyshevMetric{},
		MinkowskiMetric{P: 3},
	} {
		tree := NewKDTree(data, n, dims, metric, 1, 1)
		for k := 1; k <= n; k++ {
			for q := 0; q < n; q++ {
				query := data[q*dims : (q+1)*dims]
				indices, distances, err := tree.QueryKNN(query, k)
				if err != nil {
					t.Fatalf("QueryKNN error: %v", err)
				}
				bruteIdx, bruteDist := bruteForceKNN(data, n, dims, query, k, -1, metric)
				if !knnResultsMatch(distances, bruteDist, floatTol) {
					t.Errorf("metric=%T k=%d query=%d: tree KNN doesn't match brute force.\n  tree: idx=%v dist=%v\n  brute: idx=%v dist=%v",
						metric, k, q, indices, distances, bruteIdx, bruteDist)
				}
			}
		}
	}
}

func TestKDTree_QueryKNN_LargerDataset(t *testing.T) {
	rng := newTestRNG(3)
	n, dims := 200, 3
	data := make([]float64, n*dims)
	for i := range data {
		data[i] = rng.Float64() * 10
	}
	metric := EuclideanMetric{}
	tree := NewKDTree(data, n, dims, metric, 8, 1)

	for _, k := range []int{1, 5, 20} {
		for q := 0; q < n; q += 17 {
			query := data[q*dims : (q+1)*dims]
			_, distances, err := tree.QueryKNN(query, k)
			if err != nil {
				t.Fatalf("QueryKNN error: %v", err)
			}
			_, bruteDist := bruteForceKNN(data, n, dims, query, k, -1, metric)
			if !knnResultsMatch(distances, bruteDist, floatTol) {
				t.Errorf("k=%d query=%d: distances %v, want %v", k, q, distances, bruteDist)
			}
		}
	}
}

func TestKDTree_QueryKNN_KLargerThanN(t *testing.T) {
	data := []float64{0, 0, 1, 1, 2, 2}
	tree := NewKDTree(data, 3, 2, EuclideanMetric{}, 1, 1)

	indices, distances, err := tree.QueryKNN([]float64{0, 0}, 10)
	if err != nil {
		t.Fatalf("QueryKNN error: %v", err)
	}
	if len(indices) != 3 || len(distances) != 3 {
		t.Errorf("expected all 3 points, got %d", len(indices))
	}
	if distances[0] != 0 {
		t.Errorf("nearest distance = %v, want 0 (query is a data point)", distances[0])
	}
}

func TestKDTree_QueryKNN_Errors(t *testing.T) {
	data := []float64{0, 0, 1, 1}
	tree := NewKDTree(data, 2, 2, EuclideanMetric{}, 1, 1)

	if _, _, err := tree.QueryKNN([]float64{1, 2, 3}, 1); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if _, _, err := tree.QueryKNN([]float64{1, 2}, 0); err == nil {
		t.Error("expected error for k < 1")
	}
}

func TestKDTree_KNNOf_ExcludesSelfKeepsDuplicates(t *testing.T) {
	// Points 0 and 1 coincide; each must report the other at distance 0.
	data := []float64{
		5, 5,
		5, 5,
		9, 9,
	}
	tree := NewKDTree(data, 3, 2, EuclideanMetric{}, 1, 1)

	for _, q := range []int{0, 1} {
		indices, distances, err := tree.KNNOf(q, 2)
		if err != nil {
			t.Fatalf("KNNOf(%d) error: %v", q, err)
		}
		if indices[0] != 1-q || distances[0] != 0 {
			t.Errorf("KNNOf(%d) nearest = (%d, %v), want (%d, 0)", q, indices[0], distances[0], 1-q)
		}
		for _, idx := range indices {
			if idx == q {
				t.Errorf("KNNOf(%d) returned the query point itself", q)
			}
		}
	}
}

func TestKDTree_KNNOf_MatchesBruteForce(t *testing.T) {
	rng := newTestRNG(5)
	n, dims := 120, 2
	data := make([]float64, n*dims)
	for i := range data {
		data[i] = rng.Float64()
	}
	metric := ManhattanMetric{}
	tree := NewKDTree(data, n, dims, metric, 4, 1)

	for q := 0; q < n; q += 11 {
		query := data[q*dims : (q+1)*dims]
		_, distances, err := tree.KNNOf(q, 7)
		if err != nil {
			t.Fatalf("KNNOf error: %v", err)
		}
		_, bruteDist := bruteForceKNN(data, n, dims, query, 7, q, metric)
		if !knnResultsMatch(distances, bruteDist, floatTol) {
			t.Errorf("query=%d: distances %v, want %v", q, distances, bruteDist)
		}
	}
}

func TestKDTree_KNNOf_Errors(t *testing.T) {
	data := []float64{0, 0, 1, 1}
	tree := NewKDTree(data, 2, 2, EuclideanMetric{}, 1, 1)

	if _, _, err := tree.KNNOf(-1, 1); err == nil {
		t.Error("expected error for negative index")
	}
	if _, _, err := tree.KNNOf(2, 1); err == nil {
		t.Error("expected error for out-of-range index")
	}
	if _, _, err := tree.KNNOf(0, 0); err == nil {
		t.Error("expected error for k < 1")
	}
}

func TestKDTree_KNN_AllSamePoints(t *testing.T) {
	// All 4 points are identical.
	data := []float64{5, 5, 5, 5, 5, 5, 5, 5}
	n, dims := 4, 2
	tree := NewKDTree(data, n, dims, EuclideanMetric{}, 2, 1)

	for q := 0; q < n; q++ {
		indices, distances, err := tree.KNNOf(q, 3)
		if err != nil {
			t.Fatalf("KNNOf error: %v", err)
		}
		if len(indices) != 3 {
			t.Errorf("query %d: expected 3 results, got %d", q, len(indices))
		}
		for j := range distances {
			if distances[j] != 0 {
				t.Errorf("query %d: expected all distances 0, got %v", q, distances[j])
			}
		}
	}
}

// --- MinRdistPoint tests ---

func TestKDTree_MinRdistPoint_LowerBound(t *testing.T) {
	data := []float64{
		0, 0,
		1, 1,
		5, 5,
		6, 6,
	}
	n, dims := 4, 2

	testPoints := [][]float64{
		{3, 3},
		{-1, -1},
		{10, 10},
		{0, 0},
	}

	for _, metric := range []DistanceMetric{
		EuclideanMetric{},
		ManhattanMetric{},
		ChebyshevMetric{},
		MinkowskiMetric{P: 3},
	} {
		tree := NewKDTree(data, n, dims, metric, 2, 1)
		for _, pt := range testPoints {
			for nodeID := 0; nodeID < len(tree.nodes); nodeID++ {
				minActual := minRdistPointToNode(tree.data, tree.idxArray, tree.nodes, tree.dims, nodeID, pt, metric)
				if math.IsInf(minActual, 1) {
					continue // uninitialized node
				}
				lb := tree.MinRdistPoint(nodeID, pt)
				if lb > minActual+floatTol {
					t.Errorf("metric=%T MinRdistPoint(%d, %v) = %v > actual %v", metric, nodeID, pt, lb, minActual)
				}
			}
		}
	}
}

// --- Helper: brute-force KNN ---

// bruteForceKNN scans all points, excluding skip (or none when skip < 0),
// and returns the k nearest sorted by (distance, index).
func bruteForceKNN(data []float64, n, dims int, query []float64, k, skip int, metric DistanceMetric) ([]int, []float64) {
	type distIdx struct {
		dist  float64
		index int
	}
	all := make([]distIdx, 0, n)
	for i := 0; i < n; i++ {
		if i == skip {
			continue
		}
		pt := data[i*dims : (i+1)*dims]
		all = append(all, distIdx{dist: metric.Distance(query, pt), index: i})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist == all[j].dist {
			return all[i].index < all[j].index
		}
		return all[i].dist < all[j].dist
	})
	if k > len(all) {
		k = len(all)
	}
	idx := make([]int, k)
	dists := make([]float64, k)
	for i := 0; i < k; i++ {
		idx[i] = all[i].index
		dists[i] = all[i].dist
	}
	return idx, dists
}

// knnResultsMatch checks that two KNN results agree on distances (indices
// may differ when distances are tied).
func knnResultsMatch(dist1, dist2 []float64, tol float64) bool {
	if len(dist1) != len(dist2) {
		return false
	}
	for i := range dist1 {
		if !almostEqual(dist1[i], dist2[i], tol) {
			return false
		}
	}
	return true
}

// minRdistPointToNode computes the actual minimum reduced distance from a
// point to any point in a tree node. +Inf for uninitialized nodes.
func minRdistPointToNode(data []float64, idxArray []int, nodes []NodeData, dims, nodeID int, point []float64, metric DistanceMetric) float64 {
	if nodeID >= len(nodes) {
		return math.Inf(1)
	}
	nd := nodes[nodeID]
	if nd.IdxStart == nd.IdxEnd && nodeID != 0 {
		return math.Inf(1)
	}
	minRdist := math.Inf(1)
	for i := nd.IdxStart; i < nd.IdxEnd; i++ {
		pi := idxArray[i]
		pt := data[pi*dims : (pi+1)*dims]
		rd := metric.ReducedDistance(point, pt)
		if rd < minRdist {
			minRdist = rd
		}
	}
	return minRdist
}
