package adp

import "fmt"

// CoordinateMetric reports whether the metric decomposes along coordinate
// axes: Euclidean, Manhattan, Chebyshev, Minkowski. KD-tree bounding-box
// pruning is only valid for such metrics; the VP-tree accepts any true
// metric.
func CoordinateMetric(m DistanceMetric) bool {
	switch m.(type) {
	case EuclideanMetric, ManhattanMetric, ChebyshevMetric, MinkowskiMetric:
		return true
	default:
		return false
	}
}

// maxKDTreeDims is the dimensionality above which IndexAuto stops picking
// the KD-tree. Axis-aligned pruning degrades as dimensions grow while
// metric pruning in the VP-tree holds up longer.
const maxKDTreeDims = 60

// resolveIndex resolves IndexAuto into a concrete index choice based on
// the metric and data dimensionality, and validates that a user-forced
// index choice is compatible with the metric.
func resolveIndex(kind IndexKind, m DistanceMetric, dims int) (IndexKind, error) {
	if kind == IndexAuto {
		if CoordinateMetric(m) && dims <= maxKDTreeDims {
			return IndexKDTree, nil
		}
		return IndexVPTree, nil
	}

	if kind == IndexKDTree && !CoordinateMetric(m) {
		return "", fmt.Errorf("adp: metric %T is not supported by the kd-tree index", m)
	}

	return kind, nil
}

// newNeighborIndex resolves the index kind and builds the index over the
// data. It returns the resolved kind alongside the index so callers can
// report which one was chosen.
func newNeighborIndex(kind IndexKind, data []float64, n, dims int, metric DistanceMetric, leafSize, workers int) (NeighborIndex, IndexKind, error) {
	resolved, err := resolveIndex(kind, metric, dims)
	if err != nil {
		return nil, "", err
	}
	if resolved == IndexKDTree {
		return NewKDTree(data, n, dims, metric, leafSize, workers), resolved, nil
	}
	return NewVPTree(data, n, dims, metric, leafSize, workers), resolved, nil
}
