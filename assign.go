package adp

import "sort"

// keyBeats reports whether point a's ascent key outranks point b's. Equal
// keys rank the lower point index first, so the order is total and runs
// are reproducible.
func keyBeats(pts *pointData, a, b int) bool {
	if pts.g[a] != pts.g[b] {
		return pts.g[a] > pts.g[b]
	}
	return a < b
}

// assignClusters walks all points in descending ascent-key order. A point
// whose neighborhood holds no already-assigned point becomes a new cluster
// center; otherwise it adopts the cluster of its best assigned neighbor.
// Since points are visited best-first, every assigned neighbor outranks
// the current point, so each point ends up in the cluster reached by
// following ascending-key neighbor links to a local maximum.
//
// Undefined-density points are never centers. They adopt through their
// full neighbor list rather than the (empty) kstar one, and stay
// Unassigned when no neighbor has a cluster.
//
// Returns the per-point labels and the center point index per cluster;
// cluster ids count up in center-creation order.
func assignClusters(pts *pointData) ([]int, []int) {
	n := pts.n

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(x, y int) bool {
		return keyBeats(pts, order[x], order[y])
	})

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Unassigned
	}
	var centers []int

	for _, i := range order {
		nbrs := pts.clusterNeighbors(i)
		if pts.undefined(i) {
			nbrs = pts.neighbors[i]
		}

		best := -1
		for _, q := range nbrs {
			if labels[q] == Unassigned {
				continue
			}
			if best == -1 || keyBeats(pts, q, best) {
				best = q
			}
		}

		switch {
		case best >= 0:
			labels[i] = labels[best]
		case pts.undefined(i):
			// never a center
		default:
			labels[i] = len(centers)
			centers = append(centers, i)
		}
	}

	return labels, centers
}
