package adp

import (
	"math"
	"sync"

	"github.com/tidwall/btree"
)

// Border is the saddle representative between two clusters: the
// lower-key member of the best cross-cluster neighbor pair found between
// them, carrying that member's corrected density and error.
type Border struct {
	Point      int     // representative point
	OtherPoint int     // its pair partner on the other side
	LogRho     float64 // corrected log density of the representative
	LogRhoErr  float64 // log density error of the representative
}

// borderBeats reports whether candidate a outranks candidate b for the
// same cluster pair: higher density first, ties by lower representative,
// then by lower partner. The order is total over distinct candidates, so
// reductions can fold in any order.
func borderBeats(a, b Border) bool {
	if a.LogRho != b.LogRho {
		return a.LogRho > b.LogRho
	}
	if a.Point != b.Point {
		return a.Point < b.Point
	}
	return a.OtherPoint < b.OtherPoint
}

// borderNeighbor is one stored border seen from one of its clusters.
type borderNeighbor struct {
	other  int
	border Border
}

// borderPair is one stored border with its cluster pair, a < b.
type borderPair struct {
	a, b   int
	border Border
}

// borderStore keeps the best border per unordered cluster pair. Cluster
// arguments may come in either order. Implementations are not safe for
// concurrent use; detection reduces worker-private tables first.
type borderStore interface {
	// get returns the border stored for the pair, if any.
	get(a, b int) (Border, bool)
	// offer stores bd unless a better border (by borderBeats) is already
	// present for the pair.
	offer(a, b int, bd Border)
	// drop removes the pair's border if present.
	drop(a, b int)
	// neighbors returns all borders involving cluster c, ascending by the
	// other cluster.
	neighbors(c int) []borderNeighbor
	// pairs returns all stored borders, ascending by (a, b).
	pairs() []borderPair
}

// denseBorders packs the strict upper triangle of the cluster×cluster
// border matrix into a flat slice. Lookup is O(1); memory is O(c²).
type denseBorders struct {
	c       int // cluster count the triangle was sized for
	present []bool
	borders []Border
}

func newDenseBorders(numClusters int) *denseBorders {
	m := numClusters * (numClusters - 1) / 2
	return &denseBorders{
		c:       numClusters,
		present: make([]bool, m),
		borders: make([]Border, m),
	}
}

// pos maps the pair (a, b) with a < b onto the packed triangle.
func (d *denseBorders) pos(a, b int) int {
	return a*(2*d.c-a-1)/2 + (b - a - 1)
}

func (d *denseBorders) get(a, b int) (Border, bool) {
	if a > b {
		a, b = b, a
	}
	p := d.pos(a, b)
	if !d.present[p] {
		return Border{}, false
	}
	return d.borders[p], true
}

func (d *denseBorders) offer(a, b int, bd Border) {
	if a > b {
		a, b = b, a
	}
	p := d.pos(a, b)
	if !d.present[p] || borderBeats(bd, d.borders[p]) {
		d.present[p] = true
		d.borders[p] = bd
	}
}

func (d *denseBorders) drop(a, b int) {
	if a > b {
		a, b = b, a
	}
	p := d.pos(a, b)
	d.present[p] = false
	d.borders[p] = Border{}
}

func (d *denseBorders) neighbors(c int) []borderNeighbor {
	var out []borderNeighbor
	for o := 0; o < d.c; o++ {
		if o == c {
			continue
		}
		if bd, ok := d.get(c, o); ok {
			out = append(out, borderNeighbor{other: o, border: bd})
		}
	}
	return out
}

func (d *denseBorders) pairs() []borderPair {
	var out []borderPair
	for a := 0; a < d.c; a++ {
		for b := a + 1; b < d.c; b++ {
			p := d.pos(a, b)
			if d.present[p] {
				out = append(out, borderPair{a: a, b: b, border: d.borders[p]})
			}
		}
	}
	return out
}

// sparseBorders keeps borders in an ordered B-tree, two mirrored entries
// per pair so that all borders of one cluster sit in one contiguous key
// range. Memory is O(borders); iteration order is deterministic.
type sparseBorders struct {
	tree *btree.BTreeG[sparseBorderItem]
}

type sparseBorderItem struct {
	from, to int
	border   Border
}

func sparseBorderLess(x, y sparseBorderItem) bool {
	if x.from != y.from {
		return x.from < y.from
	}
	return x.to < y.to
}

func newSparseBorders() *sparseBorders {
	return &sparseBorders{tree: btree.NewBTreeG(sparseBorderLess)}
}

func (s *sparseBorders) get(a, b int) (Border, bool) {
	item, ok := s.tree.Get(sparseBorderItem{from: a, to: b})
	if !ok {
		return Border{}, false
	}
	return item.border, true
}

func (s *sparseBorders) offer(a, b int, bd Border) {
	if cur, ok := s.get(a, b); ok && !borderBeats(bd, cur) {
		return
	}
	s.tree.Set(sparseBorderItem{from: a, to: b, border: bd})
	s.tree.Set(sparseBorderItem{from: b, to: a, border: bd})
}

func (s *sparseBorders) drop(a, b int) {
	s.tree.Delete(sparseBorderItem{from: a, to: b})
	s.tree.Delete(sparseBorderItem{from: b, to: a})
}

func (s *sparseBorders) neighbors(c int) []borderNeighbor {
	var out []borderNeighbor
	s.tree.Ascend(sparseBorderItem{from: c, to: math.MinInt}, func(item sparseBorderItem) bool {
		if item.from != c {
			return false
		}
		out = append(out, borderNeighbor{other: item.to, border: item.border})
		return true
	})
	return out
}

func (s *sparseBorders) pairs() []borderPair {
	var out []borderPair
	s.tree.Scan(func(item sparseBorderItem) bool {
		if item.from < item.to {
			out = append(out, borderPair{a: item.from, b: item.to, border: item.border})
		}
		return true
	})
	return out
}

// Auto border-store selection bounds: past either, the dense triangle is
// no longer worth its O(c²) memory.
const (
	sparsePointThreshold   = 2_000_000
	sparseClusterThreshold = 1024
)

// newBorderStore picks a store for the given problem size. BorderAuto
// stays dense until the point or cluster count makes the triangle
// wasteful.
func newBorderStore(mode BorderMode, numPoints, numClusters int) borderStore {
	switch mode {
	case BorderDense:
		return newDenseBorders(numClusters)
	case BorderSparse:
		return newSparseBorders()
	}
	if numPoints > sparsePointThreshold || numClusters > sparseClusterThreshold {
		return newSparseBorders()
	}
	return newDenseBorders(numClusters)
}

// findBorders scans every assigned point's kstar neighborhood for
// neighbors in a different cluster. Each such pair is a border candidate
// between the two clusters; its representative is the lower-key member
// and its score that member's corrected density. Per cluster pair the
// best candidate wins.
//
// Workers reduce into private tables which are folded serially with the
// same total order, so the store content is identical for any worker
// count.
func findBorders(pts *pointData, labels []int, numClusters int, mode BorderMode, workers int) borderStore {
	store := newBorderStore(mode, pts.n, numClusters)

	type pairKey struct{ a, b int }

	var mu sync.Mutex
	var partials []map[pairKey]Border

	forEachChunk(pts.n, workers, func(start, end int) {
		local := make(map[pairKey]Border)
		for i := start; i < end; i++ {
			ci := labels[i]
			if ci == Unassigned || pts.undefined(i) {
				continue
			}
			for _, q := range pts.clusterNeighbors(i) {
				cq := labels[q]
				if cq == Unassigned || cq == ci || pts.undefined(q) {
					continue
				}
				rep, other := i, q
				if keyBeats(pts, i, q) {
					rep, other = q, i
				}
				bd := Border{
					Point:      rep,
					OtherPoint: other,
					LogRho:     pts.logRhoC[rep],
					LogRhoErr:  pts.logRhoErr[rep],
				}
				key := pairKey{a: min(ci, cq), b: max(ci, cq)}
				if cur, ok := local[key]; !ok || borderBeats(bd, cur) {
					local[key] = bd
				}
			}
		}
		mu.Lock()
		partials = append(partials, local)
		mu.Unlock()
	})

	for _, local := range partials {
		for key, bd := range local {
			store.offer(key.a, key.b, bd)
		}
	}

	return store
}
