package adp

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/stat"
)

// Grid is a rectangular intensity image in row-major order: the pixel at
// (row r, column c) is Values[r*Cols+c].
type Grid struct {
	Values []float64
	Rows   int
	Cols   int
}

// gridIntrinsicDim is the intrinsic dimension reported for image runs.
// Pixels live on a plane; nothing is estimated.
const gridIntrinsicDim = 2.0

// buildGridMask converts the optional validity mask into a bitmap over
// pixel indices. A nil mask marks every pixel valid.
func buildGridMask(mask []uint8, rows, cols int) *roaring.Bitmap {
	bm := roaring.New()
	if mask == nil {
		bm.AddRange(0, uint64(rows*cols))
		return bm
	}
	for i, v := range mask {
		if v != 0 {
			bm.Add(uint32(i))
		}
	}
	return bm
}

type gridCandidate struct {
	idx   int
	dist2 int // squared pixel distance
}

// gridNeighbors builds each valid pixel's neighbor list: the valid pixels
// within a Chebyshev window of the given half-width, ordered by squared
// pixel distance (ties by index) and truncated to kMax. Invalid pixels
// get no list and appear in no list.
func gridNeighbors(valid *roaring.Bitmap, rows, cols, window, kMax, workers int) [][]int {
	n := rows * cols
	neighbors := make([][]int, n)

	forEachChunk(n, workers, func(start, end int) {
		var cands []gridCandidate
		for p := start; p < end; p++ {
			if !valid.Contains(uint32(p)) {
				continue
			}
			r, c := p/cols, p%cols
			r0, r1 := max(r-window, 0), min(r+window, rows-1)
			c0, c1 := max(c-window, 0), min(c+window, cols-1)

			cands = cands[:0]
			for rr := r0; rr <= r1; rr++ {
				for cc := c0; cc <= c1; cc++ {
					q := rr*cols + cc
					if q == p || !valid.Contains(uint32(q)) {
						continue
					}
					dr, dc := rr-r, cc-c
					cands = append(cands, gridCandidate{idx: q, dist2: dr*dr + dc*dc})
				}
			}
			sort.Slice(cands, func(x, y int) bool {
				if cands[x].dist2 != cands[y].dist2 {
					return cands[x].dist2 < cands[y].dist2
				}
				return cands[x].idx < cands[y].idx
			})
			if len(cands) > kMax {
				cands = cands[:kMax]
			}

			row := make([]int, len(cands))
			for j, cd := range cands {
				row[j] = cd.idx
			}
			neighbors[p] = row
		}
	})

	return neighbors
}

// gridDensity estimates each valid pixel's density from the image values
// themselves: the pixel is a sample of a measured intensity field, so the
// density is the mean intensity over the pixel and its window neighbors,
// and the error is the standard error of that mean propagated through the
// log. Pixels with fewer than 2 neighbors or a non-positive mean keep the
// undefined-density sentinels; partially masked windows aggregate fewer
// pixels and therefore carry larger errors.
func gridDensity(grid *Grid, neighbors [][]int, workers int) *pointData {
	n := len(neighbors)
	pts := newPointData(n)
	pts.neighbors = neighbors

	forEachChunk(n, workers, func(start, end int) {
		var vals []float64
		for i := start; i < end; i++ {
			nbrs := neighbors[i]
			if len(nbrs) < 2 {
				continue // undefined, including invalid pixels
			}

			vals = vals[:0]
			vals = append(vals, grid.Values[i])
			for _, q := range nbrs {
				vals = append(vals, grid.Values[q])
			}

			mean, std := stat.MeanStdDev(vals, nil)
			if !(mean > 0) {
				continue // no meaningful log density
			}

			m := float64(len(vals))
			pts.kstar[i] = len(nbrs)
			pts.logRho[i] = math.Log(mean)
			pts.logRhoErr[i] = std / (mean * math.Sqrt(m))
		}
	})

	return pts
}
