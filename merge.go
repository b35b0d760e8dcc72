package adp

import "math"

// mergeClusters folds statistically indistinguishable clusters into each
// other and relabels the survivors densely.
//
// A border between clusters A and B is significant when the weaker peak
// stands above the border by more than z times the combined error:
//
//	min(peak_A, peak_B) - border > z * (weaker_peak_err + border_err)
//
// Every non-significant border merges its two clusters: the higher peak
// absorbs the lower (equal peaks: the center with the lower point index
// absorbs). The loser's remaining borders re-home onto the winner, keeping
// the better border where the winner already touches the same third
// cluster. Scanning repeats until a full pass over the stored pairs merges
// nothing. The scan order is deterministic, so results do not depend on
// the store backend or worker count.
//
// With halo enabled, points whose corrected density falls below the
// highest surviving border density of their cluster are demoted to
// Unassigned afterwards. A surviving border sits strictly below both of
// its peaks, so centers are never demoted.
//
// Returns the final labels, the surviving centers in creation order, and
// the surviving borders in the final numbering.
func mergeClusters(pts *pointData, labels, centers []int, store borderStore, z float64, halo bool, workers int) ([]int, []int, []BorderInfo) {
	uf := newUnionFind(len(centers))

	// peakBeats reports whether cluster x's peak outranks cluster y's.
	// Equal peaks rank by center point index, keeping merges reproducible
	// even between exact density ties.
	peakBeats := func(x, y int) bool {
		px, py := pts.logRhoC[centers[x]], pts.logRhoC[centers[y]]
		if px != py {
			return px > py
		}
		return centers[x] < centers[y]
	}

	for {
		merged := false
		// The snapshot holds live cluster pairs; merges during the pass
		// drop or re-home entries behind it, so each pair is re-read
		// through the store before use.
		for _, bp := range store.pairs() {
			bd, ok := store.get(bp.a, bp.b)
			if !ok {
				continue
			}

			win, lose := bp.a, bp.b
			if peakBeats(lose, win) {
				win, lose = lose, win
			}

			loPeak := pts.logRhoC[centers[lose]]
			loErr := pts.logRhoErr[centers[lose]]
			// NaN (infinite peak against infinite border) compares false
			// and therefore merges.
			if loPeak-bd.LogRho > z*(loErr+bd.LogRhoErr) {
				continue // significant: the basins are distinct
			}

			store.drop(win, lose)
			for _, bn := range store.neighbors(lose) {
				store.drop(lose, bn.other)
				store.offer(win, bn.other, bn.border)
			}
			uf.union(win, lose)
			merged = true
		}
		if !merged {
			break
		}
	}

	// Number survivors densely in creation order.
	newID := make([]int, len(centers))
	var survivors []int
	for c := range centers {
		if uf.find(c) == c {
			newID[c] = len(survivors)
			survivors = append(survivors, c)
		}
	}

	// Resolve every original cluster serially; the parallel relabel below
	// then only reads.
	resolved := make([]int, len(centers))
	for c := range resolved {
		resolved[c] = newID[uf.find(c)]
	}

	newLabels := make([]int, len(labels))
	forEachChunk(len(labels), workers, func(start, end int) {
		for i := start; i < end; i++ {
			if labels[i] == Unassigned {
				newLabels[i] = Unassigned
				continue
			}
			newLabels[i] = resolved[labels[i]]
		}
	})

	newCenters := make([]int, len(survivors))
	for j, c := range survivors {
		newCenters[j] = centers[c]
	}

	// Surviving borders in the final numbering. Store pairs are live
	// roots and newID grows with creation order, so the renumbered list
	// stays ascending.
	var infos []BorderInfo
	for _, bp := range store.pairs() {
		infos = append(infos, BorderInfo{
			ClusterA: newID[bp.a],
			ClusterB: newID[bp.b],
			Border:   bp.border,
		})
	}

	if halo && len(newCenters) > 0 {
		bmax := make([]float64, len(newCenters))
		for i := range bmax {
			bmax[i] = math.Inf(-1)
		}
		for _, info := range infos {
			if info.LogRho > bmax[info.ClusterA] {
				bmax[info.ClusterA] = info.LogRho
			}
			if info.LogRho > bmax[info.ClusterB] {
				bmax[info.ClusterB] = info.LogRho
			}
		}
		forEachChunk(len(newLabels), workers, func(start, end int) {
			for i := start; i < end; i++ {
				c := newLabels[i]
				if c == Unassigned {
					continue
				}
				if pts.logRhoC[i] < bmax[c] {
					newLabels[i] = Unassigned
				}
			}
		})
	}

	return newLabels, newCenters, infos
}
