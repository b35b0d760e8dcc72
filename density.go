package adp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// kstarThreshold bounds the likelihood-ratio statistic used while growing a
// point's neighborhood: chi-square with 1 degree of freedom at p ~ 1e-6.
// Growth stops at the first neighbor whose inclusion pushes the statistic
// past this value.
const kstarThreshold = 23.92812698

// minNeighbors is the smallest neighbor count the adaptive density
// estimator can work with. Points with fewer usable neighbors carry the
// undefined-density sentinels.
const minNeighbors = 4

// pointData carries the per-point state threaded through the density and
// clustering stages. Slices are indexed by point.
type pointData struct {
	n         int
	neighbors [][]int     // nearest other points, ascending distance
	dists     [][]float64 // distances matching neighbors
	kstar     []int       // adaptive neighborhood size, 0 when undefined
	logRho    []float64   // log density, -Inf when undefined
	logRhoErr []float64   // log density error, +Inf when undefined
	logRhoC   []float64   // noise-corrected log density, logRho - z*logRhoErr
	g         []float64   // ascent key, logRhoC - logRhoErr
}

func newPointData(n int) *pointData {
	p := &pointData{
		n:         n,
		neighbors: make([][]int, n),
		dists:     make([][]float64, n),
		kstar:     make([]int, n),
		logRho:    make([]float64, n),
		logRhoErr: make([]float64, n),
		logRhoC:   make([]float64, n),
		g:         make([]float64, n),
	}
	for i := 0; i < n; i++ {
		p.logRho[i] = math.Inf(-1)
		p.logRhoErr[i] = math.Inf(1)
		p.logRhoC[i] = math.Inf(-1)
		p.g[i] = math.Inf(-1)
	}
	return p
}

// undefined reports whether point i carries the undefined-density
// sentinels. Undefined points never become centers or border candidates.
func (p *pointData) undefined(i int) bool {
	return p.kstar[i] == 0
}

// clusterNeighbors returns the neighbors of i that participate in the
// clustering heuristics: the kstar nearest. Empty for undefined points.
func (p *pointData) clusterNeighbors(i int) []int {
	return p.neighbors[i][:p.kstar[i]]
}

// applyCorrection computes the noise-corrected density and the ascent key
// for every defined point. z scales how strongly the estimation error
// discounts the raw density.
func (p *pointData) applyCorrection(z float64) {
	for i := 0; i < p.n; i++ {
		if p.undefined(i) {
			continue // sentinels stay -Inf
		}
		p.logRhoC[i] = p.logRho[i] - z*p.logRhoErr[i]
		p.g[i] = p.logRhoC[i] - p.logRhoErr[i]
	}
}

// logSumExp returns log(exp(a) + exp(b)) without overflow.
func logSumExp(a, b float64) float64 {
	m := math.Max(a, b)
	if math.IsInf(m, -1) {
		return m
	}
	return m + math.Log(math.Exp(a-m)+math.Exp(b-m))
}

// TwoNN estimates the intrinsic dimension of the data from the ratio of
// each point's second to first nearest-neighbor distance. Under a locally
// uniform density the ratios follow a Pareto law whose exponent is the
// dimension, recovered here by fitting -log(1-F) against log(d2/d1)
// through the origin over the lowest 90% of ratios (the upper tail is
// dominated by boundary effects). distances rows must be ascending; rows
// with a zero first distance (duplicate points) are skipped. Returns 0
// when no usable ratios exist.
func TwoNN(distances [][]float64) float64 {
	mus := make([]float64, 0, len(distances))
	for _, row := range distances {
		if len(row) < 2 || row[0] == 0 {
			continue
		}
		mus = append(mus, math.Log(row[1]/row[0]))
	}
	if len(mus) == 0 {
		return 0
	}
	sort.Float64s(mus)

	// Discard the top decile, keeping at least one ratio and never the
	// full set: the empirical CDF of the last point is 1 and its
	// transform diverges.
	keep := len(mus) * 9 / 10
	if keep < 1 {
		keep = 1
	}
	if keep > len(mus)-1 {
		keep = len(mus) - 1
	}
	if keep < 1 {
		return 0 // single ratio: nothing to fit
	}

	x := mus[:keep]
	y := make([]float64, keep)
	n := float64(len(mus))
	for i := range y {
		y[i] = -math.Log(1 - float64(i+1)/n)
	}

	_, dim := stat.LinearRegression(x, y, nil, true)
	return dim
}

// estimateDensity runs the adaptive k* density estimator over every point.
// neighbors and dists come from AllKNN: row i holds i's nearest other
// points in ascending distance order. intrinsicDim converts neighbor
// distances into ball volumes.
//
// For each point the neighborhood grows one neighbor at a time from
// minNeighbors-1 while the point's density and its next neighbor's density
// remain statistically consistent; the first inconsistent neighbor caps
// kstar. The density is the volume-normalized estimate at the kstar-th
// neighbor distance and the error follows the 1/sqrt(kstar) law.
func estimateDensity(neighbors [][]int, dists [][]float64, intrinsicDim float64, workers int) *pointData {
	n := len(neighbors)
	p := newPointData(n)
	p.neighbors = neighbors
	p.dists = dists

	halfDim := intrinsicDim / 2
	lg, _ := math.Lgamma(halfDim + 1)
	logOmega := halfDim*math.Log(math.Pi) - lg
	logN := math.Log(float64(n))
	ln4 := math.Log(4)

	// logVol is the log volume of the ball around pt holding its k
	// nearest other points. Zero radius gives -Inf, which propagates to
	// a +Inf density for heavily duplicated points.
	logVol := func(pt, k int) float64 {
		return logOmega + intrinsicDim*math.Log(dists[pt][k-1])
	}

	forEachChunk(n, workers, func(start, end int) {
		for i := start; i < end; i++ {
			kMax := len(neighbors[i])
			if kMax < minNeighbors {
				continue // undefined sentinels already set
			}

			// Grow while adding the (k+1)-th neighbor keeps the local
			// density consistent. The statistic compares the ball volume
			// around i with the same-order ball around that neighbor; it
			// goes NaN or +Inf when either volume degenerates to zero,
			// and both stop the growth.
			kstar := kMax - 1
			for k := 3; k <= kMax-2; k++ {
				lnVi := logVol(i, k)
				lnVj := logVol(neighbors[i][k], k)
				d := -2 * float64(k) * (ln4 + lnVi + lnVj - 2*logSumExp(lnVi, lnVj))
				if !(d < kstarThreshold) {
					kstar = k
					break
				}
			}

			p.kstar[i] = kstar
			p.logRho[i] = math.Log(float64(kstar)) - logVol(i, kstar) - logN
			p.logRhoErr[i] = 1 / math.Sqrt(float64(kstar))
		}
	})

	return p
}
