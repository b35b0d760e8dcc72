package adp

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"time"
)

// BorderMode selects the border store backend.
type BorderMode string

const (
	BorderAuto   BorderMode = "auto"
	BorderDense  BorderMode = "dense"
	BorderSparse BorderMode = "sparse"
)

// IndexKind selects the spatial index used for neighbor queries.
type IndexKind string

const (
	IndexAuto   IndexKind = "auto"
	IndexKDTree IndexKind = "kdtree"
	IndexVPTree IndexKind = "vptree"
)

// Config controls density-peak clustering behavior.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// K caps the neighborhood size considered per point; the density
	// estimator adapts each point's effective neighborhood below it.
	// Clamped to n-1 on small datasets. Must be >= 4; 0 means the
	// default. Default: 300.
	K int

	// Z is the statistical significance threshold, in units of the
	// propagated estimation error. It discounts noisy density estimates
	// and decides how deep a density dip must be to keep two clusters
	// apart: higher values merge more aggressively. Must be >= 0.
	// Default: 2.
	Z float64

	// Halo demotes points whose density falls below their cluster's
	// highest surviving border density to Unassigned, keeping only the
	// confident core labeled. Default: false.
	Halo bool

	// Borders selects the border store backend. BorderAuto uses the
	// dense pair matrix for small problems and the sparse ordered store
	// for large ones. Default: BorderAuto.
	Borders BorderMode

	// Index selects the spatial index. IndexAuto picks the kd-tree for
	// coordinate metrics in low dimension and the vp-tree otherwise.
	// Forcing IndexKDTree with a non-coordinate metric is an error.
	// Default: IndexAuto.
	Index IndexKind

	// Metric is the distance function used to measure point similarity.
	// Built-in: EuclideanMetric, ManhattanMetric, ChebyshevMetric,
	// MinkowskiMetric. Use DistanceFunc to wrap a custom function;
	// custom metrics run on the vp-tree. Default: EuclideanMetric.
	Metric DistanceMetric

	// LeafSize controls the maximum number of points in a spatial tree
	// leaf node. Default: 40.
	LeafSize int

	// GridWindow is the Chebyshev half-width of the pixel neighborhood
	// used by ClusterGrid. Unused in vector mode. Default: 15.
	GridWindow int

	// Workers controls the number of goroutines for parallelizable
	// stages. Results are identical for any value. 0 means
	// runtime.GOMAXPROCS(0). Default: 0 (auto).
	Workers int

	// Logger receives stage-level progress and warnings. nil discards.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		K:          300,
		Z:          2,
		Borders:    BorderAuto,
		Index:      IndexAuto,
		Metric:     EuclideanMetric{},
		LeafSize:   40,
		GridWindow: 15,
	}
}

// applyDefaults fills in zero-valued config fields with their defaults.
// Z and Halo keep their zero values: both are meaningful settings.
func applyDefaults(cfg *Config) {
	if cfg.K == 0 {
		cfg.K = 300
	}
	if cfg.Borders == "" {
		cfg.Borders = BorderAuto
	}
	if cfg.Index == "" {
		cfg.Index = IndexAuto
	}
	if cfg.Metric == nil {
		cfg.Metric = EuclideanMetric{}
	}
	if cfg.LeafSize == 0 {
		cfg.LeafSize = 40
	}
	if cfg.GridWindow == 0 {
		cfg.GridWindow = 15
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	if cfg.K < minNeighbors {
		return fmt.Errorf("%w (got %d)", ErrBadK, cfg.K)
	}
	if cfg.Z < 0 {
		return fmt.Errorf("adp: Z must be >= 0, got %f", cfg.Z)
	}
	switch cfg.Borders {
	case BorderAuto, BorderDense, BorderSparse:
		// valid
	default:
		return fmt.Errorf("adp: invalid Borders mode %q", cfg.Borders)
	}
	switch cfg.Index {
	case IndexAuto, IndexKDTree, IndexVPTree:
		// valid
	default:
		return fmt.Errorf("adp: invalid Index kind %q", cfg.Index)
	}
	if cfg.LeafSize < 1 {
		return fmt.Errorf("adp: LeafSize must be >= 1, got %d", cfg.LeafSize)
	}
	if cfg.GridWindow < 1 {
		return fmt.Errorf("adp: GridWindow must be >= 1, got %d", cfg.GridWindow)
	}
	return nil
}

// Cluster runs density-peak clustering over flat row-major data with dims
// features per point. Returns an error if the config is invalid or the
// data is empty or misshapen.
func Cluster(data []float64, dims int, cfg Config) (*Result, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if dims < 1 {
		return nil, fmt.Errorf("adp: dims must be >= 1, got %d", dims)
	}
	if len(data)%dims != 0 {
		return nil, fmt.Errorf("adp: data length %d is not divisible by dims %d", len(data), dims)
	}
	n := len(data) / dims
	log := cfg.Logger

	start := time.Now()
	index, resolved, err := newNeighborIndex(cfg.Index, data, n, dims, cfg.Metric, cfg.LeafSize, cfg.Workers)
	if err != nil {
		return nil, err
	}
	log.Info("index built", "kind", string(resolved), "points", n, "dims", dims, "took", time.Since(start))

	kMax := min(cfg.K, n-1)
	if kMax < cfg.K {
		log.Warn("neighborhood cap clamped to dataset size", "k", cfg.K, "kmax", kMax)
	}

	pts := newPointData(n)
	intrinsicDim := 0.0
	if kMax >= minNeighbors {
		start = time.Now()
		neighbors, dists, err := AllKNN(index, kMax, cfg.Workers)
		if err != nil {
			return nil, err
		}
		log.Info("neighbor table built", "kmax", kMax, "took", time.Since(start))

		intrinsicDim = TwoNN(dists)
		if !(intrinsicDim > 0) || math.IsInf(intrinsicDim, 1) {
			log.Warn("unusable intrinsic dimension estimate, using 1", "estimate", intrinsicDim)
			intrinsicDim = 1
		}

		start = time.Now()
		pts = estimateDensity(neighbors, dists, intrinsicDim, cfg.Workers)
		log.Info("density estimated", "intrinsic_dim", intrinsicDim, "took", time.Since(start))
	} else {
		log.Warn("too few points for density estimation, all points unassigned", "kmax", kMax)
	}

	return runHeuristics(pts, intrinsicDim, &cfg), nil
}

// Cluster32 converts single-precision data and runs Cluster. Measurement
// dumps are commonly stored as float32; the engine computes in float64.
func Cluster32(data []float32, dims int, cfg Config) (*Result, error) {
	converted := make([]float64, len(data))
	for i, v := range data {
		converted[i] = float64(v)
	}
	return Cluster(converted, dims, cfg)
}

// ClusterGrid runs density-peak clustering over a pixel grid. Instead of
// counting neighbors in balls, the density of a pixel is the mean
// intensity over its window neighborhood, so the heuristics segment the
// image by intensity peaks. mask optionally marks valid pixels (nonzero =
// valid); nil means all valid. Invalid pixels come back Unassigned.
func ClusterGrid(grid *Grid, mask []uint8, cfg Config) (*Result, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	if grid == nil || len(grid.Values) == 0 {
		return nil, ErrEmptyInput
	}
	if grid.Rows < 1 || grid.Cols < 1 || len(grid.Values) != grid.Rows*grid.Cols {
		return nil, fmt.Errorf("adp: grid is %dx%d but holds %d values", grid.Rows, grid.Cols, len(grid.Values))
	}
	if mask != nil && len(mask) != len(grid.Values) {
		return nil, fmt.Errorf("adp: mask length %d does not match grid size %d", len(mask), len(grid.Values))
	}

	n := grid.Rows * grid.Cols
	kMax := min(cfg.K, n-1)
	log := cfg.Logger

	start := time.Now()
	valid := buildGridMask(mask, grid.Rows, grid.Cols)
	neighbors := gridNeighbors(valid, grid.Rows, grid.Cols, cfg.GridWindow, kMax, cfg.Workers)
	pts := gridDensity(grid, neighbors, cfg.Workers)
	log.Info("grid density estimated",
		"pixels", n, "valid", valid.GetCardinality(), "window", cfg.GridWindow, "took", time.Since(start))

	return runHeuristics(pts, gridIntrinsicDim, &cfg), nil
}

// runHeuristics is the mode-independent tail of the pipeline: correction,
// peak assignment, border detection, merging and halo.
func runHeuristics(pts *pointData, intrinsicDim float64, cfg *Config) *Result {
	log := cfg.Logger

	pts.applyCorrection(cfg.Z)

	start := time.Now()
	labels, centers := assignClusters(pts)
	log.Info("density peaks assigned", "clusters", len(centers), "took", time.Since(start))

	start = time.Now()
	store := findBorders(pts, labels, len(centers), cfg.Borders, cfg.Workers)
	log.Info("borders detected", "pairs", len(store.pairs()), "took", time.Since(start))

	start = time.Now()
	finalLabels, finalCenters, borders := mergeClusters(pts, labels, centers, store, cfg.Z, cfg.Halo, cfg.Workers)
	log.Info("clusters merged",
		"initial", len(centers), "final", len(finalCenters), "borders", len(borders), "took", time.Since(start))

	isCenter := make([]bool, pts.n)
	for _, c := range finalCenters {
		isCenter[c] = true
	}

	return &Result{
		Labels:       finalLabels,
		KStar:        pts.kstar,
		LogRho:       pts.logRho,
		LogRhoErr:    pts.logRhoErr,
		IsCenter:     isCenter,
		Centers:      finalCenters,
		NumClusters:  len(finalCenters),
		IntrinsicDim: intrinsicDim,
		Borders:      borders,
	}
}
