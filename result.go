package adp

// Unassigned is the label of points that belong to no cluster: points no
// density-ascent path reaches, and halo points demoted after merging.
const Unassigned = -1

// BorderInfo is a surviving border between two clusters, reported in the
// final Result. ClusterA < ClusterB in the final dense numbering.
type BorderInfo struct {
	ClusterA int
	ClusterB int
	Border
}

// Result holds the output of a clustering run. All per-point slices are
// indexed by point in input order.
type Result struct {
	// Labels assigns each point a cluster id in [0, NumClusters), or
	// Unassigned.
	Labels []int
	// KStar is the adaptive neighborhood size chosen per point; 0 means
	// the point's density is undefined.
	KStar []int
	// LogRho is the estimated log density per point, -Inf when undefined.
	LogRho []float64
	// LogRhoErr is the estimated log density error, +Inf when undefined.
	LogRhoErr []float64
	// IsCenter marks the density peaks of the surviving clusters.
	IsCenter []bool
	// Centers holds the peak point index of each surviving cluster,
	// indexed by cluster id.
	Centers []int
	// NumClusters is the number of surviving clusters.
	NumClusters int
	// IntrinsicDim is the intrinsic dimension used to convert neighbor
	// distances into densities.
	IntrinsicDim float64
	// Borders lists the surviving saddle points between cluster pairs,
	// ascending by (ClusterA, ClusterB).
	Borders []BorderInfo
}
