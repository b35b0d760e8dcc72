// Package adp implements Advanced Density Peaks (ADP) clustering.
//
// ADP estimates a local density at every point from its k nearest
// neighbors, with a per-point adaptive neighborhood size kstar and an
// analytic error on the log-density. Points are assigned to density peaks
// by following ascending-density neighbor links; the highest-density
// saddle point between every pair of adjacent peaks is located; and peaks
// whose separating saddle is not a statistically significant density dip
// (controlled by the threshold Z) are merged. Points below their cluster's
// surviving saddle density can optionally be demoted to halo.
//
// Basic usage:
//
//	cfg := adp.DefaultConfig()
//	cfg.K = 100
//	cfg.Z = 2.5
//	result, err := adp.Cluster(data, dims, cfg)
//	// result.Labels[i] is the cluster ID for point i (adp.Unassigned = halo/noise)
//	// result.LogRho[i] is the log-density estimate for point i
//	// result.Centers[c] is the peak point index of cluster c
//
// Grid mode clusters an image given pixel intensities and an optional
// validity mask:
//
//	result, err := adp.ClusterGrid(&adp.Grid{Values: img, Rows: h, Cols: w}, mask, cfg)
//
// # Index selection
//
// By default (Index: "auto"), Cluster picks the spatial index from the
// metric and dimensionality: a KD-tree for coordinate metrics on
// low-dimensional data, a vantage-point tree otherwise. Both are exact.
// Set Config.Index to force a backend:
//
//	cfg.Index = adp.IndexKDTree
//	cfg.Index = adp.IndexVPTree
package adp
