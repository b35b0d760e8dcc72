// Command adp is a batch density-peak clustering driver. It reads a flat
// binary point matrix (or an intensity image with an optional mask), runs
// the clustering pipeline and writes per-point and per-border reports.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcodn/adp"
	"github.com/marcodn/adp/dataio"
)

type options struct {
	input        string
	output       string
	borderOutput string
	configPath   string
	dims         int
	k            int
	z            float64
	halo         bool
	borderStore  string
	index        string
	dtype        string
	rows         int
	cols         int
	mask         string
	window       int
	workers      int
	logFormat    string
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "adp",
		Short: "Density-peak clustering over binary point matrices and image grids",
		Long: `adp clusters points by finding density peaks: each point climbs to its
densest neighbor, peaks too shallow to matter merge, and the surviving
basins are the clusters.

Vector mode reads a flat little-endian binary matrix (--dims features per
point). Grid mode (--rows/--cols) reads an intensity image, optionally
restricted by a validity mask, and segments it by intensity peaks.
Inputs ending in .gz, .zst or .lz4 are decompressed on the fly.

Examples:
  adp -i points.f32 -d 2 -k 300 -o points.tsv
  adp -i image.f64.gz --dtype float64 --rows 512 --cols 512 --mask mask.i32 -o pixels.tsv --border-output borders.tsv
  adp -i points.f32 -c run.yaml -v`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				fc, err := loadFileConfig(opts.configPath)
				if err != nil {
					return err
				}
				applyFileConfig(cmd, opts, fc)
			}
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "input file: flat little-endian binary values")
	f.StringVarP(&opts.output, "output", "o", "", "point report file (default stdout)")
	f.StringVar(&opts.borderOutput, "border-output", "", "border report file (skipped when empty)")
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file; explicit flags override it")
	f.IntVarP(&opts.dims, "dims", "d", 0, "features per point (vector mode)")
	f.IntVarP(&opts.k, "k", "k", 1001, "max neighborhood size per point")
	f.Float64Var(&opts.z, "z", 2, "significance threshold in standard errors")
	f.BoolVar(&opts.halo, "halo", true, "demote low-density boundary points to unassigned")
	f.StringVar(&opts.borderStore, "border-store", "auto", "border store backend: auto, dense or sparse")
	f.StringVar(&opts.index, "index", "auto", "spatial index: auto, kdtree or vptree")
	f.StringVar(&opts.dtype, "dtype", "float32", "input value type: float32 or float64")
	f.IntVar(&opts.rows, "rows", 0, "grid rows (grid mode needs --rows and --cols)")
	f.IntVar(&opts.cols, "cols", 0, "grid columns")
	f.StringVar(&opts.mask, "mask", "", "grid validity mask file, little-endian int32 per pixel")
	f.IntVar(&opts.window, "window", 15, "grid neighborhood half-width in pixels")
	f.IntVar(&opts.workers, "workers", 0, "goroutines for parallel stages (0 = all CPUs)")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log stage progress, not only warnings")

	return cmd
}

func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q (text or json)", format)
}

func run(cmd *cobra.Command, opts *options) error {
	if opts.input == "" {
		return errors.New("an input file is required (-i)")
	}
	gridMode := opts.rows > 0 || opts.cols > 0
	if gridMode && (opts.rows < 1 || opts.cols < 1) {
		return errors.New("grid mode needs both --rows and --cols")
	}
	if !gridMode && opts.dims < 1 {
		return errors.New("vector mode needs --dims (or --rows/--cols for grid mode)")
	}

	var f32 bool
	switch opts.dtype {
	case "float32":
		f32 = true
	case "float64":
	default:
		return fmt.Errorf("unknown dtype %q (float32 or float64)", opts.dtype)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, opts.verbose)
	if err != nil {
		return err
	}

	cfg := adp.DefaultConfig()
	cfg.K = opts.k
	cfg.Z = opts.z
	cfg.Halo = opts.halo
	cfg.Borders = adp.BorderMode(opts.borderStore)
	cfg.Index = adp.IndexKind(opts.index)
	cfg.GridWindow = opts.window
	cfg.Workers = opts.workers
	cfg.Logger = logger

	start := time.Now()
	var res *adp.Result
	if gridMode {
		grid, mask, err := dataio.ReadGrid(opts.input, opts.mask, opts.rows, opts.cols, f32)
		if err != nil {
			return err
		}
		res, err = adp.ClusterGrid(grid, mask, cfg)
		if err != nil {
			return err
		}
	} else {
		data, _, err := dataio.ReadMatrix(opts.input, opts.dims, f32)
		if err != nil {
			return err
		}
		res, err = adp.Cluster(data, opts.dims, cfg)
		if err != nil {
			return err
		}
	}
	logger.Info("clustering finished",
		"clusters", res.NumClusters, "borders", len(res.Borders), "took", time.Since(start))

	if opts.output == "" {
		if err := dataio.WritePointInfo(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else if err := dataio.WritePointInfoFile(opts.output, res); err != nil {
		return err
	}

	if opts.borderOutput != "" {
		if err := dataio.WriteBordersFile(opts.borderOutput, res); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
