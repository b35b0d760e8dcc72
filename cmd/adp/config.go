package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the command line flags. Z and halo are pointers so an
// absent key can be told apart from an explicit zero or false.
type fileConfig struct {
	Input        string   `yaml:"input"`
	Output       string   `yaml:"output"`
	BorderOutput string   `yaml:"border_output"`
	Dims         int      `yaml:"dims"`
	K            int      `yaml:"k"`
	Z            *float64 `yaml:"z"`
	Halo         *bool    `yaml:"halo"`
	BorderStore  string   `yaml:"border_store"`
	Index        string   `yaml:"index"`
	DType        string   `yaml:"dtype"`
	Rows         int      `yaml:"rows"`
	Cols         int      `yaml:"cols"`
	Mask         string   `yaml:"mask"`
	Window       int      `yaml:"window"`
	Workers      int      `yaml:"workers"`
	LogFormat    string   `yaml:"log_format"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var fc fileConfig
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &fc, nil
}

// applyFileConfig fills opts from the config file. A flag the user set on
// the command line wins over the file; the file wins over flag defaults.
func applyFileConfig(cmd *cobra.Command, opts *options, fc *fileConfig) {
	flags := cmd.Flags()

	if !flags.Changed("input") && fc.Input != "" {
		opts.input = fc.Input
	}
	if !flags.Changed("output") && fc.Output != "" {
		opts.output = fc.Output
	}
	if !flags.Changed("border-output") && fc.BorderOutput != "" {
		opts.borderOutput = fc.BorderOutput
	}
	if !flags.Changed("dims") && fc.Dims != 0 {
		opts.dims = fc.Dims
	}
	if !flags.Changed("k") && fc.K != 0 {
		opts.k = fc.K
	}
	if !flags.Changed("z") && fc.Z != nil {
		opts.z = *fc.Z
	}
	if !flags.Changed("halo") && fc.Halo != nil {
		opts.halo = *fc.Halo
	}
	if !flags.Changed("border-store") && fc.BorderStore != "" {
		opts.borderStore = fc.BorderStore
	}
	if !flags.Changed("index") && fc.Index != "" {
		opts.index = fc.Index
	}
	if !flags.Changed("dtype") && fc.DType != "" {
		opts.dtype = fc.DType
	}
	if !flags.Changed("rows") && fc.Rows != 0 {
		opts.rows = fc.Rows
	}
	if !flags.Changed("cols") && fc.Cols != 0 {
		opts.cols = fc.Cols
	}
	if !flags.Changed("mask") && fc.Mask != "" {
		opts.mask = fc.Mask
	}
	if !flags.Changed("window") && fc.Window != 0 {
		opts.window = fc.Window
	}
	if !flags.Changed("workers") && fc.Workers != 0 {
		opts.workers = fc.Workers
	}
	if !flags.Changed("log-format") && fc.LogFormat != "" {
		opts.logFormat = fc.LogFormat
	}
}
