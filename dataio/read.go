// Package dataio reads the flat binary matrix and grid formats consumed by
// the adp batch driver and writes its report files. Inputs are raw
// little-endian float32/float64 (or int32 for masks) with optional gzip,
// zstd or lz4 compression selected by file extension.
package dataio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"

	"github.com/marcodn/adp"
)

// wrappedCloser reads through a decompressor but closes the underlying
// file as well.
type wrappedCloser struct {
	io.Reader
	close func() error
}

func (w *wrappedCloser) Close() error { return w.close() }

// Open opens path for reading, transparently decompressing .gz, .zst and
// .lz4 files. Any other extension is read as-is.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(path) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("dataio: opening %s: %w", path, err)
		}
		return &wrappedCloser{Reader: zr, close: func() error {
			zerr := zr.Close()
			if ferr := f.Close(); zerr == nil {
				zerr = ferr
			}
			return zerr
		}}, nil

	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("dataio: opening %s: %w", path, err)
		}
		return &wrappedCloser{Reader: zr, close: func() error {
			zr.Close()
			return f.Close()
		}}, nil

	case ".lz4":
		return &wrappedCloser{Reader: lz4.NewReader(f), close: f.Close}, nil

	default:
		return f, nil
	}
}

// readAll opens, optionally decompresses and slurps path.
func readAll(path string) ([]byte, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	raw, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("dataio: reading %s: %w", path, err)
	}
	return raw, nil
}

// decodeFloats interprets raw as little-endian float32 or float64 values.
func decodeFloats(raw []byte, f32 bool) ([]float64, error) {
	width := 8
	if f32 {
		width = 4
	}
	if len(raw)%width != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %d-byte values", len(raw), width)
	}

	out := make([]float64, len(raw)/width)
	if f32 {
		for i := range out {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			out[i] = float64(math.Float32frombits(bits))
		}
	} else {
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	}
	return out, nil
}

// ReadMatrix reads a flat row-major point matrix with dims features per
// point and returns the data with the inferred point count. f32 selects
// single-precision input; values are widened to float64 either way.
func ReadMatrix(path string, dims int, f32 bool) ([]float64, int, error) {
	if dims < 1 {
		return nil, 0, fmt.Errorf("dataio: dims must be >= 1, got %d", dims)
	}

	raw, err := readAll(path)
	if err != nil {
		return nil, 0, err
	}

	data, err := decodeFloats(raw, f32)
	if err != nil {
		return nil, 0, fmt.Errorf("dataio: %s: %w", path, err)
	}
	if len(data)%dims != 0 {
		return nil, 0, fmt.Errorf("dataio: %s holds %d values, not divisible by %d dims", path, len(data), dims)
	}
	return data, len(data) / dims, nil
}

// ReadMask reads a validity mask stored as little-endian int32 per pixel:
// nonzero means valid.
func ReadMask(path string) ([]uint8, error) {
	raw, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("dataio: %s: %d bytes is not a whole number of int32 values", path, len(raw))
	}

	mask := make([]uint8, len(raw)/4)
	for i := range mask {
		if binary.LittleEndian.Uint32(raw[i*4:]) != 0 {
			mask[i] = 1
		}
	}
	return mask, nil
}

// ReadGrid reads an intensity image and its optional validity mask (empty
// maskPath means no mask). The two files load concurrently.
func ReadGrid(valuesPath, maskPath string, rows, cols int, f32 bool) (*adp.Grid, []uint8, error) {
	if rows < 1 || cols < 1 {
		return nil, nil, fmt.Errorf("dataio: grid must be at least 1x1, got %dx%d", rows, cols)
	}

	var (
		values []float64
		mask   []uint8
	)

	var g errgroup.Group
	g.Go(func() error {
		data, _, err := ReadMatrix(valuesPath, 1, f32)
		if err != nil {
			return err
		}
		values = data
		return nil
	})
	if maskPath != "" {
		g.Go(func() error {
			m, err := ReadMask(maskPath)
			if err != nil {
				return err
			}
			mask = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if len(values) != rows*cols {
		return nil, nil, fmt.Errorf("dataio: %s holds %d values, want %d for a %dx%d grid",
			valuesPath, len(values), rows*cols, rows, cols)
	}
	if mask != nil && len(mask) != rows*cols {
		return nil, nil, fmt.Errorf("dataio: %s holds %d mask entries, want %d for a %dx%d grid",
			maskPath, len(mask), rows*cols, rows, cols)
	}

	return &adp.Grid{Values: values, Rows: rows, Cols: cols}, mask, nil
}
