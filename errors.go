package adp

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when the engine is given zero points.
var ErrEmptyInput = errors.New("adp: empty input")

// ErrBadK is returned when Config.K is below the smallest neighborhood
// the density estimator can work with.
var ErrBadK = errors.New("adp: K must be at least 4")

// DimensionMismatchError reports a shape mismatch between the configured
// dimensionality and the data actually supplied.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("adp: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
