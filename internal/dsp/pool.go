package dsp

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// PooledLen returns the number of pooling outputs for a signal of n samples.
func PooledLen(n, size, stride int) int {
	if size <= 0 || stride <= 0 || n < size {
		return 0
	}
	return (n-size)/stride + 1
}

// AveragePool averages row over sliding windows of size, moving by stride.
func AveragePool(row []float64, size, stride int) ([]float64, error) {
	n := PooledLen(len(row), size, stride)
	if n == 0 {
		return nil, fmt.Errorf("%w: cannot pool %d samples with size %d stride %d", ErrShape, len(row), size, stride)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = stat.Mean(row[i*stride:i*stride+size], nil)
	}
	return out, nil
}

// VariancePool is the log-variance counterpart of AveragePool: each output is
// the clamped log of the unbiased variance within the window.
func VariancePool(row []float64, size, stride int) ([]float64, error) {
	n := PooledLen(len(row), size, stride)
	if n == 0 {
		return nil, fmt.Errorf("%w: cannot pool %d samples with size %d stride %d", ErrShape, len(row), size, stride)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = LogVariance(row[i*stride : i*stride+size])
	}
	return out, nil
}
