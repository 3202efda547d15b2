package clustering

import (
	"fmt"
	"math"
	"strings"
)

// Metric computes the distance between two vectors of equal arity.
// Implementations must be symmetric, non-negative and return 0 for identical inputs.
// Arity is checked by the callers (see Distance and DBSCANClusterer.Cluster).
type Metric func(a, b []float64) float64

// Supported metric names
const (
	MetricEuclidean = "euclidean"
	MetricManhattan = "manhattan"
	MetricChebyshev = "chebyshev"
)

// EuclideanDistance calculates the Euclidean (L2) distance between two vectors
func EuclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// ManhattanDistance calculates the city-block (L1) distance between two vectors
func ManhattanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum
}

// ChebyshevDistance calculates the L-infinity distance between two vectors
func ChebyshevDistance(a, b []float64) float64 {
	var maxDiff float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff
}

// MetricByName resolves a metric from its configuration name.
// An empty name selects Euclidean distance.
func MetricByName(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MetricEuclidean:
		return EuclideanDistance, nil
	case MetricManhattan:
		return ManhattanDistance, nil
	case MetricChebyshev:
		return ChebyshevDistance, nil
	default:
		return nil, fmt.Errorf("%w: unknown metric %q (supported: euclidean, manhattan, chebyshev)", ErrInvalidParameter, name)
	}
}

// Distance applies metric to a and b after checking that both have the same arity
func Distance(metric Metric, a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, dimensionMismatch(len(a), len(b))
	}
	if metric == nil {
		metric = EuclideanDistance
	}
	return metric(a, b), nil
}

func dimensionMismatch(want, got int) error {
	return fmt.Errorf("%w: expected %d dimensions, got %d", ErrDimensionMismatch, want, got)
}
