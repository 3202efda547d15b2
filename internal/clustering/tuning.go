package clustering

import (
	"fmt"
	"sort"
)

// KDistances returns, sorted ascending, the distance from every point to its
// k-th nearest point, counting the point itself as the first. With k equal to
// minSamples, a point is a core point exactly when its k-distance is <= eps.
func KDistances(points [][]float64, k int, metric Metric) ([]float64, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", ErrInvalidParameter, k)
	}
	if err := CheckDimensions(points); err != nil {
		return nil, err
	}
	if metric == nil {
		metric = EuclideanDistance
	}

	n := len(points)
	if n == 0 {
		return []float64{}, nil
	}
	if k > n {
		k = n
	}

	kdist := make([]float64, n)
	row := make([]float64, n)
	for i := range points {
		for j := range points {
			row[j] = metric(points[i], points[j])
		}
		sort.Float64s(row)
		kdist[i] = row[k-1]
	}

	sort.Float64s(kdist)
	return kdist, nil
}

// SuggestEps picks a starting eps for the given minSamples from the elbow of
// the sorted k-distance curve: the point where the curve bends upward the most.
func SuggestEps(points [][]float64, minSamples int, metric Metric) (float64, error) {
	kdist, err := KDistances(points, minSamples, metric)
	if err != nil {
		return 0, err
	}

	switch len(kdist) {
	case 0:
		return 0, nil
	case 1, 2:
		return kdist[len(kdist)-1], nil
	}

	elbow := len(kdist) - 1
	maxBend := 0.0
	for i := 1; i < len(kdist)-1; i++ {
		bend := kdist[i+1] - 2*kdist[i] + kdist[i-1]
		if bend > maxBend {
			maxBend = bend
			elbow = i
		}
	}

	return kdist[elbow], nil
}
