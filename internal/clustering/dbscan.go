package clustering

import (
	"errors"
	"fmt"
	"math"
)

// Label values assigned by DBSCAN. Positive labels are 1-based cluster ids
// in discovery order.
const (
	Unvisited = 0
	Noise     = -1
)

var (
	// ErrDimensionMismatch is returned when vectors of different arity are compared
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInvalidParameter is returned for a negative eps or a minSamples below 1
	ErrInvalidParameter = errors.New("invalid parameter")
)

// DBSCANClusterer groups points by density: a point with at least MinSamples
// points (itself included) within Eps is a core point, and clusters are the
// sets of points reachable from core points through chains of core points.
type DBSCANClusterer struct {
	Eps        float64 // Neighborhood radius, inclusive
	MinSamples int     // Neighborhood size (including the point) needed for a core point
	Metric     Metric  // Defaults to EuclideanDistance when nil
}

// NewDBSCANClusterer creates a DBSCAN clusterer using Euclidean distance
func NewDBSCANClusterer(eps float64, minSamples int) *DBSCANClusterer {
	return &DBSCANClusterer{
		Eps:        eps,
		MinSamples: minSamples,
		Metric:     EuclideanDistance,
	}
}

// DBSCAN clusters points with Euclidean distance and returns one label per point
func DBSCAN(points [][]float64, eps float64, minSamples int) ([]int, error) {
	return NewDBSCANClusterer(eps, minSamples).Cluster(points)
}

// Validate checks the clustering parameters
func (d *DBSCANClusterer) Validate() error {
	if math.IsNaN(d.Eps) || d.Eps < 0 {
		return fmt.Errorf("%w: eps must be non-negative, got %v", ErrInvalidParameter, d.Eps)
	}
	if d.MinSamples < 1 {
		return fmt.Errorf("%w: min samples must be at least 1, got %d", ErrInvalidParameter, d.MinSamples)
	}
	return nil
}

// Cluster labels every point as Noise or with a positive cluster id.
// The returned slice is aligned with points. Parameters and arity are
// validated before any label is assigned.
func (d *DBSCANClusterer) Cluster(points [][]float64) ([]int, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := CheckDimensions(points); err != nil {
		return nil, err
	}

	metric := d.metric()
	labels := make([]int, len(points))
	clusterID := 0

	for i := range points {
		if labels[i] != Unvisited {
			continue
		}

		neighbors := regionQuery(points, i, d.Eps, metric)
		if len(neighbors) < d.MinSamples {
			// May still be claimed as a border point by a later cluster
			labels[i] = Noise
			continue
		}

		clusterID++
		d.expandCluster(points, labels, i, neighbors, clusterID, metric)
	}

	return labels, nil
}

// expandCluster grows clusterID breadth-first from a core seed point.
// The worklist is appended to while it is walked; each point contributes its
// neighborhood at most once, on its Unvisited -> clusterID transition.
func (d *DBSCANClusterer) expandCluster(points [][]float64, labels []int, seed int, neighbors []int, clusterID int, metric Metric) {
	labels[seed] = clusterID

	queue := make([]int, len(neighbors))
	copy(queue, neighbors)

	for i := 0; i < len(queue); i++ {
		idx := queue[i]

		switch labels[idx] {
		case Noise:
			// Border point: joins the cluster but is not expanded
			labels[idx] = clusterID
		case Unvisited:
			labels[idx] = clusterID
			next := regionQuery(points, idx, d.Eps, metric)
			if len(next) >= d.MinSamples {
				queue = append(queue, next...)
			}
		}
	}
}

func (d *DBSCANClusterer) metric() Metric {
	if d.Metric == nil {
		return EuclideanDistance
	}
	return d.Metric
}

// Neighbors returns, in ascending index order, every point within eps of
// points[idx] (inclusive), idx itself included.
func Neighbors(points [][]float64, idx int, eps float64, metric Metric) ([]int, error) {
	if idx < 0 || idx >= len(points) {
		return nil, fmt.Errorf("%w: point index %d out of range [0, %d)", ErrInvalidParameter, idx, len(points))
	}
	if math.IsNaN(eps) || eps < 0 {
		return nil, fmt.Errorf("%w: eps must be non-negative, got %v", ErrInvalidParameter, eps)
	}
	if err := CheckDimensions(points); err != nil {
		return nil, err
	}
	if metric == nil {
		metric = EuclideanDistance
	}
	return regionQuery(points, idx, eps, metric), nil
}

// regionQuery is the brute-force O(N) neighborhood scan
func regionQuery(points [][]float64, idx int, eps float64, metric Metric) []int {
	var neighbors []int
	for j, p := range points {
		if metric(points[idx], p) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

// CheckDimensions verifies that every point has the arity of the first one
func CheckDimensions(points [][]float64) error {
	if len(points) == 0 {
		return nil
	}
	dim := len(points[0])
	for i, p := range points {
		if len(p) != dim {
			return fmt.Errorf("point %d: %w", i, dimensionMismatch(dim, len(p)))
		}
	}
	return nil
}
