package clustering

import (
	"math"
	"sort"
)

// SilhouetteScore calculates the silhouette score for a single clustered point
// Returns a score between -1 and 1:
//
//	-1: Point likely in wrong cluster
//	 0: Point on the border between clusters (or alone in its cluster)
//	+1: Point well matched to its cluster
//
// Noise points are ignored on both sides of the computation.
func SilhouetteScore(pointIdx int, labels []int, distances [][]float64) float64 {
	n := len(labels)
	if n == 0 || pointIdx < 0 || pointIdx >= n || labels[pointIdx] <= 0 {
		return 0.0
	}

	current := labels[pointIdx]

	a, ok := meanIntraClusterDistance(pointIdx, current, labels, distances)
	if !ok {
		return 0.0
	}

	b, ok := minInterClusterDistance(pointIdx, current, labels, distances)
	if !ok {
		return 0.0
	}

	denom := math.Max(a, b)
	if denom == 0 {
		return 0.0
	}
	return (b - a) / denom
}

// meanIntraClusterDistance is the mean distance to the other members of the point's cluster
func meanIntraClusterDistance(pointIdx, clusterLabel int, labels []int, distances [][]float64) (float64, bool) {
	sum := 0.0
	count := 0

	for i, label := range labels {
		if i == pointIdx || label != clusterLabel {
			continue
		}
		sum += distances[pointIdx][i]
		count++
	}

	if count == 0 {
		return 0.0, false // Singleton cluster
	}
	return sum / float64(count), true
}

// minInterClusterDistance is the smallest mean distance to the members of another cluster
func minInterClusterDistance(pointIdx, currentCluster int, labels []int, distances [][]float64) (float64, bool) {
	sums := make(map[int]float64)
	counts := make(map[int]int)

	for i, label := range labels {
		if label <= 0 || label == currentCluster {
			continue
		}
		sums[label] += distances[pointIdx][i]
		counts[label]++
	}

	if len(counts) == 0 {
		return 0.0, false
	}

	minDistance := math.Inf(1)
	for label, count := range counts {
		if mean := sums[label] / float64(count); mean < minDistance {
			minDistance = mean
		}
	}
	return minDistance, true
}

// DistanceMatrix computes pairwise distances between all points
func DistanceMatrix(points [][]float64, metric Metric) [][]float64 {
	if metric == nil {
		metric = EuclideanDistance
	}

	n := len(points)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := metric(points[i], points[j])
			matrix[i][j] = d
			matrix[j][i] = d
		}
	}

	return matrix
}

// SilhouetteAnalysis summarizes how well separated the discovered clusters are
type SilhouetteAnalysis struct {
	OverallScore  float64         // Mean over clustered (non-noise) points
	ClusterScores map[int]float64 // Per-cluster mean scores
	PointScores   []float64       // Individual point scores, 0 for noise
	NumClusters   int
	NumClustered  int
	Quality       string // Interpretation: Excellent/Good/Fair/Poor
}

// Silhouette returns the mean silhouette score over clustered points.
// It is 0 when there are fewer than two clusters.
func Silhouette(points [][]float64, labels []int, metric Metric) float64 {
	return PerformSilhouetteAnalysis(points, labels, metric).OverallScore
}

// PerformSilhouetteAnalysis computes overall, per-cluster and per-point silhouette scores
func PerformSilhouetteAnalysis(points [][]float64, labels []int, metric Metric) *SilhouetteAnalysis {
	analysis := &SilhouetteAnalysis{
		ClusterScores: make(map[int]float64),
		PointScores:   make([]float64, len(labels)),
	}

	clusterSet := make(map[int]bool)
	for _, label := range labels {
		if label > 0 {
			clusterSet[label] = true
			analysis.NumClustered++
		}
	}
	analysis.NumClusters = len(clusterSet)

	if analysis.NumClusters < 2 || len(points) != len(labels) {
		analysis.Quality = InterpretSilhouetteScore(0)
		return analysis
	}

	distances := DistanceMatrix(points, metric)

	sums := make(map[int]float64)
	counts := make(map[int]int)
	total := 0.0
	for i, label := range labels {
		if label <= 0 {
			continue
		}
		score := SilhouetteScore(i, labels, distances)
		analysis.PointScores[i] = score
		sums[label] += score
		counts[label]++
		total += score
	}

	for label, sum := range sums {
		analysis.ClusterScores[label] = sum / float64(counts[label])
	}
	analysis.OverallScore = total / float64(analysis.NumClustered)
	analysis.Quality = InterpretSilhouetteScore(analysis.OverallScore)

	return analysis
}

// SortedClusterIDs returns the cluster ids of the analysis in ascending order
func (s *SilhouetteAnalysis) SortedClusterIDs() []int {
	ids := make([]int, 0, len(s.ClusterScores))
	for id := range s.ClusterScores {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// InterpretSilhouetteScore provides a human-readable interpretation of a silhouette score
func InterpretSilhouetteScore(score float64) string {
	if score >= 0.71 {
		return "Excellent - Strong cluster structure"
	} else if score >= 0.51 {
		return "Good - Reasonable cluster structure"
	} else if score >= 0.26 {
		return "Fair - Weak cluster structure"
	} else if score >= 0.0 {
		return "Poor - No substantial cluster structure"
	}
	return "Very Poor - Artificial/forced clustering"
}
