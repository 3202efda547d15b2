package clustering

import "sort"

// LabelSummary counts the outcome of a clustering run
type LabelSummary struct {
	Clusters int         // Number of distinct positive labels
	Noise    int         // Points labeled Noise
	Sizes    map[int]int // Cluster id -> member count
}

// Summarize counts clusters, noise and cluster sizes in labels
func Summarize(labels []int) LabelSummary {
	summary := LabelSummary{Sizes: make(map[int]int)}
	for _, label := range labels {
		if label == Noise {
			summary.Noise++
			continue
		}
		if label > 0 {
			summary.Sizes[label]++
		}
	}
	summary.Clusters = len(summary.Sizes)
	return summary
}

// ClusterIDs returns the cluster ids in ascending order
func (s LabelSummary) ClusterIDs() []int {
	ids := make([]int, 0, len(s.Sizes))
	for id := range s.Sizes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
