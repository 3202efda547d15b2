package core

import "time"

// Vector is a fixed-arity feature vector describing one image.
type Vector []float64

// Image is a discovered image together with its extracted features.
type Image struct {
	Path        string  `json:"path"`                 // Path of the source file
	ContentHash string  `json:"content_hash"`         // SHA-256 of the file bytes
	Features    Vector  `json:"features"`             // Brightness, contrast, noise
	Cached      bool    `json:"cached"`               // Features were served from the cache
	Silhouette  float64 `json:"silhouette,omitempty"` // Score within its run, 0 for noise
}

// Group is the set of images sharing one final label.
type Group struct {
	Label   int      `json:"label"`   // -1 for noise, otherwise the 1-based cluster id
	Name    string   `json:"name"`    // Output directory name (cluster_1, noise, ...)
	Members []string `json:"members"` // Image paths in dataset order
}

// IsNoise reports whether the group collects noise points.
func (g Group) IsNoise() bool { return g.Label < 0 }

// ItemError records a failure isolated to one input file.
type ItemError struct {
	Path  string `json:"path"`
	Stage string `json:"stage"` // "extract" or "save"
	Err   string `json:"error"`
}

func (e ItemError) Error() string {
	return e.Stage + " " + e.Path + ": " + e.Err
}

// RunParams are the clustering parameters of one run.
type RunParams struct {
	Eps        float64 `json:"eps"`
	MinSamples int     `json:"min_samples"`
	Metric     string  `json:"metric"`
}

// RunResult describes a completed clustering run.
type RunResult struct {
	ID                 string          `json:"id"`
	InputDir           string          `json:"input_dir"`
	OutputDir          string          `json:"output_dir"`
	Params             RunParams       `json:"params"`
	Images             []Image         `json:"images"`
	Labels             []int           `json:"labels"`
	Groups             []Group         `json:"groups"`
	Clusters           int             `json:"clusters"`
	Noise              int             `json:"noise"`
	Silhouette         float64         `json:"silhouette"`
	ClusterSilhouettes map[int]float64 `json:"cluster_silhouettes,omitempty"` // Cluster id -> mean score
	Failures           []ItemError     `json:"failures,omitempty"`
	DryRun             bool            `json:"dry_run"`
	CreatedAt          time.Time       `json:"created_at"`
	Duration           time.Duration   `json:"duration"`
}
