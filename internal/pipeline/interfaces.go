package pipeline

import (
	"context"

	"imgcluster/internal/clustering"
	"imgcluster/internal/core"
	"imgcluster/internal/organize"
	"imgcluster/internal/store"
)

// ImageScanner finds the images to cluster
type ImageScanner interface {
	// Discover returns image paths under root in a deterministic order,
	// ignoring anything inside skipDirs
	Discover(ctx context.Context, root string, skipDirs []string) ([]string, error)
}

// FeatureExtractor turns encoded image bytes into a fixed-arity vector
type FeatureExtractor interface {
	// ExtractBytes decodes data and computes its feature vector
	ExtractBytes(data []byte) (core.Vector, error)

	// Dimensions is the arity of every vector the extractor returns
	Dimensions() int
}

// Clusterer assigns a label to every point
type Clusterer interface {
	// Cluster returns one label per point: -1 for noise, 1..k for clusters
	Cluster(points [][]float64) ([]int, error)
}

// GroupOrganizer partitions labeled images and writes them out
type GroupOrganizer interface {
	// Group partitions ids by label
	Group(ids []string, labels []int) ([]core.Group, error)

	// Save copies every group into its own directory under outDir
	Save(ctx context.Context, groups []core.Group, outDir string) (*organize.SaveResult, error)
}

// CacheManager stores extracted features keyed by path and content hash (optional)
type CacheManager interface {
	// GetFeatures returns a cached vector; ok is false on a miss
	GetFeatures(path, contentHash string) (core.Vector, bool, error)

	// PutFeatures caches a vector
	PutFeatures(path, contentHash string, vec core.Vector) error
}

// RunRecorder keeps the history of clustering runs (optional)
type RunRecorder interface {
	// SaveRun records a finished run with its assignments
	SaveRun(run *core.RunResult) error
}

var (
	_ Clusterer    = (*clustering.DBSCANClusterer)(nil)
	_ CacheManager = (*store.Store)(nil)
	_ RunRecorder  = (*store.Store)(nil)
)
