package pipeline

import (
	"context"

	"imgcluster/internal/clustering"
	"imgcluster/internal/core"
	"imgcluster/internal/features"
	"imgcluster/internal/scan"
)

// ScannerAdapter wraps internal/scan to implement ImageScanner
type ScannerAdapter struct {
	extensions []string
}

func NewScannerAdapter(extensions []string) *ScannerAdapter {
	if len(extensions) == 0 {
		extensions = scan.DefaultExtensions
	}
	return &ScannerAdapter{extensions: extensions}
}

func (a *ScannerAdapter) Discover(ctx context.Context, root string, skipDirs []string) ([]string, error) {
	return scan.Discover(ctx, root, scan.Options{
		Extensions: a.extensions,
		SkipDirs:   skipDirs,
	})
}

// ExtractorAdapter wraps a features.Extractor to implement FeatureExtractor
type ExtractorAdapter struct {
	extractor features.Extractor
}

func NewExtractorAdapter(extractor features.Extractor) *ExtractorAdapter {
	if extractor == nil {
		extractor = features.NewStatsExtractor()
	}
	return &ExtractorAdapter{extractor: extractor}
}

func (a *ExtractorAdapter) ExtractBytes(data []byte) (core.Vector, error) {
	return a.extractor.ExtractBytes(data)
}

func (a *ExtractorAdapter) Dimensions() int {
	return a.extractor.Dimensions()
}

// NewClusterer builds the DBSCAN clusterer for params, validating them first
func NewClusterer(params core.RunParams) (*clustering.DBSCANClusterer, error) {
	metric, err := clustering.MetricByName(params.Metric)
	if err != nil {
		return nil, err
	}

	clusterer := &clustering.DBSCANClusterer{
		Eps:        params.Eps,
		MinSamples: params.MinSamples,
		Metric:     metric,
	}
	if err := clusterer.Validate(); err != nil {
		return nil, err
	}
	return clusterer, nil
}

// toPoints exposes feature vectors as the plain slices the clustering core works on
func toPoints(images []core.Image) [][]float64 {
	points := make([][]float64, len(images))
	for i, img := range images {
		points[i] = img.Features
	}
	return points
}

// imagePaths returns the path of every image in order
func imagePaths(images []core.Image) []string {
	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = img.Path
	}
	return paths
}
