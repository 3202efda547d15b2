package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"imgcluster/internal/clustering"
	"imgcluster/internal/core"
	"imgcluster/internal/logger"
	"imgcluster/internal/organize"
	"imgcluster/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Pipeline orchestrates discovery, feature extraction, clustering and
// organization of one image directory
type Pipeline struct {
	scanner   ImageScanner
	extractor FeatureExtractor
	organizer GroupOrganizer
	cache     CacheManager // Optional
	recorder  RunRecorder  // Optional

	config *Config
	out    io.Writer
}

// Config holds pipeline configuration
type Config struct {
	Workers       int  // Concurrent feature extractions
	CacheEnabled  bool // Look up and store features in the cache
	WriteManifest bool // Write manifest.json next to the groups
	IncludeOutput bool // Scan the output directory too
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:       runtime.NumCPU(),
		CacheEnabled:  true,
		WriteManifest: true,
		IncludeOutput: false,
	}
}

// NewPipeline creates a new pipeline with all dependencies. cache and
// recorder may be nil; out receives progress output and may be nil.
func NewPipeline(
	scanner ImageScanner,
	extractor FeatureExtractor,
	organizer GroupOrganizer,
	cache CacheManager,
	recorder RunRecorder,
	config *Config,
	out io.Writer,
) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	if out == nil {
		out = io.Discard
	}

	return &Pipeline{
		scanner:   scanner,
		extractor: extractor,
		organizer: organizer,
		cache:     cache,
		recorder:  recorder,
		config:    config,
		out:       out,
	}
}

// Request describes one clustering run
type Request struct {
	InputDir  string
	OutputDir string // Defaults to <InputDir>/clustered_images
	Params    core.RunParams
	DryRun    bool // Cluster without copying files
}

// Result contains the output of a run
type Result struct {
	Run          *core.RunResult
	ManifestPath string
	Stats        ProcessingStats
}

// ProcessingStats tracks pipeline execution metrics
type ProcessingStats struct {
	Discovered     int
	Extracted      int
	Failed         int
	CacheHits      int
	CacheMisses    int
	Copied         int
	ProcessingTime time.Duration
	StartTime      time.Time
	EndTime        time.Time
}

// Run executes the full clustering workflow
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	startTime := time.Now()
	stats := ProcessingStats{StartTime: startTime}

	// Parameters are checked before any work is done
	clusterer, err := NewClusterer(req.Params)
	if err != nil {
		return nil, err
	}
	if req.Params.Metric == "" {
		req.Params.Metric = clustering.MetricEuclidean
	}

	inputDir, outputDir, err := resolveDirs(req.InputDir, req.OutputDir)
	if err != nil {
		return nil, err
	}

	// Step 1: Discover images
	fmt.Fprintf(p.out, "🔍 Step 1/5: Scanning %s for images...\n", inputDir)
	paths, err := p.discover(ctx, inputDir, outputDir)
	if err != nil {
		return nil, err
	}
	stats.Discovered = len(paths)
	fmt.Fprintf(p.out, "   ✓ Found %d images\n\n", stats.Discovered)

	// Step 2: Extract features
	fmt.Fprintf(p.out, "🧮 Step 2/5: Extracting features...\n")
	images, failures, err := p.extractAll(ctx, paths, &stats)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(p.out, "   ✓ Extracted %d/%d images\n", stats.Extracted, stats.Discovered)
	if p.cache != nil && p.config.CacheEnabled {
		fmt.Fprintf(p.out, "   • Cache hits: %d, Cache misses: %d\n", stats.CacheHits, stats.CacheMisses)
	}
	if stats.Failed > 0 {
		fmt.Fprintf(p.out, "   ⚠️  %d images could not be read\n", stats.Failed)
	}
	fmt.Fprintln(p.out)

	// Step 3: Cluster
	fmt.Fprintf(p.out, "🔗 Step 3/5: Clustering (eps=%g, min_samples=%d, metric=%s)...\n",
		req.Params.Eps, req.Params.MinSamples, req.Params.Metric)
	points := toPoints(images)
	labels, err := clusterer.Cluster(points)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster images: %w", err)
	}

	summary := clustering.Summarize(labels)
	analysis := clustering.PerformSilhouetteAnalysis(points, labels, clusterer.Metric)
	for i, score := range analysis.PointScores {
		images[i].Silhouette = score
	}
	for _, id := range analysis.SortedClusterIDs() {
		logger.Debug("Cluster silhouette", "cluster", id, "score", analysis.ClusterScores[id])
	}
	fmt.Fprintf(p.out, "   ✓ %d clusters, %d noise images\n\n", summary.Clusters, summary.Noise)

	groups, err := p.organizer.Group(imagePaths(images), labels)
	if err != nil {
		return nil, fmt.Errorf("failed to group images: %w", err)
	}

	run := &core.RunResult{
		ID:                 uuid.NewString(),
		InputDir:           inputDir,
		OutputDir:          outputDir,
		Params:             req.Params,
		Images:             images,
		Labels:             labels,
		Groups:             groups,
		Clusters:           summary.Clusters,
		Noise:              summary.Noise,
		Silhouette:         analysis.OverallScore,
		ClusterSilhouettes: analysis.ClusterScores,
		Failures:           failures,
		DryRun:             req.DryRun,
		CreatedAt:          startTime,
	}

	// Step 4: Save groups
	result := &Result{Run: run}
	switch {
	case req.DryRun:
		fmt.Fprintf(p.out, "⏭️  Step 4/5: Dry run, skipping copy\n\n")
	case len(images) == 0:
		fmt.Fprintf(p.out, "⏭️  Step 4/5: Nothing to save\n\n")
	default:
		fmt.Fprintf(p.out, "💾 Step 4/5: Saving groups to %s...\n", outputDir)
		if err := p.save(ctx, run, result, &stats); err != nil {
			return nil, err
		}
	}

	// Step 5: Record run
	if p.recorder != nil {
		fmt.Fprintf(p.out, "🗂️  Step 5/5: Recording run %s...\n", run.ID)
		if err := p.recorder.SaveRun(run); err != nil {
			// Non-fatal: the groups are already on disk
			logger.Warn("Failed to record run", "run_id", run.ID, "error", err.Error())
			fmt.Fprintf(p.out, "   ⚠️  Run history not updated: %v\n\n", err)
		} else {
			fmt.Fprintf(p.out, "   ✓ Recorded\n\n")
		}
	} else {
		fmt.Fprintf(p.out, "⏭️  Step 5/5: Run history disabled\n\n")
	}

	stats.EndTime = time.Now()
	stats.ProcessingTime = stats.EndTime.Sub(startTime)
	run.Duration = stats.ProcessingTime
	result.Stats = stats

	logger.Info("Clustering run finished",
		"run_id", run.ID,
		"images", len(images),
		"clusters", run.Clusters,
		"noise", run.Noise,
		"failures", len(run.Failures),
		"duration", run.Duration.String())

	return result, nil
}

// LoadFeatures discovers and extracts the images of inputDir without
// clustering them. outputDir is skipped like in Run and may be empty.
func (p *Pipeline) LoadFeatures(ctx context.Context, inputDir, outputDir string) ([]core.Image, []core.ItemError, error) {
	root, output, err := resolveDirs(inputDir, outputDir)
	if err != nil {
		return nil, nil, err
	}

	paths, err := p.discover(ctx, root, output)
	if err != nil {
		return nil, nil, err
	}

	var stats ProcessingStats
	return p.extractAll(ctx, paths, &stats)
}

func (p *Pipeline) discover(ctx context.Context, inputDir, outputDir string) ([]string, error) {
	var skip []string
	if !p.config.IncludeOutput {
		skip = []string{outputDir}
	}

	paths, err := p.scanner.Discover(ctx, inputDir, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to discover images: %w", err)
	}
	return paths, nil
}

// extractAll extracts every path with a bounded worker pool. Images come
// back in the order of paths; items that fail are dropped and reported.
func (p *Pipeline) extractAll(ctx context.Context, paths []string, stats *ProcessingStats) ([]core.Image, []core.ItemError, error) {
	results := make([]core.Image, len(paths))
	errs := make([]error, len(paths))
	var hits, misses atomic.Int64

	workers := p.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			img, err := p.extractOne(path)
			if err != nil {
				errs[i] = err
				return nil
			}
			if img.Cached {
				hits.Add(1)
			} else {
				misses.Add(1)
			}
			results[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	images := make([]core.Image, 0, len(paths))
	var failures []core.ItemError
	for i, path := range paths {
		if errs[i] != nil {
			logger.Warn("Skipping unreadable image", "path", path, "error", errs[i].Error())
			failures = append(failures, core.ItemError{Path: path, Stage: "extract", Err: errs[i].Error()})
			continue
		}
		images = append(images, results[i])
	}

	stats.Extracted = len(images)
	stats.Failed = len(failures)
	stats.CacheHits = int(hits.Load())
	stats.CacheMisses = int(misses.Load())

	return images, failures, nil
}

func (p *Pipeline) extractOne(path string) (core.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Image{}, fmt.Errorf("failed to read image: %w", err)
	}

	img := core.Image{Path: path, ContentHash: store.ContentHash(data)}
	dims := p.extractor.Dimensions()
	useCache := p.cache != nil && p.config.CacheEnabled

	if useCache {
		vec, ok, err := p.cache.GetFeatures(path, img.ContentHash)
		if err != nil {
			logger.Warn("Feature cache lookup failed", "path", path, "error", err.Error())
		} else if ok && len(vec) == dims {
			img.Features = vec
			img.Cached = true
			return img, nil
		}
	}

	vec, err := p.extractor.ExtractBytes(data)
	if err != nil {
		return core.Image{}, err
	}
	if len(vec) != dims {
		return core.Image{}, fmt.Errorf("%w: extractor returned %d values, want %d",
			clustering.ErrDimensionMismatch, len(vec), dims)
	}
	img.Features = vec

	if useCache {
		if err := p.cache.PutFeatures(path, img.ContentHash, vec); err != nil {
			logger.Warn("Failed to cache features", "path", path, "error", err.Error())
		}
	}

	return img, nil
}

func (p *Pipeline) save(ctx context.Context, run *core.RunResult, result *Result, stats *ProcessingStats) error {
	saved, err := p.organizer.Save(ctx, run.Groups, run.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to save groups: %w", err)
	}

	stats.Copied = saved.Copied
	run.Failures = append(run.Failures, saved.Failures...)
	fmt.Fprintf(p.out, "   ✓ Copied %d images into %d directories\n", saved.Copied, len(run.Groups))
	if len(saved.Failures) > 0 {
		fmt.Fprintf(p.out, "   ⚠️  %d images could not be copied\n", len(saved.Failures))
	}

	if p.config.WriteManifest {
		path, err := organize.WriteManifest(run.OutputDir, organize.BuildManifest(run, saved.Files))
		if err != nil {
			// Non-fatal: the copies are complete
			logger.Warn("Failed to write manifest", "error", err.Error())
			fmt.Fprintf(p.out, "   ⚠️  Manifest not written: %v\n", err)
		} else {
			result.ManifestPath = path
			fmt.Fprintf(p.out, "   • Manifest: %s\n", path)
		}
	}
	fmt.Fprintln(p.out)
	return nil
}

// resolveDirs makes the input directory absolute and derives the default
// output directory from it
func resolveDirs(inputDir, outputDir string) (string, string, error) {
	input, err := filepath.Abs(inputDir)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve input directory: %w", err)
	}

	if outputDir == "" {
		return input, filepath.Join(input, organize.DefaultOutputDirName), nil
	}
	output, err := filepath.Abs(outputDir)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve output directory: %w", err)
	}
	return input, output, nil
}
