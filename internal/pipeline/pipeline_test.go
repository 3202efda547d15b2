package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"imgcluster/internal/clustering"
	"imgcluster/internal/config"
	"imgcluster/internal/core"
	"imgcluster/internal/organize"
	"imgcluster/internal/scan"
	"imgcluster/internal/store"
)

// writeUniformPNG writes a 4x4 image filled with one gray level
func writeUniformPNG(t *testing.T, path string, level uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetGray(x, y, color.Gray{Y: level})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

// fixtureDir builds two tight groups of images, one outlier and one corrupt file
func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeUniformPNG(t, filepath.Join(dir, "dark_1.png"), 10)
	writeUniformPNG(t, filepath.Join(dir, "dark_2.png"), 12)
	writeUniformPNG(t, filepath.Join(dir, "dark_3.png"), 14)
	writeUniformPNG(t, filepath.Join(dir, "light", "light_1.png"), 200)
	writeUniformPNG(t, filepath.Join(dir, "light", "light_2.png"), 202)
	writeUniformPNG(t, filepath.Join(dir, "light", "light_3.png"), 204)
	writeUniformPNG(t, filepath.Join(dir, "outlier.png"), 100)
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}
	return dir
}

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	p, st, err := NewBuilder().
		WithDataDir(t.TempDir()).
		WithOutput(io.Discard).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if st == nil {
		t.Fatal("Expected store to be opened")
	}
	t.Cleanup(func() { _ = st.Close() })
	return p, st
}

func defaultParams() core.RunParams {
	return core.RunParams{Eps: 5, MinSamples: 2, Metric: clustering.MetricEuclidean}
}

func TestRun_ClustersAndOrganizes(t *testing.T) {
	dir := fixtureDir(t)
	p, _ := newTestPipeline(t)

	result, err := p.Run(context.Background(), Request{InputDir: dir, Params: defaultParams()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	run := result.Run

	// Dataset order follows the sorted discovery order, without the corrupt file
	wantLabels := []int{1, 1, 1, 2, 2, 2, -1}
	if !reflect.DeepEqual(run.Labels, wantLabels) {
		t.Errorf("Expected labels %v, got %v", wantLabels, run.Labels)
	}
	if run.Clusters != 2 || run.Noise != 1 {
		t.Errorf("Expected 2 clusters and 1 noise image, got %d and %d", run.Clusters, run.Noise)
	}
	if run.Silhouette <= 0.9 {
		t.Errorf("Expected well separated clusters, got silhouette %f", run.Silhouette)
	}
	for _, id := range []int{1, 2} {
		if score, ok := run.ClusterSilhouettes[id]; !ok || score <= 0.9 {
			t.Errorf("Expected cluster %d silhouette above 0.9, got %v (present %v)", id, score, ok)
		}
	}
	if run.Images[0].Silhouette <= 0.9 {
		t.Errorf("Expected dark_1 silhouette above 0.9, got %f", run.Images[0].Silhouette)
	}
	if noise := run.Images[6]; noise.Silhouette != 0 {
		t.Errorf("Expected noise image silhouette 0, got %f", noise.Silhouette)
	}

	if len(run.Failures) != 1 || filepath.Base(run.Failures[0].Path) != "broken.png" || run.Failures[0].Stage != "extract" {
		t.Errorf("Expected one extract failure for broken.png, got %+v", run.Failures)
	}
	if result.Stats.Discovered != 8 || result.Stats.Extracted != 7 || result.Stats.Failed != 1 {
		t.Errorf("Unexpected stats: %+v", result.Stats)
	}

	outDir := filepath.Join(dir, organize.DefaultOutputDirName)
	if run.OutputDir != outDir {
		t.Errorf("Expected output dir %s, got %s", outDir, run.OutputDir)
	}
	for _, rel := range []string{
		filepath.Join("cluster_1", "dark_1.png"),
		filepath.Join("cluster_1", "dark_3.png"),
		filepath.Join("cluster_2", "light_2.png"),
		filepath.Join("noise", "outlier.png"),
		organize.ManifestFile,
	} {
		if _, err := os.Stat(filepath.Join(outDir, rel)); err != nil {
			t.Errorf("Expected %s to exist: %v", rel, err)
		}
	}
	if result.ManifestPath != filepath.Join(outDir, organize.ManifestFile) {
		t.Errorf("Unexpected manifest path %s", result.ManifestPath)
	}

	// Copies are byte-identical
	src, _ := os.ReadFile(filepath.Join(dir, "outlier.png"))
	dst, _ := os.ReadFile(filepath.Join(outDir, "noise", "outlier.png"))
	if string(src) != string(dst) {
		t.Error("Expected copied file to match its source")
	}
}

func TestRun_CacheHitsOnSecondRun(t *testing.T) {
	dir := fixtureDir(t)
	p, _ := newTestPipeline(t)

	first, err := p.Run(context.Background(), Request{InputDir: dir, Params: defaultParams()})
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if first.Stats.CacheHits != 0 || first.Stats.CacheMisses != 7 {
		t.Errorf("Expected a cold cache on the first run, got %+v", first.Stats)
	}

	second, err := p.Run(context.Background(), Request{InputDir: dir, Params: defaultParams()})
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	// The output directory written by the first run is not scanned again
	if second.Stats.Discovered != 8 {
		t.Errorf("Expected 8 discovered images, got %d", second.Stats.Discovered)
	}
	if second.Stats.CacheHits != 7 {
		t.Errorf("Expected 7 cache hits, got %d", second.Stats.CacheHits)
	}
	if !reflect.DeepEqual(first.Run.Labels, second.Run.Labels) {
		t.Errorf("Expected identical labels, got %v and %v", first.Run.Labels, second.Run.Labels)
	}
}

func TestRun_WithoutCache(t *testing.T) {
	dir := fixtureDir(t)
	p, _, err := NewBuilder().
		WithDataDir(t.TempDir()).
		WithOutput(io.Discard).
		WithoutStore().
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	result, err := p.Run(context.Background(), Request{InputDir: dir, Params: defaultParams(), DryRun: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Stats.CacheHits != 0 {
		t.Errorf("Expected no cache hits without a store, got %d", result.Stats.CacheHits)
	}
}

func TestRun_DryRun(t *testing.T) {
	dir := fixtureDir(t)
	p, _ := newTestPipeline(t)

	result, err := p.Run(context.Background(), Request{InputDir: dir, Params: defaultParams(), DryRun: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Run.DryRun || result.Run.Clusters != 2 {
		t.Errorf("Unexpected dry run result: %+v", result.Run)
	}
	if _, err := os.Stat(filepath.Join(dir, organize.DefaultOutputDirName)); !os.IsNotExist(err) {
		t.Error("Dry run should not create the output directory")
	}
}

func TestRun_CustomOutputDir(t *testing.T) {
	dir := fixtureDir(t)
	outDir := filepath.Join(t.TempDir(), "sorted")
	p, _ := newTestPipeline(t)

	result, err := p.Run(context.Background(), Request{InputDir: dir, OutputDir: outDir, Params: defaultParams()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Stats.Copied != 7 {
		t.Errorf("Expected 7 copies, got %d", result.Stats.Copied)
	}
	if _, err := os.Stat(filepath.Join(outDir, "cluster_2", "light_1.png")); err != nil {
		t.Errorf("Expected copy in custom output directory: %v", err)
	}
}

func TestRun_DefaultOutputMatchesConfig(t *testing.T) {
	dir := fixtureDir(t)
	p, _ := newTestPipeline(t)

	result, err := p.Run(context.Background(), Request{InputDir: dir, Params: defaultParams(), DryRun: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	cfg := &config.Config{}
	if want := cfg.OutputDirFor(dir); result.Run.OutputDir != want {
		t.Errorf("Expected output dir %s, got %s", want, result.Run.OutputDir)
	}
}

func TestRun_RecordsHistory(t *testing.T) {
	dir := fixtureDir(t)
	p, st := newTestPipeline(t)

	result, err := p.Run(context.Background(), Request{InputDir: dir, Params: defaultParams()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stored, err := st.GetRun(result.Run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !reflect.DeepEqual(stored.Labels, result.Run.Labels) {
		t.Errorf("Expected stored labels %v, got %v", result.Run.Labels, stored.Labels)
	}
	if stored.Params != result.Run.Params {
		t.Errorf("Expected stored params %+v, got %+v", result.Run.Params, stored.Params)
	}
}

func TestRun_InvalidParameters(t *testing.T) {
	dir := fixtureDir(t)
	p, _ := newTestPipeline(t)

	testCases := []struct {
		name   string
		params core.RunParams
	}{
		{"Negative eps", core.RunParams{Eps: -1, MinSamples: 2}},
		{"Zero minSamples", core.RunParams{Eps: 1, MinSamples: 0}},
		{"Unknown metric", core.RunParams{Eps: 1, MinSamples: 2, Metric: "cosine"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Run(context.Background(), Request{InputDir: dir, Params: tc.params})
			if !errors.Is(err, clustering.ErrInvalidParameter) {
				t.Errorf("Expected ErrInvalidParameter, got %v", err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, organize.DefaultOutputDirName)); !os.IsNotExist(err) {
		t.Error("Invalid parameters should not produce output")
	}
}

func TestRun_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	p, _ := newTestPipeline(t)

	result, err := p.Run(context.Background(), Request{InputDir: dir, Params: defaultParams()})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Run.Labels == nil || len(result.Run.Labels) != 0 {
		t.Errorf("Expected empty non-nil labels, got %#v", result.Run.Labels)
	}
	if len(result.Run.Groups) != 0 {
		t.Errorf("Expected no groups, got %+v", result.Run.Groups)
	}
	if _, err := os.Stat(filepath.Join(dir, organize.DefaultOutputDirName)); !os.IsNotExist(err) {
		t.Error("Empty run should not create the output directory")
	}
}

func TestRun_NotDirectory(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Run(context.Background(), Request{
		InputDir: filepath.Join(t.TempDir(), "missing"),
		Params:   defaultParams(),
	})
	if !errors.Is(err, scan.ErrNotDirectory) {
		t.Errorf("Expected ErrNotDirectory, got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := fixtureDir(t)
	p, _ := newTestPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, Request{InputDir: dir, Params: defaultParams()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestLoadFeatures(t *testing.T) {
	dir := fixtureDir(t)
	p, _ := newTestPipeline(t)

	images, failures, err := p.LoadFeatures(context.Background(), dir, "")
	if err != nil {
		t.Fatalf("LoadFeatures failed: %v", err)
	}

	if len(images) != 7 || len(failures) != 1 {
		t.Fatalf("Expected 7 images and 1 failure, got %d and %d", len(images), len(failures))
	}
	if filepath.Base(images[0].Path) != "dark_1.png" {
		t.Errorf("Expected dark_1.png first, got %s", images[0].Path)
	}
	if !reflect.DeepEqual(images[0].Features, core.Vector{10, 0, 0}) {
		t.Errorf("Expected [10 0 0], got %v", images[0].Features)
	}
}

// shortExtractor claims three dimensions but returns two
type shortExtractor struct{}

func (shortExtractor) ExtractBytes([]byte) (core.Vector, error) { return core.Vector{1, 2}, nil }
func (shortExtractor) Dimensions() int                          { return 3 }

func TestExtractAll_DimensionMismatchIsolated(t *testing.T) {
	dir := fixtureDir(t)
	p := NewPipeline(NewScannerAdapter(nil), shortExtractor{}, organize.NewOrganizer(), nil, nil, nil, nil)

	paths := []string{filepath.Join(dir, "dark_1.png"), filepath.Join(dir, "dark_2.png")}
	var stats ProcessingStats
	images, failures, err := p.extractAll(context.Background(), paths, &stats)
	if err != nil {
		t.Fatalf("extractAll failed: %v", err)
	}

	if len(images) != 0 || len(failures) != 2 {
		t.Errorf("Expected every item to fail, got %d images and %d failures", len(images), len(failures))
	}
	if stats.Failed != 2 {
		t.Errorf("Expected 2 failures in stats, got %d", stats.Failed)
	}
}
