package handlers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imgcluster/internal/config"
)

func writeUniformPNG(t *testing.T, path string, level uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	img.SetGray(0, 0, color.Gray{Y: level})

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

// setupWorkspace creates an image directory and a config file pointing the cache at a temp dir
func setupWorkspace(t *testing.T) (imageDir, configFile string) {
	t.Helper()
	imageDir = t.TempDir()
	writeUniformPNG(t, filepath.Join(imageDir, "a.png"), 10)
	writeUniformPNG(t, filepath.Join(imageDir, "b.png"), 12)
	writeUniformPNG(t, filepath.Join(imageDir, "c.png"), 250)

	configFile = filepath.Join(t.TempDir(), ".imgcluster.yaml")
	content := fmt.Sprintf("cache:\n  directory: %s\nlogging:\n  level: error\n", filepath.Join(t.TempDir(), "cache"))
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return imageDir, configFile
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	config.Reset()
	t.Cleanup(config.Reset)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClusterCommand(t *testing.T) {
	dir, cfg := setupWorkspace(t)

	out, err := runCLI(t, "", "cluster", dir, "--eps", "5", "--min-samples", "2", "--config", cfg)
	if err != nil {
		t.Fatalf("cluster failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "Clustering complete") {
		t.Errorf("Expected summary in output:\n%s", out)
	}
	for _, rel := range []string{"cluster_1/a.png", "cluster_1/b.png", "noise/c.png", "manifest.json"} {
		if _, err := os.Stat(filepath.Join(dir, "clustered_images", filepath.FromSlash(rel))); err != nil {
			t.Errorf("Expected %s to exist: %v", rel, err)
		}
	}

	runsOut, err := runCLI(t, "", "runs", "--config", cfg)
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	if !strings.Contains(runsOut, "1 recent runs") {
		t.Errorf("Expected one recorded run:\n%s", runsOut)
	}

	statsOut, err := runCLI(t, "", "cache", "stats", "--config", cfg)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	if !strings.Contains(statsOut, "Feature vectors cached: 3") {
		t.Errorf("Expected 3 cached vectors:\n%s", statsOut)
	}
}

func TestClusterCommand_Interactive(t *testing.T) {
	dir, cfg := setupWorkspace(t)

	stdin := fmt.Sprintf("%q\n5\n2\n", dir)
	out, err := runCLI(t, stdin, "cluster", "--dry-run", "--config", cfg)
	if err != nil {
		t.Fatalf("cluster failed: %v\n%s", err, out)
	}

	if !strings.Contains(out, "eps=5 min_samples=2") {
		t.Errorf("Expected prompted parameters in summary:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "clustered_images")); !os.IsNotExist(err) {
		t.Error("Dry run should not create output")
	}
}

func TestClusterCommand_InvalidEps(t *testing.T) {
	dir, cfg := setupWorkspace(t)

	_, err := runCLI(t, "", "cluster", dir, "--eps", "-1", "--config", cfg)
	if err == nil || !strings.Contains(err.Error(), "invalid parameter") {
		t.Errorf("Expected invalid parameter error, got %v", err)
	}
}

func TestSuggestEpsCommand(t *testing.T) {
	dir, cfg := setupWorkspace(t)

	out, err := runCLI(t, "", "suggest-eps", dir, "--min-samples", "2", "--config", cfg)
	if err != nil {
		t.Fatalf("suggest-eps failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Suggested --eps") {
		t.Errorf("Expected a suggestion:\n%s", out)
	}
}

func TestCacheClear(t *testing.T) {
	dir, cfg := setupWorkspace(t)

	if _, err := runCLI(t, "", "cluster", dir, "--dry-run", "--config", cfg); err != nil {
		t.Fatalf("cluster failed: %v", err)
	}

	out, err := runCLI(t, "n\n", "cache", "clear", "--config", cfg)
	if err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
	if !strings.Contains(out, "cancelled") {
		t.Errorf("Expected clear to be cancelled:\n%s", out)
	}

	if _, err := runCLI(t, "", "cache", "clear", "--confirm", "--all", "--config", cfg); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}

	statsOut, _ := runCLI(t, "", "cache", "stats", "--config", cfg)
	if !strings.Contains(statsOut, "Feature vectors cached: 0") || !strings.Contains(statsOut, "Runs recorded: 0") {
		t.Errorf("Expected an empty cache:\n%s", statsOut)
	}
}

func TestLoadRun(t *testing.T) {
	dir, cfg := setupWorkspace(t)

	if _, err := runCLI(t, "", "cluster", dir, "--eps", "5", "--dry-run", "--config", cfg); err != nil {
		t.Fatalf("cluster failed: %v", err)
	}

	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer closeStore(st)

	run, err := loadRun(st, "")
	if err != nil {
		t.Fatalf("loadRun failed: %v", err)
	}
	if len(run.Groups) != 2 || run.Groups[0].Name != "cluster_1" || run.Groups[1].Name != "noise" {
		t.Errorf("Unexpected groups: %+v", run.Groups)
	}
}
