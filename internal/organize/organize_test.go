package organize

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"imgcluster/internal/core"
)

func TestDirName(t *testing.T) {
	o := NewOrganizer()

	if name := o.DirName(-1); name != "noise" {
		t.Errorf("Expected noise, got %s", name)
	}
	if name := o.DirName(3); name != "cluster_3" {
		t.Errorf("Expected cluster_3, got %s", name)
	}

	custom := &Organizer{ClusterPrefix: "group-", NoiseDir: "outliers"}
	if name := custom.DirName(2); name != "group-2" {
		t.Errorf("Expected group-2, got %s", name)
	}
	if name := custom.DirName(-1); name != "outliers" {
		t.Errorf("Expected outliers, got %s", name)
	}
}

func TestGroup(t *testing.T) {
	o := NewOrganizer()
	ids := []string{"a", "b", "c", "d", "e", "f"}
	labels := []int{2, -1, 1, 2, -1, 1}

	groups, err := o.Group(ids, labels)
	if err != nil {
		t.Fatalf("Group failed: %v", err)
	}

	expected := []core.Group{
		{Label: 1, Name: "cluster_1", Members: []string{"c", "f"}},
		{Label: 2, Name: "cluster_2", Members: []string{"a", "d"}},
		{Label: -1, Name: "noise", Members: []string{"b", "e"}},
	}
	if !reflect.DeepEqual(groups, expected) {
		t.Errorf("Expected %+v, got %+v", expected, groups)
	}
}

func TestGroup_Errors(t *testing.T) {
	o := NewOrganizer()

	if _, err := o.Group([]string{"a"}, []int{1, 2}); err == nil {
		t.Error("Expected error for length mismatch")
	}
	if _, err := o.Group([]string{"a"}, []int{0}); err == nil {
		t.Error("Expected error for unresolved label")
	}

	groups, err := o.Group(nil, nil)
	if err != nil || len(groups) != 0 {
		t.Errorf("Expected no groups for empty input, got %v (%v)", groups, err)
	}
}

func TestSave(t *testing.T) {
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	write := func(rel, content string) string {
		path := filepath.Join(srcDir, rel)
		_ = os.MkdirAll(filepath.Dir(path), 0755)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", rel, err)
		}
		return path
	}

	a := write("a.png", "A")
	dupA := write(filepath.Join("sub", "a.png"), "A2")
	b := write("b.png", "B")
	missing := filepath.Join(srcDir, "missing.png")

	groups := []core.Group{
		{Label: 1, Name: "cluster_1", Members: []string{a, dupA}},
		{Label: -1, Name: "noise", Members: []string{b, missing}},
	}

	result, err := NewOrganizer().Save(context.Background(), groups, outDir)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if result.Copied != 3 {
		t.Errorf("Expected 3 copied files, got %d", result.Copied)
	}
	if len(result.Failures) != 1 || result.Failures[0].Path != missing || result.Failures[0].Stage != "save" {
		t.Errorf("Expected one save failure for the missing file, got %+v", result.Failures)
	}

	checks := map[string]string{
		filepath.Join(outDir, "cluster_1", "a.png"):   "A",
		filepath.Join(outDir, "cluster_1", "a_1.png"): "A2",
		filepath.Join(outDir, "noise", "b.png"):       "B",
	}
	for path, content := range checks {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("Expected %s to exist: %v", path, err)
			continue
		}
		if string(data) != content {
			t.Errorf("Expected %s to contain %q, got %q", path, content, data)
		}
	}

	if result.Files[dupA] != filepath.Join(outDir, "cluster_1", "a_1.png") {
		t.Errorf("Expected renamed destination for duplicate basename, got %s", result.Files[dupA])
	}
}

func TestSave_Cancelled(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "a.png")
	_ = os.WriteFile(src, []byte("A"), 0644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	groups := []core.Group{{Label: 1, Name: "cluster_1", Members: []string{src}}}
	if _, err := NewOrganizer().Save(ctx, groups, t.TempDir()); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestWriteManifest(t *testing.T) {
	outDir := t.TempDir()
	run := &core.RunResult{
		ID:       "run-1",
		InputDir: "/images",
		Params:   core.RunParams{Eps: 2.5, MinSamples: 3, Metric: "euclidean"},
		Images: []core.Image{
			{Path: "/images/a.png", Features: core.Vector{1, 2, 3}},
			{Path: "/images/b.png", Features: core.Vector{4, 5, 6}},
		},
		Groups: []core.Group{
			{Label: 1, Name: "cluster_1", Members: []string{"/images/a.png"}},
			{Label: -1, Name: "noise", Members: []string{"/images/b.png"}},
		},
	}

	manifest := BuildManifest(run, map[string]string{"/images/a.png": "/out/cluster_1/a.png"})
	path, err := WriteManifest(outDir, manifest)
	if err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read manifest: %v", err)
	}

	var decoded Manifest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode manifest: %v", err)
	}

	if decoded.RunID != "run-1" || decoded.Params.MinSamples != 3 {
		t.Errorf("Unexpected manifest header: %+v", decoded)
	}
	if len(decoded.Groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(decoded.Groups))
	}
	first := decoded.Groups[0].Members[0]
	if first.Dest != "/out/cluster_1/a.png" || !reflect.DeepEqual(first.Features, core.Vector{1, 2, 3}) {
		t.Errorf("Unexpected first entry: %+v", first)
	}
	if decoded.Groups[1].Members[0].Dest != "" {
		t.Errorf("Expected no destination for uncopied entry, got %s", decoded.Groups[1].Members[0].Dest)
	}
}

func TestBuildManifest_Silhouettes(t *testing.T) {
	run := &core.RunResult{
		ID: "run-2",
		Images: []core.Image{
			{Path: "/images/a.png", Features: core.Vector{1, 0, 0}, Silhouette: 0.75},
			{Path: "/images/b.png", Features: core.Vector{9, 0, 0}, Silhouette: 0.5},
			{Path: "/images/c.png", Features: core.Vector{50, 0, 0}},
		},
		Groups: []core.Group{
			{Label: 1, Name: "cluster_1", Members: []string{"/images/a.png"}},
			{Label: 2, Name: "cluster_2", Members: []string{"/images/b.png"}},
			{Label: -1, Name: "noise", Members: []string{"/images/c.png"}},
		},
		Silhouette:         0.625,
		ClusterSilhouettes: map[int]float64{1: 0.75, 2: 0.5},
	}

	manifest := BuildManifest(run, nil)

	if manifest.Silhouette != 0.625 {
		t.Errorf("Expected overall silhouette 0.625, got %v", manifest.Silhouette)
	}
	if got := manifest.Groups[0].Silhouette; got == nil || *got != 0.75 {
		t.Errorf("Expected cluster_1 silhouette 0.75, got %v", got)
	}
	if got := manifest.Groups[1].Silhouette; got == nil || *got != 0.5 {
		t.Errorf("Expected cluster_2 silhouette 0.5, got %v", got)
	}
	if manifest.Groups[2].Silhouette != nil {
		t.Errorf("Expected no silhouette for noise, got %v", *manifest.Groups[2].Silhouette)
	}
	if manifest.Groups[0].Members[0].Silhouette != 0.75 {
		t.Errorf("Expected member silhouette 0.75, got %v", manifest.Groups[0].Members[0].Silhouette)
	}
}
