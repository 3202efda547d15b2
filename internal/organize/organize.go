package organize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imgcluster/internal/core"
	"imgcluster/internal/logger"
)

// Default directory naming
const (
	DefaultOutputDirName = "clustered_images" // Created inside the input directory
	DefaultClusterPrefix = "cluster_"
	DefaultNoiseDir      = "noise"
	ManifestFile         = "manifest.json"
)

// Organizer partitions images by label and copies them into labeled directories
type Organizer struct {
	ClusterPrefix string
	NoiseDir      string
}

// NewOrganizer creates an organizer with the default directory names
func NewOrganizer() *Organizer {
	return &Organizer{
		ClusterPrefix: DefaultClusterPrefix,
		NoiseDir:      DefaultNoiseDir,
	}
}

// DirName returns the output directory name for a label
func (o *Organizer) DirName(label int) string {
	if label < 0 {
		if o.NoiseDir == "" {
			return DefaultNoiseDir
		}
		return o.NoiseDir
	}
	prefix := o.ClusterPrefix
	if prefix == "" {
		prefix = DefaultClusterPrefix
	}
	return fmt.Sprintf("%s%d", prefix, label)
}

// Group partitions ids by their label. Clusters come first in ascending id
// order and the noise group last; members keep the order of ids.
func (o *Organizer) Group(ids []string, labels []int) ([]core.Group, error) {
	if len(ids) != len(labels) {
		return nil, fmt.Errorf("got %d ids but %d labels", len(ids), len(labels))
	}

	members := make(map[int][]string)
	for i, label := range labels {
		if label == 0 {
			return nil, fmt.Errorf("id %s has no label", ids[i])
		}
		if label < 0 {
			label = -1
		}
		members[label] = append(members[label], ids[i])
	}

	order := make([]int, 0, len(members))
	for label := range members {
		order = append(order, label)
	}
	sort.Slice(order, func(i, j int) bool {
		// noise sorts after every cluster
		if (order[i] < 0) != (order[j] < 0) {
			return order[j] < 0
		}
		return order[i] < order[j]
	})

	groups := make([]core.Group, 0, len(order))
	for _, label := range order {
		groups = append(groups, core.Group{
			Label:   label,
			Name:    o.DirName(label),
			Members: members[label],
		})
	}
	return groups, nil
}

// SaveResult reports what Save wrote
type SaveResult struct {
	Copied   int
	Files    map[string]string // source path -> destination path
	Failures []core.ItemError
}

// Save copies every group's members into outDir/<group name>/. Failures on
// individual files are collected and do not stop the copy.
func (o *Organizer) Save(ctx context.Context, groups []core.Group, outDir string) (*SaveResult, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &SaveResult{Files: make(map[string]string)}
	for _, group := range groups {
		dir := filepath.Join(outDir, group.Name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			for _, src := range group.Members {
				result.Failures = append(result.Failures, saveFailure(src, err))
			}
			continue
		}

		used := make(map[string]bool)
		for _, src := range group.Members {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			dst := filepath.Join(dir, uniqueName(filepath.Base(src), used))
			if err := copyFile(src, dst); err != nil {
				logger.Warn("Failed to copy image", "path", src, "dest", dst, "error", err.Error())
				result.Failures = append(result.Failures, saveFailure(src, err))
				continue
			}
			result.Files[src] = dst
			result.Copied++
		}
	}

	return result, nil
}

// uniqueName returns name, or name with a _<n> suffix when already used in the directory
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; used[strings.ToLower(candidate)]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func saveFailure(path string, err error) core.ItemError {
	return core.ItemError{Path: path, Stage: "save", Err: err.Error()}
}

// Manifest is the JSON summary written next to the organized groups
type Manifest struct {
	RunID      string           `json:"run_id"`
	InputDir   string           `json:"input_dir"`
	Params     core.RunParams   `json:"params"`
	Groups     []ManifestGroup  `json:"groups"`
	Silhouette float64          `json:"silhouette"`
	Failures   []core.ItemError `json:"failures,omitempty"`
}

// ManifestGroup lists one output directory and its images
type ManifestGroup struct {
	Label      int             `json:"label"`
	Name       string          `json:"name"`
	Silhouette *float64        `json:"silhouette,omitempty"` // Absent for noise and single-cluster runs
	Members    []ManifestEntry `json:"members"`
}

// ManifestEntry is one image in the manifest
type ManifestEntry struct {
	Source     string      `json:"source"`
	Dest       string      `json:"dest,omitempty"`
	Features   core.Vector `json:"features"`
	Silhouette float64     `json:"silhouette,omitempty"`
}

// BuildManifest assembles the manifest for a run. dests maps source paths to
// their copies and may be nil for dry runs.
func BuildManifest(run *core.RunResult, dests map[string]string) Manifest {
	images := make(map[string]core.Image, len(run.Images))
	for _, img := range run.Images {
		images[img.Path] = img
	}

	manifest := Manifest{
		RunID:      run.ID,
		InputDir:   run.InputDir,
		Params:     run.Params,
		Silhouette: run.Silhouette,
		Failures:   run.Failures,
	}
	for _, group := range run.Groups {
		mg := ManifestGroup{Label: group.Label, Name: group.Name}
		if score, ok := run.ClusterSilhouettes[group.Label]; ok {
			mg.Silhouette = &score
		}
		for _, src := range group.Members {
			mg.Members = append(mg.Members, ManifestEntry{
				Source:     src,
				Dest:       dests[src],
				Features:   images[src].Features,
				Silhouette: images[src].Silhouette,
			})
		}
		manifest.Groups = append(manifest.Groups, mg)
	}
	return manifest
}

// WriteManifest writes manifest as indented JSON to outDir/manifest.json
func WriteManifest(outDir string, manifest Manifest) (string, error) {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}

	path := filepath.Join(outDir, ManifestFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
