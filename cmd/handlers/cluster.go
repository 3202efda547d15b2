package handlers

import (
	"context"
	"fmt"
	"io"

	"imgcluster/internal/config"
	"imgcluster/internal/core"
	"imgcluster/internal/interactive"
	"imgcluster/internal/organize"
	"imgcluster/internal/pipeline"
	"imgcluster/internal/report"

	"github.com/spf13/cobra"
)

// clusterOptions are the resolved inputs of one cluster command
type clusterOptions struct {
	Directory string
	OutputDir string
	Params    core.RunParams
	Workers   int
	NoCache   bool
	DryRun    bool
}

// NewClusterCmd creates the cluster command
func NewClusterCmd() *cobra.Command {
	var (
		eps             float64
		minSamples      int
		metric          string
		outputDir       string
		workers         int
		noCache         bool
		dryRun          bool
		interactiveMode bool
	)

	clusterCmd := &cobra.Command{
		Use:   "cluster [directory]",
		Short: "Cluster the images of a directory by brightness, contrast and noise",
		Long: `Scan a directory recursively for images, describe each one by its
brightness, contrast and noise, and group them with DBSCAN.

Every cluster is copied to <output>/cluster_<n>; images that belong to no
cluster go to <output>/noise. The default output is <directory>/clustered_images.

Without a directory argument the command asks for the directory, eps and
min_samples interactively.`,
		Example: `  imgcluster cluster ./photos --eps 8 --min-samples 3
  imgcluster cluster ./photos --dry-run
  imgcluster cluster`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()

			opts := clusterOptions{
				Params: core.RunParams{
					Eps:        cfg.Clustering.Eps,
					MinSamples: cfg.Clustering.MinSamples,
					Metric:     cfg.Clustering.Metric,
				},
				Workers: cfg.Scan.Workers,
				NoCache: noCache || !cfg.Cache.Enabled,
				DryRun:  dryRun,
			}

			// Flags override config values
			flags := cmd.Flags()
			if flags.Changed("eps") {
				opts.Params.Eps = eps
			}
			if flags.Changed("min-samples") {
				opts.Params.MinSamples = minSamples
			}
			if flags.Changed("metric") {
				opts.Params.Metric = metric
			}
			if flags.Changed("workers") {
				opts.Workers = workers
			}

			if len(args) == 1 {
				opts.Directory = args[0]
			}

			if opts.Directory == "" || interactiveMode {
				if err := promptClusterOptions(cmd, &opts); err != nil {
					return err
				}
			}

			opts.OutputDir = cfg.OutputDirFor(opts.Directory)
			if flags.Changed("output") {
				opts.OutputDir = outputDir
			}

			return runCluster(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	clusterCmd.Flags().Float64Var(&eps, "eps", 10.0, "Neighborhood radius (inclusive)")
	clusterCmd.Flags().IntVar(&minSamples, "min-samples", 2, "Neighbors (including the image itself) needed for a core image")
	clusterCmd.Flags().StringVar(&metric, "metric", "euclidean", "Distance metric: euclidean, manhattan or chebyshev")
	clusterCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default <directory>/clustered_images)")
	clusterCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent feature extractions (default: number of CPUs)")
	clusterCmd.Flags().BoolVar(&noCache, "no-cache", false, "Recompute features instead of using the cache")
	clusterCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Cluster and report without copying files")
	clusterCmd.Flags().BoolVarP(&interactiveMode, "interactive", "i", false, "Prompt for eps and min_samples")

	return clusterCmd
}

// promptClusterOptions fills the directory and parameters from the terminal
func promptClusterOptions(cmd *cobra.Command, opts *clusterOptions) error {
	h := interactive.NewHandlerWithIO(cmd.InOrStdin(), cmd.OutOrStdout())

	if opts.Directory == "" {
		answers, err := h.Collect(opts.Params)
		if err != nil {
			return fmt.Errorf("interactive input failed: %w", err)
		}
		opts.Directory = answers.Directory
		opts.Params = answers.Params
		return nil
	}

	eps, err := h.Eps(opts.Params.Eps)
	if err != nil {
		return fmt.Errorf("interactive input failed: %w", err)
	}
	minSamples, err := h.MinSamples(opts.Params.MinSamples)
	if err != nil {
		return fmt.Errorf("interactive input failed: %w", err)
	}
	opts.Params.Eps = eps
	opts.Params.MinSamples = minSamples
	return nil
}

func runCluster(ctx context.Context, out io.Writer, cfg *config.Config, opts clusterOptions) error {
	p, st, err := newPipelineBuilder(cfg, out, opts.Workers, opts.NoCache).Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	if st != nil {
		defer closeStore(st)
	}

	result, err := p.Run(ctx, pipeline.Request{
		InputDir:  opts.Directory,
		OutputDir: opts.OutputDir,
		Params:    opts.Params,
		DryRun:    opts.DryRun,
	})
	if err != nil {
		return fmt.Errorf("clustering failed: %w", err)
	}

	report.RunSummary(out, result.Run)
	if st != nil {
		fmt.Fprintf(out, "\n💡 Browse the result with: imgcluster browse %s\n", shortRunID(result.Run.ID))
	}
	return nil
}

// newPipelineBuilder configures a pipeline builder from the loaded configuration
func newPipelineBuilder(cfg *config.Config, out io.Writer, workers int, noCache bool) *pipeline.Builder {
	if workers <= 0 {
		workers = cfg.Scan.Workers
	}

	builder := pipeline.NewBuilder().
		WithDataDir(cfg.Cache.Directory).
		WithConfig(&pipeline.Config{
			Workers:       workers,
			CacheEnabled:  true,
			WriteManifest: cfg.Output.Manifest,
			IncludeOutput: cfg.Scan.IncludeOutput,
		}).
		WithExtensions(cfg.Scan.Extensions).
		WithOrganizer(&organize.Organizer{
			ClusterPrefix: cfg.Output.ClusterPrefix,
			NoiseDir:      cfg.Output.NoiseDir,
		}).
		WithOutput(out)

	if noCache {
		builder = builder.WithoutCache()
	}
	return builder
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
