package handlers

import (
	"fmt"

	"imgcluster/internal/clustering"
	"imgcluster/internal/config"
	"imgcluster/internal/report"

	"github.com/spf13/cobra"
)

// NewSuggestEpsCmd creates the suggest-eps command
func NewSuggestEpsCmd() *cobra.Command {
	var (
		minSamples int
		metric     string
	)

	suggestCmd := &cobra.Command{
		Use:   "suggest-eps <directory>",
		Short: "Suggest an eps value from the k-distance curve of a directory",
		Long: `Extract the features of every image, compute the distance of each image
to its min_samples-th nearest neighbor (itself included), and suggest the
value at the elbow of the sorted curve as a starting eps.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			out := cmd.OutOrStdout()

			if !cmd.Flags().Changed("min-samples") {
				minSamples = cfg.Clustering.MinSamples
			}
			if !cmd.Flags().Changed("metric") {
				metric = cfg.Clustering.Metric
			}

			dist, err := clustering.MetricByName(metric)
			if err != nil {
				return err
			}
			if minSamples < 1 {
				return fmt.Errorf("%w: min-samples must be >= 1, got %d", clustering.ErrInvalidParameter, minSamples)
			}

			p, st, err := newPipelineBuilder(cfg, out, 0, !cfg.Cache.Enabled).Build()
			if err != nil {
				return fmt.Errorf("failed to build pipeline: %w", err)
			}
			if st != nil {
				defer closeStore(st)
			}

			fmt.Fprintf(out, "🧮 Extracting features from %s...\n", args[0])
			images, failures, err := p.LoadFeatures(cmd.Context(), args[0], cfg.OutputDirFor(args[0]))
			if err != nil {
				return fmt.Errorf("failed to load features: %w", err)
			}
			fmt.Fprintf(out, "   ✓ %d images, %d skipped\n\n", len(images), len(failures))

			points := make([][]float64, len(images))
			for i, img := range images {
				points[i] = img.Features
			}

			kdist, err := clustering.KDistances(points, minSamples, dist)
			if err != nil {
				return err
			}
			eps, err := clustering.SuggestEps(points, minSamples, dist)
			if err != nil {
				return err
			}

			report.EpsSuggestion(out, eps, kdist, minSamples)
			return nil
		},
	}

	suggestCmd.Flags().IntVar(&minSamples, "min-samples", 2, "min_samples the eps is meant for")
	suggestCmd.Flags().StringVar(&metric, "metric", "euclidean", "Distance metric: euclidean, manhattan or chebyshev")

	return suggestCmd
}
