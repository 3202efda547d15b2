package handlers

import (
	"fmt"

	"imgcluster/internal/config"
	"imgcluster/internal/core"
	"imgcluster/internal/organize"
	"imgcluster/internal/store"
	"imgcluster/internal/tui"

	"github.com/spf13/cobra"
)

// NewBrowseCmd creates the browse command
func NewBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse [run-id]",
		Short: "Browse the groups of a clustering run in the terminal",
		Long: `Open a terminal browser over a recorded run: groups on the left, their
images and features on the right. Without a run id the most recent run is
shown; a unique prefix of the id is enough.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			run, err := loadRun(st, id)
			if err != nil {
				return err
			}

			return tui.StartTUI(run)
		},
	}
}

// loadRun reads a stored run and rebuilds its groups with the configured directory names
func loadRun(st *store.Store, id string) (*core.RunResult, error) {
	run, err := st.GetRun(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	out := config.GetOutput()
	organizer := &organize.Organizer{ClusterPrefix: out.ClusterPrefix, NoiseDir: out.NoiseDir}

	paths := make([]string, len(run.Images))
	for i, img := range run.Images {
		paths[i] = img.Path
	}
	if run.Groups, err = organizer.Group(paths, run.Labels); err != nil {
		return nil, fmt.Errorf("failed to group run %s: %w", run.ID, err)
	}
	return run, nil
}
