/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"imgcluster/internal/config"
	"imgcluster/internal/logger"
	"imgcluster/internal/store"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "imgcluster",
		Short: "imgcluster groups similar images with DBSCAN.",
		Long: `imgcluster describes every image in a directory by its brightness,
contrast and noise, clusters those descriptions with DBSCAN, and copies
each cluster into its own directory (cluster_1, cluster_2, ..., noise).

Run 'imgcluster cluster <dir>' to get started, or 'imgcluster suggest-eps <dir>'
for a starting eps value.`,
		SilenceUsage: true,
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.imgcluster.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewClusterCmd())
	rootCmd.AddCommand(NewSuggestEpsCmd())
	rootCmd.AddCommand(NewRunsCmd())
	rootCmd.AddCommand(NewBrowseCmd())
	rootCmd.AddCommand(NewCacheCmd())

	return rootCmd
}

// Execute runs the root command, cancelling work on SIGINT or SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Load configuration using the centralized config module
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithOptions(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Debug("Configuration loaded", "config_file", cfgFile, "cache_dir", cfg.Cache.Directory)
}

// openStore opens the feature cache and run history database
func openStore() (*store.Store, error) {
	st, err := store.NewStore(config.GetCacheDirectory())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return st, nil
}

// closeStore closes st, logging any failure
func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		logger.Error("Failed to close store", err)
	}
}
