package handlers

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache management command
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the feature cache and run history",
		Long:  `Inspect and clean the SQLite database holding extracted features and past runs.`,
	}

	// Add subcommands
	cacheCmd.AddCommand(newCacheStatsCmd())
	cacheCmd.AddCommand(newCacheClearCmd())

	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics and storage information",
		Long:  `Display the number of cached feature vectors, recorded runs and the database size.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(cmd.OutOrStdout())
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the feature cache",
		Long:  `Remove all cached feature vectors. With --all the run history is removed too.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			all, _ := cmd.Flags().GetBool("all")
			return runCacheClear(cmd.InOrStdin(), cmd.OutOrStdout(), confirm, all)
		},
	}

	clearCmd.Flags().Bool("confirm", false, "Skip confirmation prompt")
	clearCmd.Flags().Bool("all", false, "Also remove the run history")
	return clearCmd
}

func runCacheStats(out io.Writer) error {
	fmt.Fprintln(out, "📊 Cache Statistics")
	fmt.Fprintln(out, "==================")

	cacheStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(cacheStore)

	stats, err := cacheStore.GetCacheStats()
	if err != nil {
		return fmt.Errorf("failed to get cache statistics: %w", err)
	}

	fmt.Fprintf(out, "🖼️  Feature vectors cached: %d\n", stats.FeatureCount)
	fmt.Fprintf(out, "📚 Runs recorded: %d\n", stats.RunCount)
	fmt.Fprintf(out, "🏷️  Assignments stored: %d\n", stats.AssignmentCount)
	fmt.Fprintf(out, "💾 Cache size: %.2f MB\n", float64(stats.CacheSize)/1024/1024)
	fmt.Fprintf(out, "📅 Last updated: %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "📁 Location: %s\n", cacheStore.Path())

	return nil
}

func runCacheClear(in io.Reader, out io.Writer, confirm, all bool) error {
	if !confirm {
		what := "all cached feature vectors"
		if all {
			what += " and the run history"
		}
		fmt.Fprintf(out, "⚠️  This will remove %s. Continue? [y/N]: ", what)

		response := ""
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			response = strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cache clear cancelled")
			return nil
		}
	}

	fmt.Fprintln(out, "🗑️  Clearing cache...")

	cacheStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(cacheStore)

	if err := cacheStore.ClearCache(all); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Fprintln(out, "✅ Cache cleared successfully")
	return nil
}
