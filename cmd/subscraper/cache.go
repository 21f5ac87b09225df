package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subscraper/pkg/cache"
	"subscraper/pkg/config"
	"subscraper/pkg/logger"
	"subscraper/pkg/ui"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the response caches",
	Long: `Inspect or clear the request cache and the live lookup cache.

Both share one store, selected by cache.backend (sqlite, redis or memory).`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached entries",
	RunE:  runCacheStats,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every cached entry",
	RunE:  runCachePurge,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	store, err := cache.Open(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer store.Close()

	n, err := store.Len(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}

	ui.PrintInfo("Backend", cfg.Cache.Backend)
	if cfg.Cache.Backend == config.BackendSQLite {
		ui.PrintInfo("Path", cfg.Cache.Path+".sqlite")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
	return nil
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	store, err := cache.Open(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer store.Close()

	if err := store.Purge(cmd.Context()); err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}

	logger.WithField("backend", cfg.Cache.Backend).Info("Cache purged")
	ui.PrintSuccess("Cache purged")
	return nil
}
