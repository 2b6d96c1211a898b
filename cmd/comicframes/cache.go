package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/omarluq/comicframes/cmd/comicframes/di"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-tier cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached entries from every tier",
	RunE:  runCacheClear,
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired entries from every tier",
	RunE:  runCacheCleanup,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	container, err := di.NewContainer(configPath())
	if err != nil {
		return err
	}
	defer shutdownContainer(container)

	cacheSvc, err := di.Invoke[*di.CacheService](container)
	if err != nil {
		return err
	}

	stats := cacheSvc.Manager.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := stats[name]
		fmt.Printf("%s:\n", name)
		fmt.Printf("  entries: %d active, %d expired, %d total\n",
			s.ActiveEntries, s.ExpiredEntries, s.TotalEntries)
		if s.MaxEntries > 0 {
			fmt.Printf("  capacity: %d entries (%.1f%% used)\n", s.MaxEntries, s.UsagePercent)
		} else {
			fmt.Printf("  size: %.1f MB of %d MB (%.1f%% used)\n",
				s.SizeMB, s.MaxSizeMB, s.UsagePercent)
		}
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	container, err := di.NewContainer(configPath())
	if err != nil {
		return err
	}
	defer shutdownContainer(container)

	cacheSvc, err := di.Invoke[*di.CacheService](container)
	if err != nil {
		return err
	}

	cacheSvc.Manager.ClearAll(cmd.Context())
	fmt.Println("Cache cleared")
	return nil
}

func runCacheCleanup(cmd *cobra.Command, _ []string) error {
	container, err := di.NewContainer(configPath())
	if err != nil {
		return err
	}
	defer shutdownContainer(container)

	cacheSvc, err := di.Invoke[*di.CacheService](container)
	if err != nil {
		return err
	}

	removed := cacheSvc.Manager.CleanupExpired(cmd.Context())
	fmt.Printf("Removed %d expired entries\n", removed)
	return nil
}
