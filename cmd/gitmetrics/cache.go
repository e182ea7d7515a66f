package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/gitmetrics/gitmetrics/internal/cache"
	"github.com/gitmetrics/gitmetrics/internal/output"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the collaborator response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count, size and age",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCache opens the configured cache directory whether or not caching is
// enabled for runs.
func openCache() (*cache.Cache, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	c, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, true)
	if err != nil {
		return nil, "", err
	}
	return c, cfg.Cache.Dir, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c, dir, err := openCache()
	if err != nil {
		return err
	}
	stats, err := c.GetStats()
	if err != nil {
		return err
	}

	table := &output.Table{
		Title:   "Cache " + dir,
		Headers: []string{"Entries", "Size", "Oldest"},
		Rows: [][]string{{
			strconv.Itoa(stats.Entries),
			fmt.Sprintf("%.1f KiB", float64(stats.TotalSize)/1024),
			stats.OldestAge.Round(time.Second).String(),
		}},
		Data: stats,
	}
	return output.NewWriterFormatter(output.FormatText, cmd.OutOrStdout(), true).Output(table)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, dir, err := openCache()
	if err != nil {
		return err
	}
	if err := c.Clear(); err != nil {
		return err
	}
	color.Green("Cleared %s", dir)
	return nil
}
