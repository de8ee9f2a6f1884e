package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the disk cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show disk cache entry count and size",
	RunE:  runCacheStats,
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evict least recently used entries until the cache fits its cap",
	RunE:  runCacheSweep,
}

func init() {
	cacheStatsCmd.Flags().Bool("json", false, "output as JSON instead of YAML")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Log, "")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	disk, err := openDisk(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	if disk == nil {
		return fmt.Errorf("disk cache is disabled (set cache.disk_cap_bytes)")
	}
	defer disk.Close()

	stats, err := disk.Stats(ctx)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(stats)
}

func runCacheSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Log, "")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	disk, err := openDisk(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	if disk == nil {
		return fmt.Errorf("disk cache is disabled (set cache.disk_cap_bytes)")
	}
	defer disk.Close()

	res, err := disk.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Sweep summary: %d removed, %d bytes freed, %d skipped (total: %d of %d bytes)\n",
		res.Removed, res.Freed, res.Skipped, res.Total, disk.CapBytes())
	return nil
}
