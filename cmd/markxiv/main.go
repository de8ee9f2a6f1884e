// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the markxiv CLI: an HTTP service,
// batch converter and MCP server that turn arXiv papers into Markdown.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/markxiv/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the markxiv CLI.
var rootCmd = &cobra.Command{
	Use:   "markxiv",
	Short: "Serve arXiv papers as Markdown",
	Long: `markxiv converts arXiv papers to Markdown. It fetches the LaTeX source,
converts the main file with pandoc, falls back to PDF text extraction when
that fails, and caches the result in memory and on disk.

Run "markxiv serve" for the HTTP service, "markxiv convert" for one-off
conversions, and "markxiv mcp" to expose the same tools to an MCP client.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./markxiv.yaml or ~/.config/markxiv/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("cache-dir", "", "disk cache directory")
	rootCmd.PersistentFlags().Int64("disk-cap-bytes", 0, "disk cache size cap in bytes (0 disables the disk cache)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("cache.dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("cache.disk_cap_bytes", rootCmd.PersistentFlags().Lookup("disk-cap-bytes"))
}

// setDefaults registers every config key so environment overrides apply
// even when no config file sets them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.user_agent", "markxiv/"+version)
	v.SetDefault("http.max_retries", 5)

	v.SetDefault("cache.memory_capacity", 128)
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.disk_cap_bytes", 0)
	v.SetDefault("cache.sweep_interval", 10*time.Minute)
	v.SetDefault("cache.compression", string(types.CompressionZstd))

	v.SetDefault("pipeline.timeout", 120*time.Second)

	v.SetDefault("conversion.timeout", 60*time.Second)
	v.SetDefault("conversion.raw_backend", string(types.BackendPdftotext))
	v.SetDefault("conversion.pandoc_bin", "pandoc")
	v.SetDefault("conversion.pdftotext_bin", "pdftotext")
	v.SetDefault("conversion.container", false)
	v.SetDefault("conversion.max_archive_bytes", 512<<20)
	v.SetDefault("conversion.work_dir", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.index_path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.path", "")
}

func initConfig() {
	setDefaults(viper.GetViper())

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("markxiv")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "markxiv"))
		}
	}

	viper.SetEnvPrefix("MARKXIV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the merged flag, environment, file and default
// settings.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Output goes to stderr, and also to
// the log file when one is configured or defaultPath is set.
func newLogger(cfg types.LogConfig, defaultPath string) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch cfg.Format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q (want text or json)", cfg.Format)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
