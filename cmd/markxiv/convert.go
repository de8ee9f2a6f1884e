package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [ids...]",
	Short: "Convert arXiv papers to Markdown",
	Long: `Convert resolves each arXiv identifier (bare id, arXiv: prefix, or
abs/pdf URL) to Markdown using the same pipeline and caches as the server.
Status lines and a batch summary go to stderr. Markdown goes to stdout, or
to one file per paper under --out-dir.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("out-dir", "", "write each paper to <out-dir>/<id>.md instead of stdout")
	convertCmd.Flags().Bool("refresh", false, "rebuild cached conversions")
	convertCmd.Flags().Int("workers", 4, "papers converted concurrently")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Log, "")
	if err != nil {
		return err
	}
	defer closeLog()

	outDir, _ := cmd.Flags().GetString("out-dir")
	refresh, _ := cmd.Flags().GetBool("refresh")
	workers, _ := cmd.Flags().GetInt("workers")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	result := st.resolver.ResolveBatch(ctx, args, refresh, workers, os.Stderr)

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	for _, a := range result.Artifacts {
		if a == nil {
			continue
		}
		if outDir == "" {
			fmt.Fprintln(os.Stdout, a.Markdown())
			continue
		}
		name := strings.ReplaceAll(a.Key.String(), "/", "_") + ".md"
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(a.Markdown()), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	if result.HasFailures() {
		return fmt.Errorf("%d paper(s) failed conversion", result.Failed)
	}
	return nil
}
