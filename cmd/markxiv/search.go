package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/markxiv/internal/arxiv"
	"github.com/pdiddy/markxiv/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the arXiv API for papers",
	Long: `Search queries the arXiv API across all fields and prints the matching
papers with identifiers that "markxiv convert" accepts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("max-results", 10, "maximum number of results to return (1-50)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Log, "")
	if err != nil {
		return err
	}
	defer closeLog()

	maxResults, _ := cmd.Flags().GetInt("max-results")
	client := arxiv.NewClient(cfg.HTTP, logger)
	results, err := client.Search(context.Background(), strings.Join(args, " "), maxResults)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatSearchOutput(os.Stdout, results, jsonOutput)
}

func formatSearchOutput(w io.Writer, results []types.SearchResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No papers found.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s [%s]\n", i+1, r.Title, r.ID)
		if len(r.Authors) > 0 {
			fmt.Fprintf(w, "   %s\n", strings.Join(r.Authors, ", "))
		}
		if !r.Published.IsZero() {
			fmt.Fprintf(w, "   published %s\n", r.Published.Format("2006-01-02"))
		}
	}
	return nil
}
