//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Search queries the arXiv API for MARKXIV_QUERY.
func Search() error {
	mg.Deps(Build)
	q := os.Getenv("MARKXIV_QUERY")
	if q == "" {
		return fmt.Errorf("set MARKXIV_QUERY to a search query")
	}
	return sh.RunV(filepath.Join(binDir, binName), "search", q)
}
