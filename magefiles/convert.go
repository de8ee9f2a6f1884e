//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Convert converts the papers listed in MARKXIV_IDS (space or comma
// separated) into Markdown under papers/.
func Convert() error {
	mg.Deps(Build)
	ids := strings.FieldsFunc(os.Getenv("MARKXIV_IDS"), func(r rune) bool { return r == ',' || r == ' ' })
	if len(ids) == 0 {
		return fmt.Errorf("set MARKXIV_IDS to one or more arXiv identifiers")
	}
	args := append([]string{"convert", "--out-dir", "papers"}, ids...)
	return sh.RunV(filepath.Join(binDir, binName), args...)
}
