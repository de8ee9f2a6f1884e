//go:build mage

// Package main contains Mage build targets for markxiv developer tooling.
package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the service expects.
var projectDirs = []string{
	"cache",
	"logs",
	"bin",
}

// Init creates the working directories used by a local server.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "markxiv"
	cmdPkg  = "./cmd/markxiv"
)

// version returns the build version from MARKXIV_VERSION or "dev".
func version() string {
	if v := os.Getenv("MARKXIV_VERSION"); v != "" {
		return v
	}
	return "dev"
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	ldflags := "-X main.version=" + version()
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs go vet over the module.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Serve builds the binary and starts the HTTP service.
func Serve() error {
	mg.Deps(Init, Build)
	return sh.RunV(filepath.Join(binDir, binName), "serve")
}

// Stats prints non-blank Go line counts per top-level package directory
// and the word count of the Markdown documents at the repository root.
func Stats() error {
	counts := map[string][2]int{}
	err := filepath.WalkDir(".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != ".go" {
			return nil
		}
		n, err := nonBlankLines(p)
		if err != nil {
			return err
		}
		group := packageGroup(p)
		c := counts[group]
		if strings.HasSuffix(p, "_test.go") {
			c[1] += n
		} else {
			c[0] += n
		}
		counts[group] = c
		return nil
	})
	if err != nil {
		return err
	}

	groups := make([]string, 0, len(counts))
	for g := range counts {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	var prod, test int
	for _, g := range groups {
		c := counts[g]
		fmt.Printf("%-28s %6d prod %6d test\n", g, c[0], c[1])
		prod += c[0]
		test += c[1]
	}
	fmt.Printf("%-28s %6d prod %6d test\n", "total", prod, test)

	docs, _ := filepath.Glob("*.md")
	words := 0
	for _, d := range docs {
		data, err := os.ReadFile(d)
		if err != nil {
			return fmt.Errorf("reading %s: %w", d, err)
		}
		words += len(strings.Fields(string(data)))
	}
	fmt.Printf("Words (documentation):       %d\n", words)
	return nil
}

// packageGroup maps a file path to cmd/<name>, internal/<name>, pkg/<name>
// or the directory itself.
func packageGroup(p string) string {
	parts := strings.Split(filepath.ToSlash(filepath.Dir(p)), "/")
	if len(parts) >= 2 && (parts[0] == "cmd" || parts[0] == "internal" || parts[0] == "pkg") {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

func nonBlankLines(p string) (int, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}
