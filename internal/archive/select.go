// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package archive

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoCandidate reports an archive with no LaTeX source file.
var ErrNoCandidate = errors.New("no LaTeX source file in archive")

// Rule names the selection step that picked the entry point.
type Rule int

const (
	// RuleMainName: a file with a conventional main name.
	RuleMainName Rule = iota + 1
	// RuleSingle: the only candidate.
	RuleSingle
	// RuleRootMarker: the best candidate containing \documentclass.
	RuleRootMarker
	// RuleLargest: no candidate has a root marker; the largest wins.
	RuleLargest
)

func (r Rule) String() string {
	switch r {
	case RuleMainName:
		return "main_name"
	case RuleSingle:
		return "single"
	case RuleRootMarker:
		return "root_marker"
	case RuleLargest:
		return "largest"
	default:
		return "unknown"
	}
}

// Selection is the chosen entry point and the rule that chose it.
type Selection struct {
	// Path is slash-separated and relative to the extraction directory.
	Path string
	Rule Rule
}

// mainStems are conventional entry-point names in priority order.
var mainStems = []string{"main", "ms", "paper", "manuscript", "article"}

var texExtensions = map[string]bool{".tex": true, ".ltx": true, ".latex": true}

// supplementaryTokens mark files that are rarely the entry point even
// when they carry their own \documentclass.
var supplementaryTokens = map[string]bool{
	"supp": true, "supplement": true, "supplementary": true,
	"supplemental": true, "appendix": true, "si": true,
}

// Select picks the entry point among the extracted files in dir. The
// decision depends only on file names, sizes and contents, so the same
// archive always yields the same selection.
func Select(dir string, files []File) (Selection, error) {
	var cands []File
	for _, f := range files {
		if texExtensions[strings.ToLower(path.Ext(f.Path))] {
			cands = append(cands, f)
		}
	}
	if len(cands) == 0 {
		return Selection{}, ErrNoCandidate
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].Path < cands[j].Path })

	if p, ok := byMainName(cands); ok {
		return Selection{Path: p, Rule: RuleMainName}, nil
	}
	if len(cands) == 1 {
		return Selection{Path: cands[0].Path, Rule: RuleSingle}, nil
	}
	p, ok, err := byRootMarker(dir, cands)
	if err != nil {
		return Selection{}, err
	}
	if ok {
		return Selection{Path: p, Rule: RuleRootMarker}, nil
	}
	return Selection{Path: largest(cands).Path, Rule: RuleLargest}, nil
}

// byMainName returns the shallowest candidate whose stem matches the
// highest-priority main name. cands must be sorted by path.
func byMainName(cands []File) (string, bool) {
	for _, stem := range mainStems {
		best, depth := "", -1
		for _, f := range cands {
			if !strings.EqualFold(stemOf(f.Path), stem) {
				continue
			}
			d := strings.Count(f.Path, "/")
			if depth < 0 || d < depth {
				best, depth = f.Path, d
			}
		}
		if depth >= 0 {
			return best, true
		}
	}
	return "", false
}

type scored struct {
	file        File
	supp        bool
	hasDocument bool
}

// byRootMarker ranks candidates containing \documentclass (or the
// LaTeX 2.09 \documentstyle): non-supplementary names first, then those
// with \begin{document}, then larger size, then path.
func byRootMarker(dir string, cands []File) (string, bool, error) {
	var marked []scored
	for _, f := range cands {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if err != nil {
			return "", false, fmt.Errorf("reading candidate %s: %w", f.Path, err)
		}
		if !bytes.Contains(data, []byte(`\documentclass`)) && !bytes.Contains(data, []byte(`\documentstyle`)) {
			continue
		}
		marked = append(marked, scored{
			file:        f,
			supp:        isSupplementary(f.Path),
			hasDocument: bytes.Contains(data, []byte(`\begin{document}`)),
		})
	}
	if len(marked) == 0 {
		return "", false, nil
	}
	sort.SliceStable(marked, func(i, j int) bool {
		a, b := marked[i], marked[j]
		if a.supp != b.supp {
			return !a.supp
		}
		if a.hasDocument != b.hasDocument {
			return a.hasDocument
		}
		if a.file.Size != b.file.Size {
			return a.file.Size > b.file.Size
		}
		return a.file.Path < b.file.Path
	})
	return marked[0].file.Path, true, nil
}

// largest returns the biggest candidate; ties go to the first path.
// cands must be sorted by path.
func largest(cands []File) File {
	best := cands[0]
	for _, f := range cands[1:] {
		if f.Size > best.Size {
			best = f
		}
	}
	return best
}

func stemOf(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// isSupplementary splits the file stem into alphanumeric tokens and checks
// each against supplementaryTokens, so "analysis.tex" is not flagged by
// its "si".
func isSupplementary(p string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(stemOf(p)), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, t := range tokens {
		if supplementaryTokens[t] || strings.HasPrefix(t, "supp") {
			return true
		}
	}
	return false
}
