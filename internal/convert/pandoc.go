// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/pdiddy/markxiv/internal/runner"
)

// Pandoc converts LaTeX to GitHub-flavored Markdown with pandoc.
type Pandoc struct {
	run runner.Runner
	bin string
}

// NewPandoc returns a structured backend that invokes bin through run.
func NewPandoc(run runner.Runner, bin string) *Pandoc {
	return &Pandoc{run: run, bin: bin}
}

// Name identifies the backend in errors and logs.
func (p *Pandoc) Name() string { return "pandoc" }

// pandocReaders are tried in order. Custom macros that pandoc cannot
// expand often convert once macro processing is disabled.
var pandocReaders = []string{"latex", "latex-latex_macros"}

// ConvertStructured converts the file at path, running pandoc in the
// file's directory so \input and \include resolve.
func (p *Pandoc) ConvertStructured(ctx context.Context, path string) (string, error) {
	dir, name := filepath.Split(path)
	var firstErr error
	for _, reader := range pandocReaders {
		args := []string{"--from=" + reader, "--to=gfm", "--wrap=none", name}
		var out bytes.Buffer
		err := p.run.Run(ctx, p.bin, args, filepath.Clean(dir), nil, &out)
		if err == nil && len(bytes.TrimSpace(out.Bytes())) > 0 {
			return out.String(), nil
		}
		if err == nil {
			err = ErrEmptyOutput
		}
		if firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("converting %s: %w", name, firstErr)
}
