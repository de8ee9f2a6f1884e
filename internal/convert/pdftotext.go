// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdiddy/markxiv/internal/runner"
)

// Pdftotext extracts layout-preserving text with poppler's pdftotext,
// streaming the PDF on stdin.
type Pdftotext struct {
	run runner.Runner
	bin string
}

// NewPdftotext returns a raw backend that invokes bin through run.
func NewPdftotext(run runner.Runner, bin string) *Pdftotext {
	return &Pdftotext{run: run, bin: bin}
}

// Name identifies the backend in errors and logs.
func (p *Pdftotext) Name() string { return "pdftotext" }

// ExtractRaw returns the text of pdf.
func (p *Pdftotext) ExtractRaw(ctx context.Context, pdf []byte) (string, error) {
	var out bytes.Buffer
	args := []string{"-layout", "-enc", "UTF-8", "-", "-"}
	if err := p.run.Run(ctx, p.bin, args, "", bytes.NewReader(pdf), &out); err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	return out.String(), nil
}
