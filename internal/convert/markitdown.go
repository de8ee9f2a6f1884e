// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdiddy/markxiv/internal/runner"
)

const imageMarkitdown = "markitdown:latest"

// Markitdown converts PDFs by piping them through the markitdown container
// image. It depends on a runner.Runtime (docker or podman) injected at
// construction time.
type Markitdown struct {
	runtime runner.Runtime
}

// NewMarkitdown creates a raw backend that uses rt to run the markitdown
// image. It verifies that the image exists locally before returning.
func NewMarkitdown(ctx context.Context, rt runner.Runtime) (*Markitdown, error) {
	if err := rt.ImageExists(ctx, imageMarkitdown); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &Markitdown{runtime: rt}, nil
}

// Name identifies the backend in errors and logs.
func (m *Markitdown) Name() string { return "markitdown" }

// ExtractRaw pipes pdf through the markitdown container and returns the
// resulting Markdown text.
func (m *Markitdown) ExtractRaw(ctx context.Context, pdf []byte) (string, error) {
	var out bytes.Buffer
	spec := runner.Spec{Image: imageMarkitdown, Stdin: bytes.NewReader(pdf)}
	if err := m.runtime.Run(ctx, spec, &out); err != nil {
		return "", fmt.Errorf("converting with markitdown: %w", err)
	}
	return out.String(), nil
}
