// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns LaTeX sources and rendered PDFs into Markdown by
// invoking external converters. Structured conversion runs pandoc over the
// selected entry point; raw extraction runs a PDF text extractor. Both are
// bounded by a per-invocation timeout and report failures as *Error.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pdiddy/markxiv/internal/runner"
	"github.com/pdiddy/markxiv/pkg/types"
)

// DefaultTimeout bounds one converter invocation when none is configured.
const DefaultTimeout = 60 * time.Second

// Stage names the conversion path that failed.
type Stage string

const (
	StageStructured Stage = "structured"
	StageRaw        Stage = "raw"
)

// ErrEmptyOutput reports a converter that exited cleanly but produced no text.
var ErrEmptyOutput = errors.New("converter produced empty output")

// Error is a failed conversion. Diagnostic carries the converter's stderr
// when one was captured.
type Error struct {
	Stage      Stage
	Backend    string
	Err        error
	Diagnostic string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s conversion with %s: %v", e.Stage, e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Structured converts a LaTeX entry point on disk to Markdown. The file's
// directory is the conversion working directory.
type Structured interface {
	ConvertStructured(ctx context.Context, path string) (string, error)
}

// Raw extracts text from rendered PDF bytes.
type Raw interface {
	ExtractRaw(ctx context.Context, pdf []byte) (string, error)
}

// Converter is the pair of capabilities the resolver needs.
type Converter interface {
	Structured
	Raw
}

// Adapter composes a structured and a raw backend behind Converter and
// applies the invocation timeout and error normalization to both.
type Adapter struct {
	structured     Structured
	raw            Raw
	structuredName string
	rawName        string
	timeout        time.Duration
}

// NewAdapter wraps the given backends. A non-positive timeout uses
// DefaultTimeout.
func NewAdapter(structured Structured, raw Raw, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{
		structured:     structured,
		raw:            raw,
		structuredName: backendName(structured),
		rawName:        backendName(raw),
		timeout:        timeout,
	}
}

// ConvertStructured runs the structured backend over the entry point at path.
func (a *Adapter) ConvertStructured(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	out, err := a.structured.ConvertStructured(ctx, path)
	return finish(StageStructured, a.structuredName, out, err)
}

// ExtractRaw runs the raw backend over a rendered PDF.
func (a *Adapter) ExtractRaw(ctx context.Context, pdf []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	out, err := a.raw.ExtractRaw(ctx, pdf)
	return finish(StageRaw, a.rawName, out, err)
}

func finish(stage Stage, backend, out string, err error) (string, error) {
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return "", err
		}
		e := &Error{Stage: stage, Backend: backend, Err: err}
		var exitErr *runner.ExitError
		if errors.As(err, &exitErr) {
			e.Diagnostic = exitErr.Stderr
		}
		return "", e
	}
	if strings.TrimSpace(out) == "" {
		return "", &Error{Stage: stage, Backend: backend, Err: ErrEmptyOutput}
	}
	return out, nil
}

type named interface{ Name() string }

func backendName(v any) string {
	if n, ok := v.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}

// New builds the Adapter described by cfg: pandoc for structured
// conversion and the configured raw backend, run natively or inside a
// container runtime.
func New(ctx context.Context, cfg types.ConversionConfig, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pandocBin := cfg.PandocBin
	if pandocBin == "" {
		pandocBin = "pandoc"
	}
	pdftotextBin := cfg.PdftotextBin
	if pdftotextBin == "" {
		pdftotextBin = "pdftotext"
	}

	var rt runner.Runtime
	detect := func() (runner.Runtime, error) {
		if rt != nil {
			return rt, nil
		}
		var err error
		rt, err = runner.DetectRuntime(ctx)
		return rt, err
	}

	var run runner.Runner
	if cfg.Container {
		r, err := detect()
		if err != nil {
			return nil, fmt.Errorf("conversion.container is set: %w", err)
		}
		logger.Info("running converters in containers", "runtime", r.Name())
		run = runner.NewContainer(r, nil)
	} else {
		native := runner.NewNative()
		for _, bin := range []string{pandocBin, pdftotextBin} {
			if !native.Available(bin) {
				logger.Warn("converter not found on PATH", "program", bin)
			}
		}
		run = native
	}

	var raw Raw
	switch cfg.RawBackend {
	case "", types.BackendPdftotext:
		raw = NewPdftotext(run, pdftotextBin)
	case types.BackendMarkitdown:
		r, err := detect()
		if err != nil {
			return nil, fmt.Errorf("markitdown backend: %w", err)
		}
		m, err := NewMarkitdown(ctx, r)
		if err != nil {
			return nil, err
		}
		raw = m
	case types.BackendPdfcpu:
		raw = NewPdfcpu()
	default:
		return nil, fmt.Errorf("unknown raw backend %q (want pdftotext, markitdown or pdfcpu)", cfg.RawBackend)
	}

	return NewAdapter(NewPandoc(run, pandocBin), raw, cfg.Timeout), nil
}
