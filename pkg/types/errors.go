// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by metadata and source providers. Any other
// provider error is treated as an upstream failure.
var (
	// ErrNotFound reports that the identifier does not exist upstream.
	ErrNotFound = errors.New("not found")

	// ErrSourceUnavailable reports that no structured source exists for the
	// identifier (arXiv "PDF only"), or that no rendered document exists
	// when the rendered form is requested.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInvalidKey reports an identifier that does not match the grammar.
	ErrInvalidKey = errors.New("invalid identifier")
)

// FailureKind classifies a failed resolve.
type FailureKind int

const (
	KindUnknown FailureKind = iota
	KindNotFound
	KindSourceUnavailable
	KindUpstream
	KindExtraction
	KindConversion
	KindAllFallbacksExhausted
)

func (k FailureKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindSourceUnavailable:
		return "source_unavailable"
	case KindUpstream:
		return "upstream_error"
	case KindExtraction:
		return "extraction_error"
	case KindConversion:
		return "conversion_error"
	case KindAllFallbacksExhausted:
		return "all_fallbacks_exhausted"
	default:
		return "unknown"
	}
}

// Failure is the typed error returned by the resolver. Kind determines how
// the serving layer reports it; Err carries the underlying cause.
type Failure struct {
	Kind FailureKind
	// Op names the pipeline step that failed (e.g. "fetch metadata").
	Op  string
	Err error
}

// NewFailure wraps err with a kind and the failing step.
func NewFailure(kind FailureKind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches another *Failure by kind, so errors.Is(err, &Failure{Kind: k})
// works regardless of cause.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return t.Kind == f.Kind
}

// KindOf returns the failure kind carried by err, or KindUnknown.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}
