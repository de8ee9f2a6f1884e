// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailureMatching(t *testing.T) {
	cause := fmt.Errorf("fetching PDF: %w", ErrSourceUnavailable)
	err := fmt.Errorf("resolve 1601.00001: %w", NewFailure(KindSourceUnavailable, "fetch source", cause))

	assert.ErrorIs(t, err, &Failure{Kind: KindSourceUnavailable})
	assert.NotErrorIs(t, err, &Failure{Kind: KindNotFound})
	assert.ErrorIs(t, err, ErrSourceUnavailable, "cause stays reachable")
	assert.Equal(t, KindSourceUnavailable, KindOf(err))
}

func TestKindOfUntyped(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestFailureError(t *testing.T) {
	assert.Equal(t, "fetch metadata: not_found: not found",
		NewFailure(KindNotFound, "fetch metadata", ErrNotFound).Error())
	assert.Equal(t, "convert: all_fallbacks_exhausted",
		NewFailure(KindAllFallbacksExhausted, "convert", nil).Error())
}

func TestFailureKindString(t *testing.T) {
	kinds := map[FailureKind]string{
		KindUnknown:               "unknown",
		KindNotFound:              "not_found",
		KindSourceUnavailable:     "source_unavailable",
		KindUpstream:              "upstream_error",
		KindExtraction:            "extraction_error",
		KindConversion:            "conversion_error",
		KindAllFallbacksExhausted: "all_fallbacks_exhausted",
	}
	for k, want := range kinds {
		assert.Equal(t, want, k.String())
	}
}
