// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ident parses user-supplied arXiv identifiers into document keys.
package ident

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/markxiv/pkg/types"
)

// Style distinguishes the two arXiv identifier schemes.
type Style int

const (
	StyleUnknown Style = iota
	// StyleNew is the post-2007 scheme: "YYMM.NNNNN".
	StyleNew
	// StyleOld is the archive scheme: "hep-th/9901001" or "math.GT/0309136".
	StyleOld
)

func (s Style) String() string {
	switch s {
	case StyleNew:
		return "new"
	case StyleOld:
		return "old"
	default:
		return "unknown"
	}
}

// newPattern matches "2301.07041", "2301.07041v2", "0704.0001".
var newPattern = regexp.MustCompile(`^(\d{4}\.\d{4,5})(?:v([1-9]\d*))?$`)

// oldPattern matches "hep-th/9901001", "math.GT/0309136v3".
var oldPattern = regexp.MustCompile(`^([a-z][a-z-]*(?:\.[A-Z]{2})?/\d{7})(?:v([1-9]\d*))?$`)

// urlPrefixes are stripped so pasted arXiv links resolve to their identifier.
var urlPrefixes = []string{
	"https://arxiv.org/abs/",
	"https://arxiv.org/pdf/",
	"http://arxiv.org/abs/",
	"http://arxiv.org/pdf/",
	"https://export.arxiv.org/abs/",
	"arxiv.org/abs/",
	"arxiv.org/pdf/",
}

// Normalize trims whitespace and strips an optional "arXiv:" prefix, a
// pasted arxiv.org URL prefix, and a trailing ".pdf".
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for _, p := range urlPrefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = s[len(p):]
			break
		}
	}
	if len(s) >= 6 && strings.EqualFold(s[:6], "arxiv:") {
		s = s[6:]
	}
	if len(s) >= 4 && strings.EqualFold(s[len(s)-4:], ".pdf") {
		s = s[:len(s)-4]
	}
	return strings.TrimSuffix(s, "/")
}

// Classify reports the identifier scheme of an already normalized string.
func Classify(normalized string) Style {
	switch {
	case newPattern.MatchString(normalized):
		return StyleNew
	case oldPattern.MatchString(normalized):
		return StyleOld
	default:
		return StyleUnknown
	}
}

// Parse converts raw input into a DocumentKey. An absent version yields a
// "latest" key; "2301.07041" and "2301.07041v1" are distinct keys.
func Parse(raw string) (types.DocumentKey, error) {
	s := Normalize(raw)
	m := newPattern.FindStringSubmatch(s)
	if m == nil {
		m = oldPattern.FindStringSubmatch(s)
	}
	if m == nil {
		return types.DocumentKey{}, fmt.Errorf("parsing %q: %w", raw, types.ErrInvalidKey)
	}
	return types.DocumentKey{BaseID: m[1], Version: m[2]}, nil
}

// MustParse is Parse for identifiers known to be valid, such as test fixtures.
func MustParse(raw string) types.DocumentKey {
	k, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return k
}
