// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for markxiv: document keys,
// converted artifacts, source payloads, typed failures, and configuration.
package types

import "time"

// SearchResult represents a candidate paper returned by an arXiv API query.
type SearchResult struct {
	// ID is the arXiv identifier including its version suffix when the feed
	// reports one (e.g. "1706.03762v7").
	ID string `json:"id" yaml:"id"`

	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is the paper abstract or summary.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Published is the first-version publication date.
	Published time.Time `json:"published" yaml:"published"`
}
