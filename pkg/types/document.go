// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// DocumentKey identifies one cached document. A key with an empty Version
// denotes "latest" and never shares a cache entry with an explicit version.
type DocumentKey struct {
	// BaseID is the arXiv identifier without version (e.g. "1601.00001",
	// "hep-th/9901001").
	BaseID string `json:"base_id" yaml:"base_id"`

	// Version is the numeric version without the "v" prefix, or "" for latest.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// String returns the canonical form used as the cache key in both tiers
// and as the identifier sent upstream.
func (k DocumentKey) String() string {
	if k.Version == "" {
		return k.BaseID
	}
	return k.BaseID + "v" + k.Version
}

// IsLatest reports whether the key carries no explicit version.
func (k DocumentKey) IsLatest() bool { return k.Version == "" }

// SourceKind records which conversion path produced an artifact body.
type SourceKind string

const (
	SourceStructured SourceKind = "structured_conversion"
	SourceRaw        SourceKind = "raw_extraction"
)

// Metadata is the title/abstract information supplied by the metadata provider.
type Metadata struct {
	Title     string    `json:"title" yaml:"title"`
	Abstract  string    `json:"abstract" yaml:"abstract"`
	Authors   []string  `json:"authors,omitempty" yaml:"authors,omitempty"`
	Published time.Time `json:"published,omitempty" yaml:"published,omitempty"`
}

// SourceForm tags the payload returned by a source provider.
type SourceForm int

const (
	// FormArchive is a structured source archive (tar, tar.gz or gzipped file).
	FormArchive SourceForm = iota + 1
	// FormRendered is a rendered-page document (PDF).
	FormRendered
)

func (f SourceForm) String() string {
	switch f {
	case FormArchive:
		return "archive"
	case FormRendered:
		return "rendered"
	default:
		return "unknown"
	}
}

// Source is the payload fetched for a document. Unavailability and
// upstream failures are reported as errors, never as a Source value.
type Source struct {
	Form SourceForm
	Data []byte
}

// Artifact is a fully assembled, sanitized conversion result. Artifacts are
// immutable once built; a refresh builds a new one.
type Artifact struct {
	Key        DocumentKey `json:"key" yaml:"key"`
	Title      string      `json:"title" yaml:"title"`
	Abstract   string      `json:"abstract" yaml:"abstract"`
	Authors    []string    `json:"authors,omitempty" yaml:"authors,omitempty"`
	Body       string      `json:"body" yaml:"-"`
	SourceKind SourceKind  `json:"source_kind" yaml:"source_kind"`
	SizeBytes  int         `json:"size_bytes" yaml:"size_bytes"`
	CreatedAt  time.Time   `json:"created_at" yaml:"created_at"`
}

// NewArtifact assembles an artifact and computes its serialized size.
func NewArtifact(key DocumentKey, meta Metadata, body string, kind SourceKind, now time.Time) *Artifact {
	a := &Artifact{
		Key:        key,
		Title:      meta.Title,
		Abstract:   meta.Abstract,
		Authors:    meta.Authors,
		Body:       body,
		SourceKind: kind,
		CreatedAt:  now.UTC(),
	}
	a.SizeBytes = len(a.Markdown())
	return a
}

// Markdown serializes the artifact for external consumption: a "# title"
// line, an abstract section, then the body. Empty title or abstract
// sections are omitted.
func (a *Artifact) Markdown() string {
	var b strings.Builder
	if a.Title != "" {
		b.WriteString("# ")
		b.WriteString(a.Title)
		b.WriteString("\n\n")
	}
	if a.Abstract != "" {
		b.WriteString("## Abstract\n")
		b.WriteString(a.Abstract)
		b.WriteString("\n\n")
	}
	b.WriteString(a.Body)
	return b.String()
}
