// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDocumentKeyString(t *testing.T) {
	tests := []struct {
		key    DocumentKey
		want   string
		latest bool
	}{
		{DocumentKey{BaseID: "1601.00001"}, "1601.00001", true},
		{DocumentKey{BaseID: "1601.00001", Version: "3"}, "1601.00001v3", false},
		{DocumentKey{BaseID: "hep-th/9901001", Version: "2"}, "hep-th/9901001v2", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
			assert.Equal(t, tt.latest, tt.key.IsLatest())
		})
	}
}

func TestArtifactMarkdown(t *testing.T) {
	key := DocumentKey{BaseID: "2101.00001"}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name string
		meta Metadata
		body string
		want string
	}{
		{
			name: "full",
			meta: Metadata{Title: "Title", Abstract: "Abstract text", Authors: []string{"A. Author"}},
			body: "Body",
			want: "# Title\n\n## Abstract\nAbstract text\n\nBody",
		},
		{
			name: "no abstract",
			meta: Metadata{Title: "Title"},
			body: "Body",
			want: "# Title\n\nBody",
		},
		{
			name: "no title",
			meta: Metadata{Abstract: "Abs"},
			body: "Body",
			want: "## Abstract\nAbs\n\nBody",
		},
		{
			name: "body only",
			body: "Body",
			want: "Body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewArtifact(key, tt.meta, tt.body, SourceStructured, now)
			assert.Equal(t, tt.want, a.Markdown())
			assert.Equal(t, len(tt.want), a.SizeBytes)
			assert.Equal(t, time.UTC, a.CreatedAt.Location())
			assert.True(t, a.CreatedAt.Equal(now))
		})
	}
}

func TestSourceFormString(t *testing.T) {
	assert.Equal(t, "archive", FormArchive.String())
	assert.Equal(t, "rendered", FormRendered.String())
	assert.Equal(t, "unknown", SourceForm(0).String())
}
