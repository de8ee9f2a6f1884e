// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pdiddy/markxiv/internal/ident"
	"github.com/pdiddy/markxiv/internal/sanitize"
	"github.com/pdiddy/markxiv/pkg/types"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 20
	abstractPreview      = 300
)

// ConvertInput is the input schema for convert_paper.
type ConvertInput struct {
	PaperID string `json:"paper_id" jsonschema:"arXiv paper ID (e.g. '1706.03762' or '2301.07041v1')"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"rebuild the cached conversion"`
}

// ConvertOutput is the output schema for convert_paper.
type ConvertOutput struct {
	PaperID    string `json:"paper_id"`
	SourceKind string `json:"source_kind"`
	Markdown   string `json:"markdown"`
}

// MetadataInput is the input schema for get_metadata.
type MetadataInput struct {
	PaperID string `json:"paper_id" jsonschema:"arXiv paper ID (e.g. '1706.03762')"`
}

// MetadataOutput is the output schema for get_metadata.
type MetadataOutput struct {
	PaperID   string   `json:"paper_id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors,omitempty"`
	Abstract  string   `json:"abstract"`
	Published string   `json:"published,omitempty"`
	Link      string   `json:"link"`
}

// SearchInput is the input schema for search_papers.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"search query (e.g. 'attention is all you need')"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results (1-20, default 5)"`
}

// SearchOutput is the output schema for search_papers.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput is one search hit.
type SearchResultOutput struct {
	PaperID   string   `json:"paper_id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors,omitempty"`
	Abstract  string   `json:"abstract,omitempty"`
	Published string   `json:"published,omitempty"`
	Link      string   `json:"link"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "convert_paper",
		Description: "Convert an arXiv paper to Markdown. Returns the full paper content with title and abstract.",
	}, s.handleConvert)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_metadata",
		Description: "Get metadata (title, authors, abstract) for an arXiv paper without converting the full content.",
	}, s.handleMetadata)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_papers",
		Description: "Search arXiv papers by keyword query. Returns matching papers with IDs, titles, authors and abstracts.",
	}, s.handleSearch)
}

func (s *Server) handleConvert(ctx context.Context, _ *mcp.CallToolRequest, input ConvertInput) (*mcp.CallToolResult, ConvertOutput, error) {
	key, err := ident.Parse(input.PaperID)
	if err != nil {
		return nil, ConvertOutput{}, fmt.Errorf("invalid paper ID %q", input.PaperID)
	}
	a, err := s.ports.Resolver.Resolve(ctx, key, input.Refresh)
	if err != nil {
		return nil, ConvertOutput{}, describeFailure(key, err)
	}
	return nil, ConvertOutput{
		PaperID:    key.String(),
		SourceKind: string(a.SourceKind),
		Markdown:   a.Markdown(),
	}, nil
}

func (s *Server) handleMetadata(ctx context.Context, _ *mcp.CallToolRequest, input MetadataInput) (*mcp.CallToolResult, MetadataOutput, error) {
	key, err := ident.Parse(input.PaperID)
	if err != nil {
		return nil, MetadataOutput{}, fmt.Errorf("invalid paper ID %q", input.PaperID)
	}
	meta, err := s.ports.Metadata.FetchMetadata(ctx, key.BaseID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, MetadataOutput{}, fmt.Errorf("paper '%s' not found", key)
		}
		return nil, MetadataOutput{}, fmt.Errorf("metadata fetch failed: %w", err)
	}
	out := MetadataOutput{
		PaperID:  key.String(),
		Title:    sanitize.PlainText(meta.Title),
		Authors:  meta.Authors,
		Abstract: sanitize.Paragraph(meta.Abstract),
		Link:     absLink(key.String()),
	}
	if !meta.Published.IsZero() {
		out.Published = meta.Published.Format("2006-01-02")
	}
	return nil, out, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, errors.New("query must not be empty")
	}
	limit := input.MaxResults
	if limit <= 0 {
		limit = defaultSearchResults
	}
	limit = min(limit, maxSearchResults)

	results, err := s.ports.Search.Search(ctx, query, limit)
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
	}

	out := SearchOutput{Results: make([]SearchResultOutput, len(results)), Count: len(results)}
	for i, r := range results {
		o := SearchResultOutput{
			PaperID:  r.ID,
			Title:    sanitize.PlainText(r.Title),
			Authors:  r.Authors,
			Abstract: preview(sanitize.PlainText(r.Abstract), abstractPreview),
			Link:     absLink(r.ID),
		}
		if !r.Published.IsZero() {
			o.Published = r.Published.Format("2006-01-02")
		}
		out.Results[i] = o
	}
	return nil, out, nil
}

func describeFailure(key types.DocumentKey, err error) error {
	switch types.KindOf(err) {
	case types.KindNotFound:
		return fmt.Errorf("paper '%s' not found", key)
	case types.KindSourceUnavailable:
		return fmt.Errorf("paper '%s' has neither a LaTeX source nor a PDF", key)
	case types.KindAllFallbacksExhausted:
		return fmt.Errorf("conversion failed (both LaTeX and PDF): %w", err)
	default:
		return fmt.Errorf("converting %s: %w", key, err)
	}
}

func absLink(id string) string {
	return "https://arxiv.org/abs/" + id
}

// preview truncates s to at most n runes, marking the cut with "...".
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
