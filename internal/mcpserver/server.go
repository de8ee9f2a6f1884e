// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mcpserver exposes paper conversion, metadata lookup and search
// as Model Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pdiddy/markxiv/pkg/types"
)

// Resolver converts a key to an artifact, using the caches.
type Resolver interface {
	Resolve(ctx context.Context, key types.DocumentKey, force bool) (*types.Artifact, error)
}

// MetadataProvider looks up title, authors and abstract.
type MetadataProvider interface {
	FetchMetadata(ctx context.Context, baseID string) (types.Metadata, error)
}

// Searcher queries the arXiv API.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error)
}

// Ports holds the collaborators behind the tools.
type Ports struct {
	Resolver Resolver
	Metadata MetadataProvider
	Search   Searcher
}

// Validate reports a missing collaborator.
func (p *Ports) Validate() error {
	switch {
	case p == nil:
		return errors.New("ports are required")
	case p.Resolver == nil:
		return errors.New("resolver is required")
	case p.Metadata == nil:
		return errors.New("metadata provider is required")
	case p.Search == nil:
		return errors.New("searcher is required")
	}
	return nil
}

// Server is the markxiv MCP server.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// New creates a server with all tools registered.
func New(ports *Ports, version string) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		ports:  ports,
		server: mcp.NewServer(&mcp.Implementation{Name: "markxiv", Version: version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
