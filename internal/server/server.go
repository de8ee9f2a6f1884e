// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the resolver over HTTP.
//
// Routes:
//
//	GET /              landing page (HTML or Markdown by Accept)
//	GET /health        liveness
//	GET /abs/{id}      Markdown for an arXiv identifier
//	GET /pdf/{id}      same, with an optional ".pdf" suffix
//
// "?refresh=1" forces the pipeline to run again for the identifier.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pdiddy/markxiv/internal/ident"
	"github.com/pdiddy/markxiv/internal/pipeline"
	"github.com/pdiddy/markxiv/pkg/types"
)

const (
	contentTypeMarkdown = "text/markdown; charset=utf-8"
	contentTypeHTML     = "text/html; charset=utf-8"
	contentTypeText     = "text/plain; charset=utf-8"

	// headerCache reports which tier served the artifact.
	headerCache = "X-Markxiv-Cache"

	// statusClientClosed is logged when the client goes away mid-request.
	statusClientClosed = 499
)

// Resolver is the subset of pipeline.Resolver the server needs.
type Resolver interface {
	Fetch(ctx context.Context, key types.DocumentKey, force bool) (*types.Artifact, pipeline.Origin, error)
}

// Options configures a Server.
type Options struct {
	Resolver Resolver
	// IndexPath overrides the embedded landing page.
	IndexPath string
	Logger    *slog.Logger
}

// Server serves Markdown conversions of arXiv papers.
type Server struct {
	resolver Resolver
	index    *landingPage
	logger   *slog.Logger
}

// New returns a Server. It fails when the landing page cannot be loaded.
func New(opts Options) (*Server, error) {
	if opts.Resolver == nil {
		return nil, errors.New("server: resolver is required")
	}
	index, err := loadLandingPage(opts.IndexPath)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{resolver: opts.Resolver, index: index, logger: logger}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentTypeText)
		w.Write([]byte("ok"))
	})
	r.Get("/abs/*", s.handlePaper)
	r.Get("/pdf/*", s.handlePaper)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r.Header.Get("Accept")) {
		w.Header().Set("Content-Type", contentTypeHTML)
		w.Write(s.index.html)
		return
	}
	w.Header().Set("Content-Type", contentTypeMarkdown)
	w.Write(s.index.md)
}

// handlePaper serves /abs/{id} and /pdf/{id}. The identifier is the rest
// of the path, since old-style identifiers contain a slash.
func (s *Server) handlePaper(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")
	key, err := ident.Parse(raw)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	force := r.URL.Query().Get("refresh") == "1"

	a, origin, err := s.resolver.Fetch(r.Context(), key, force)
	if err != nil {
		s.writeFailure(w, r, key, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeMarkdown)
	w.Header().Set("Content-Location", r.URL.Path)
	w.Header().Set(headerCache, origin.String())
	w.Write([]byte(a.Markdown()))
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, key types.DocumentKey, err error) {
	if r.Context().Err() != nil {
		s.logger.InfoContext(r.Context(), "client went away", "key", key.String(),
			"status", statusClientClosed)
		return
	}
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "resolve failed", "key", key.String(), "status", status, "error", err)
	}
	http.Error(w, msg, status)
}

// statusFor maps a resolve failure to an HTTP status and a short message.
func statusFor(err error) (int, string) {
	switch kind := types.KindOf(err); kind {
	case types.KindNotFound:
		return http.StatusNotFound, "not found"
	case types.KindSourceUnavailable:
		return http.StatusUnprocessableEntity, "Error: PDF only"
	case types.KindUpstream:
		return http.StatusBadGateway, "upstream error: " + err.Error()
	case types.KindUnknown:
		return http.StatusInternalServerError, "internal error"
	default:
		return http.StatusInternalServerError, strings.ReplaceAll(kind.String(), "_", " ") + ": " + err.Error()
	}
}

// logRequests logs one line per request after it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"cache", ww.Header().Get(headerCache),
		)
	})
}
