// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline resolves document keys to Markdown artifacts.
//
// A Resolver probes the memory tier, then the disk tier, and on a miss runs
// the conversion pipeline under a per-key flight: fetch metadata, fetch
// the source, convert the LaTeX entry point, and fall back to raw PDF
// extraction when structured conversion fails or no source exists.
// Successful artifacts are written to both tiers; failures never are.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pdiddy/markxiv/internal/archive"
	"github.com/pdiddy/markxiv/internal/convert"
	"github.com/pdiddy/markxiv/internal/flight"
	"github.com/pdiddy/markxiv/internal/sanitize"
	"github.com/pdiddy/markxiv/pkg/types"
)

// DefaultTimeout bounds one pipeline run when none is configured.
const DefaultTimeout = 120 * time.Second

// MetadataProvider supplies title and abstract for a base identifier.
// types.ErrNotFound marks an unknown identifier.
type MetadataProvider interface {
	FetchMetadata(ctx context.Context, baseID string) (types.Metadata, error)
}

// SourceProvider supplies the source payload for a key. FetchSource
// returns types.ErrSourceUnavailable when neither a source archive nor a
// rendered document exists; FetchRendered returns it when no rendered
// document exists.
type SourceProvider interface {
	FetchSource(ctx context.Context, key types.DocumentKey) (types.Source, error)
	FetchRendered(ctx context.Context, key types.DocumentKey) ([]byte, error)
}

// MemoryTier is the in-process artifact cache.
type MemoryTier interface {
	Get(key types.DocumentKey) (*types.Artifact, bool)
	Put(key types.DocumentKey, a *types.Artifact)
	Remove(key types.DocumentKey)
}

// DiskTier is the persistent artifact cache.
type DiskTier interface {
	Get(ctx context.Context, key types.DocumentKey) (*types.Artifact, bool, error)
	Put(ctx context.Context, a *types.Artifact) error
	Remove(ctx context.Context, key types.DocumentKey) error
}

// Origin reports where a resolved artifact came from.
type Origin int

const (
	OriginPipeline Origin = iota
	OriginMemory
	OriginDisk
	// OriginShared is a pipeline result started by a concurrent caller.
	OriginShared
)

func (o Origin) String() string {
	switch o {
	case OriginMemory:
		return "memory"
	case OriginDisk:
		return "disk"
	case OriginShared:
		return "shared"
	default:
		return "pipeline"
	}
}

// Cached reports whether the artifact was served without running the
// pipeline for this call.
func (o Origin) Cached() bool { return o == OriginMemory || o == OriginDisk }

// Options configures a Resolver. Metadata, Source, Converter and Memory
// are required. A nil Disk disables the disk tier.
type Options struct {
	Metadata  MetadataProvider
	Source    SourceProvider
	Converter convert.Converter
	Memory    MemoryTier
	Disk      DiskTier

	// Timeout bounds one pipeline run (default 120s).
	Timeout time.Duration
	// WorkDir is the parent of per-run extraction workspaces.
	WorkDir string
	// MaxArchiveBytes bounds the extracted size of a source archive.
	MaxArchiveBytes int64

	Logger *slog.Logger
	Now    func() time.Time
}

// Resolver is safe for concurrent use.
type Resolver struct {
	meta       MetadataProvider
	source     SourceProvider
	conv       convert.Converter
	memory     MemoryTier
	disk       DiskTier
	timeout    time.Duration
	workDir    string
	maxArchive int64
	logger     *slog.Logger
	now        func() time.Time

	flights flight.Group[*types.Artifact]
}

// New returns a Resolver wired to the given collaborators.
func New(opts Options) *Resolver {
	r := &Resolver{
		meta:       opts.Metadata,
		source:     opts.Source,
		conv:       opts.Converter,
		memory:     opts.Memory,
		disk:       opts.Disk,
		timeout:    opts.Timeout,
		workDir:    opts.WorkDir,
		maxArchive: opts.MaxArchiveBytes,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.maxArchive <= 0 {
		r.maxArchive = archive.DefaultMaxBytes
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Resolve returns the artifact for key. Without force, a cached artifact
// is returned and no provider is called. With force, the pipeline runs and
// its result replaces the cached entries for key. Failures are returned as
// *types.Failure.
func (r *Resolver) Resolve(ctx context.Context, key types.DocumentKey, force bool) (*types.Artifact, error) {
	a, _, err := r.Fetch(ctx, key, force)
	return a, err
}

// Fetch is Resolve that also reports where the artifact came from.
func (r *Resolver) Fetch(ctx context.Context, key types.DocumentKey, force bool) (*types.Artifact, Origin, error) {
	if !force {
		if a, origin, ok := r.lookup(ctx, key); ok {
			return a, origin, nil
		}
	}

	do := r.flights.Do
	if force {
		do = r.flights.DoFresh
	}
	a, shared, err := do(ctx, key.String(), func(ctx context.Context) (*types.Artifact, error) {
		// Another flight may have filled the cache between the probe above
		// and entering this one.
		if !force {
			if a, _, ok := r.lookup(ctx, key); ok {
				return a, nil
			}
		}
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.run(ctx, key)
	})
	if err != nil {
		if types.KindOf(err) == types.KindUnknown {
			// The caller's context ended before the flight finished.
			err = types.NewFailure(types.KindUpstream, "resolve "+key.String(), err)
		}
		return nil, OriginPipeline, err
	}
	if shared {
		return a, OriginShared, nil
	}
	return a, OriginPipeline, nil
}

// Cached returns the artifact for key from either tier without running the
// pipeline.
func (r *Resolver) Cached(ctx context.Context, key types.DocumentKey) (*types.Artifact, bool) {
	a, _, ok := r.lookup(ctx, key)
	return a, ok
}

// lookup probes memory, then disk, promoting disk hits into memory.
func (r *Resolver) lookup(ctx context.Context, key types.DocumentKey) (*types.Artifact, Origin, bool) {
	if a, ok := r.memory.Get(key); ok {
		return a, OriginMemory, true
	}
	if r.disk == nil {
		return nil, OriginPipeline, false
	}
	a, ok, err := r.disk.Get(ctx, key)
	if err != nil {
		r.logger.WarnContext(ctx, "disk cache read failed", "key", key.String(), "error", err)
		return nil, OriginPipeline, false
	}
	if !ok {
		return nil, OriginPipeline, false
	}
	r.memory.Put(key, a)
	return a, OriginDisk, true
}

// Invalidate drops key from both tiers.
func (r *Resolver) Invalidate(ctx context.Context, key types.DocumentKey) error {
	r.memory.Remove(key)
	if r.disk == nil {
		return nil
	}
	return r.disk.Remove(ctx, key)
}

// run executes the pipeline for key and caches a successful result.
func (r *Resolver) run(ctx context.Context, key types.DocumentKey) (*types.Artifact, error) {
	start := r.now()
	id := key.String()
	r.logger.InfoContext(ctx, "resolving", "key", id)

	meta, err := r.meta.FetchMetadata(ctx, key.BaseID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.NewFailure(types.KindNotFound, "fetch metadata", err)
		}
		return nil, types.NewFailure(types.KindUpstream, "fetch metadata", err)
	}
	meta.Title = sanitize.PlainText(meta.Title)
	meta.Abstract = sanitize.Paragraph(meta.Abstract)
	meta.Authors = cleanAuthors(meta.Authors)

	src, err := r.source.FetchSource(ctx, key)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			return nil, types.NewFailure(types.KindNotFound, "fetch source", err)
		case errors.Is(err, types.ErrSourceUnavailable):
			return nil, types.NewFailure(types.KindSourceUnavailable, "fetch source", err)
		default:
			return nil, types.NewFailure(types.KindUpstream, "fetch source", err)
		}
	}

	text, kind, err := r.convert(ctx, key, src)
	if err != nil {
		r.logger.WarnContext(ctx, "resolve failed", "key", id, "kind", types.KindOf(err).String(),
			"error", err, "elapsed", r.now().Sub(start))
		return nil, err
	}

	a := types.NewArtifact(key, meta, sanitize.Body(text), kind, r.now())
	r.store(ctx, a)
	r.logger.InfoContext(ctx, "resolved", "key", id, "source_kind", string(kind),
		"bytes", a.SizeBytes, "elapsed", r.now().Sub(start))
	return a, nil
}

func cleanAuthors(in []string) []string {
	var out []string
	for _, a := range in {
		if a = sanitize.PlainText(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// store writes a to both tiers. Disk errors are logged; the artifact is
// still served from memory.
func (r *Resolver) store(ctx context.Context, a *types.Artifact) {
	r.memory.Put(a.Key, a)
	if r.disk == nil {
		return
	}
	if err := r.disk.Put(context.WithoutCancel(ctx), a); err != nil {
		r.logger.WarnContext(ctx, "disk cache write failed", "key", a.Key.String(), "error", err)
	}
}

// structuredResult is the structured attempt's outcome. A nil err means
// text holds converted Markdown; otherwise kind tells extraction failures
// from conversion failures.
type structuredResult struct {
	text string
	kind types.FailureKind
	err  error
}

// convert turns a source payload into Markdown text, falling back to raw
// extraction over the rendered document when structured conversion is not
// possible.
func (r *Resolver) convert(ctx context.Context, key types.DocumentKey, src types.Source) (string, types.SourceKind, error) {
	var pdf []byte
	switch src.Form {
	case types.FormRendered:
		pdf = src.Data

	case types.FormArchive:
		res := r.structured(ctx, src.Data)
		if res.err == nil {
			return res.text, types.SourceStructured, nil
		}
		r.logger.InfoContext(ctx, "structured conversion failed, falling back to raw extraction",
			"key", key.String(), "kind", res.kind.String(), "error", res.err)

		rendered, err := r.source.FetchRendered(ctx, key)
		switch {
		case err == nil:
			pdf = rendered
		case errors.Is(err, types.ErrSourceUnavailable), errors.Is(err, types.ErrNotFound):
			if res.kind == types.KindExtraction {
				return "", "", types.NewFailure(types.KindExtraction, "extract archive",
					errors.Join(res.err, err))
			}
			return "", "", types.NewFailure(types.KindAllFallbacksExhausted, "convert",
				errors.Join(res.err, err))
		default:
			return "", "", types.NewFailure(types.KindUpstream, "fetch rendered", err)
		}

	default:
		return "", "", types.NewFailure(types.KindUpstream, "fetch source",
			errors.New("provider returned an unknown source form"))
	}

	text, err := r.conv.ExtractRaw(ctx, pdf)
	if err != nil {
		return "", "", types.NewFailure(types.KindAllFallbacksExhausted, "extract raw text", err)
	}
	return text, types.SourceRaw, nil
}

// structured unpacks the archive into a workspace, selects the entry point
// and converts it. The workspace is removed before returning.
func (r *Resolver) structured(ctx context.Context, data []byte) structuredResult {
	ws, err := archive.NewWorkspace(r.workDir)
	if err != nil {
		return structuredResult{kind: types.KindExtraction, err: err}
	}
	defer func() {
		if err := ws.Close(); err != nil {
			r.logger.WarnContext(ctx, "removing workspace", "dir", ws.Dir, "error", err)
		}
	}()

	files, err := archive.Extract(ctx, data, ws.Dir, r.maxArchive)
	if err != nil {
		return structuredResult{kind: types.KindExtraction, err: err}
	}
	sel, err := archive.Select(ws.Dir, files)
	if err != nil {
		return structuredResult{kind: types.KindExtraction, err: err}
	}
	r.logger.DebugContext(ctx, "selected entry point", "path", sel.Path, "rule", sel.Rule.String())

	text, err := r.conv.ConvertStructured(ctx, filepath.Join(ws.Dir, filepath.FromSlash(sel.Path)))
	if err != nil {
		return structuredResult{kind: types.KindConversion, err: err}
	}
	return structuredResult{text: text}
}
