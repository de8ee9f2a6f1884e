// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pdiddy/markxiv/internal/arxiv"
	"github.com/pdiddy/markxiv/internal/cache"
	"github.com/pdiddy/markxiv/internal/convert"
	"github.com/pdiddy/markxiv/internal/diskcache"
	"github.com/pdiddy/markxiv/internal/pipeline"
	"github.com/pdiddy/markxiv/pkg/types"
)

// stack is the wired set of components shared by serve, convert and mcp.
type stack struct {
	client   *arxiv.Client
	disk     *diskcache.Store
	resolver *pipeline.Resolver
}

// openDisk opens the disk cache, returning nil when it is disabled.
func openDisk(ctx context.Context, cfg types.CacheConfig, logger *slog.Logger) (*diskcache.Store, error) {
	store, err := diskcache.Open(ctx, diskcache.Options{
		Root:          cfg.Dir,
		CapBytes:      cfg.DiskCapBytes,
		SweepInterval: cfg.SweepInterval,
		Compression:   cfg.Compression,
		Logger:        logger,
	})
	if errors.Is(err, diskcache.ErrDisabled) {
		logger.Info("disk cache disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func buildStack(ctx context.Context, cfg types.Config, logger *slog.Logger) (*stack, error) {
	conv, err := convert.New(ctx, cfg.Conversion, logger)
	if err != nil {
		return nil, err
	}
	disk, err := openDisk(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	client := arxiv.NewClient(cfg.HTTP, logger)
	opts := pipeline.Options{
		Metadata:        client,
		Source:          client,
		Converter:       conv,
		Memory:          cache.NewMemory(cfg.Cache.MemoryCapacity),
		Timeout:         cfg.Pipeline.Timeout,
		WorkDir:         cfg.Conversion.WorkDir,
		MaxArchiveBytes: cfg.Conversion.MaxArchiveBytes,
		Logger:          logger,
	}
	// A nil *Store in the interface would not compare equal to nil.
	if disk != nil {
		opts.Disk = disk
	}
	return &stack{client: client, disk: disk, resolver: pipeline.New(opts)}, nil
}

// startSweeper runs the disk cache sweeper until ctx is cancelled.
func (s *stack) startSweeper(ctx context.Context) {
	if s.disk != nil {
		go s.disk.Run(ctx)
	}
}

func (s *stack) Close() {
	if s.disk != nil {
		s.disk.Close()
	}
}
