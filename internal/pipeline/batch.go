// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/markxiv/internal/ident"
	"github.com/pdiddy/markxiv/pkg/types"
)

// DefaultBatchWorkers bounds concurrent resolves in ResolveBatch.
const DefaultBatchWorkers = 4

// BatchResult holds the outcome of a batch run.
type BatchResult struct {
	Converted int
	Cached    int
	Failed    int
	// Artifacts holds one entry per input, nil where resolution failed.
	Artifacts []*types.Artifact
}

// Total returns the number of identifiers processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Cached + r.Failed
}

// HasFailures reports whether any identifier failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

type batchItem struct {
	artifact *types.Artifact
	origin   Origin
	err      error
}

// ResolveBatch parses and resolves each raw identifier with up to workers
// resolves in flight, printing one status line per identifier to w in
// input order followed by a summary.
func (r *Resolver) ResolveBatch(ctx context.Context, ids []string, force bool, workers int, w io.Writer) BatchResult {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	items := make([]batchItem, len(ids))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, raw := range ids {
		g.Go(func() error {
			key, err := ident.Parse(raw)
			if err != nil {
				items[i].err = err
				return nil
			}
			items[i].artifact, items[i].origin, items[i].err = r.Fetch(ctx, key, force)
			return nil
		})
	}
	g.Wait()

	result := BatchResult{Artifacts: make([]*types.Artifact, len(ids))}
	for i, it := range items {
		switch {
		case it.err != nil:
			fmt.Fprintf(w, "failed:    %s (%v)\n", ids[i], it.err)
			result.Failed++
		case it.origin.Cached():
			fmt.Fprintf(w, "cached:    %s (%s)\n", it.artifact.Key, it.origin)
			result.Cached++
			result.Artifacts[i] = it.artifact
		default:
			fmt.Fprintf(w, "converted: %s (%s)\n", it.artifact.Key, it.artifact.SourceKind)
			result.Converted++
			result.Artifacts[i] = it.artifact
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d cached, %d failed (total: %d)\n",
		result.Converted, result.Cached, result.Failed, result.Total())
	return result
}
