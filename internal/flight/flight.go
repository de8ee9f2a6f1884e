// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package flight provides per-key mutual exclusion with shared results.
//
// Concurrent Do calls for the same key run the work function once and all
// observe its result. The work runs in a context detached from any single
// caller; it is cancelled only after every waiting caller has gone away.
// Entries are created on demand and removed when the work finishes, so the
// map never holds keys with no pending callers. DoFresh callers never
// share a result computed by a call started with Do.
package flight

import (
	"context"
	"sync"
)

type call[V any] struct {
	done    chan struct{}
	val     V
	err     error
	waiters int
	cancel  context.CancelFunc
	// fresh marks a call started by DoFresh.
	fresh bool
}

// Group deduplicates concurrent work by key. The zero value is ready to use.
type Group[V any] struct {
	mu    sync.Mutex
	calls map[string]*call[V]
}

// Do runs fn for key unless a call for key is already in flight, in which
// case it waits for that call. shared reports whether the result came from
// a call started by another caller. If ctx ends first, Do returns ctx.Err()
// without waiting; the work keeps running while other callers wait for it.
func (g *Group[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (v V, shared bool, err error) {
	return g.do(ctx, key, false, fn)
}

// DoFresh is Do for callers that must observe work started no earlier than
// their own call. It joins only a call started by DoFresh; a call started
// by Do is waited out first and then a new call is started, so calls for
// one key still never overlap.
func (g *Group[V]) DoFresh(ctx context.Context, key string, fn func(context.Context) (V, error)) (v V, shared bool, err error) {
	return g.do(ctx, key, true, fn)
}

func (g *Group[V]) do(ctx context.Context, key string, fresh bool, fn func(context.Context) (V, error)) (v V, shared bool, err error) {
	var c *call[V]
	for c == nil {
		g.mu.Lock()
		if g.calls == nil {
			g.calls = make(map[string]*call[V])
		}
		existing, ok := g.calls[key]
		switch {
		// A call abandoned by all of its waiters has been cancelled; start over.
		case !ok || existing.waiters == 0:
			workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			c = &call[V]{done: make(chan struct{}), waiters: 1, cancel: cancel, fresh: fresh}
			g.calls[key] = c
			g.mu.Unlock()
			go g.run(workCtx, key, c, fn)
		case existing.fresh || !fresh:
			existing.waiters++
			g.mu.Unlock()
			c = existing
			shared = true
		default:
			g.mu.Unlock()
			select {
			case <-existing.done:
			case <-ctx.Done():
				return v, false, ctx.Err()
			}
		}
	}

	select {
	case <-c.done:
		g.leave(c)
		return c.val, shared, c.err
	case <-ctx.Done():
		g.leave(c)
		var zero V
		return zero, shared, ctx.Err()
	}
}

func (g *Group[V]) run(ctx context.Context, key string, c *call[V], fn func(context.Context) (V, error)) {
	defer func() {
		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
		c.cancel()
		close(c.done)
	}()
	c.val, c.err = fn(ctx)
}

// leave drops one waiter and cancels the work when none remain.
func (g *Group[V]) leave(c *call[V]) {
	g.mu.Lock()
	c.waiters--
	last := c.waiters == 0
	g.mu.Unlock()
	if last {
		c.cancel()
	}
}

// InFlight returns the number of keys with work in progress.
func (g *Group[V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
