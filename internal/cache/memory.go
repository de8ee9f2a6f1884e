// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache implements the in-memory artifact tier: a fixed-capacity
// least-recently-used cache keyed by the canonical document key.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/markxiv/pkg/types"
)

// DefaultCapacity is used when a non-positive capacity is configured.
const DefaultCapacity = 128

// Memory is a bounded recency cache of assembled artifacts. It is safe for
// concurrent use.
type Memory struct {
	lru *lru.Cache[string, *types.Artifact]
}

// NewMemory returns a cache holding at most capacity artifacts.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, *types.Artifact](capacity)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Memory{lru: c}
}

// Get returns the artifact for key and marks it most recently used.
func (m *Memory) Get(key types.DocumentKey) (*types.Artifact, bool) {
	return m.lru.Get(key.String())
}

// Put inserts or replaces the artifact for key, evicting the least
// recently used entry when the cache is full.
func (m *Memory) Put(key types.DocumentKey, a *types.Artifact) {
	m.lru.Add(key.String(), a)
}

// Remove drops key from the cache.
func (m *Memory) Remove(key types.DocumentKey) {
	m.lru.Remove(key.String())
}

// Len returns the number of cached artifacts.
func (m *Memory) Len() int { return m.lru.Len() }
