// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides a read-through, single-flight cache for
// position statistics computed against game databases.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// GameQuery describes one position-statistics lookup. All fields are
// comparable so keys hash structurally, not by identity.
type GameQuery struct {
	FEN     string `json:"fen"`
	Player1 string `json:"player1,omitempty"`
	Player2 string `json:"player2,omitempty"`
	Result  string `json:"result,omitempty"`
	Variant string `json:"variant,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Key pairs a query with the database it runs against.
type Key struct {
	Query  GameQuery
	DBPath string
}

// flightKey is the singleflight grouping key. Structural: two equal
// Keys always collapse to the same flight.
func (k Key) flightKey() string {
	return fmt.Sprintf("%+v|%s", k.Query, k.DBPath)
}

// MoveStats aggregates outcomes for one continuation move.
type MoveStats struct {
	Move  string `json:"move"`
	White int    `json:"white"`
	Draw  int    `json:"draw"`
	Black int    `json:"black"`
}

// GameRef identifies one matching game.
type GameRef struct {
	ID     int64  `json:"id"`
	White  string `json:"white"`
	Black  string `json:"black"`
	Result string `json:"result"`
	Date   string `json:"date,omitempty"`
}

// Entry is one cached computation result. Entries are never mutated
// after insertion; invalidation removes them whole.
type Entry struct {
	Stats []MoveStats `json:"stats"`
	Games []GameRef   `json:"games"`
}

// ComputeFunc produces an Entry on a cache miss.
type ComputeFunc func(ctx context.Context) (Entry, error)

// =============================================================================
// STATS CACHE
// =============================================================================

// StatsCache maps (query, database path) to computed statistics.
//
// Description:
//
//	Read-through with lazy population. Concurrent misses on the same
//	key collapse into a single computation; later callers wait for the
//	in-flight result. Compute failures propagate to every waiter and
//	are not cached, so the next request retries. No automatic
//	eviction: entries live until explicitly invalidated.
//
// Thread Safety:
//
//	Safe for concurrent use. Parallel reads and disjoint-key writes do
//	not contend beyond the map lock.
type StatsCache struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	flight  singleflight.Group

	hits   int64
	misses int64
}

// NewStatsCache creates an empty cache.
func NewStatsCache() *StatsCache {
	return &StatsCache{
		entries: make(map[Key]Entry),
	}
}

// GetOrCompute returns the cached entry for key, computing it at most
// once under concurrent misses.
func (c *StatsCache) GetOrCompute(ctx context.Context, key Key, fn ComputeFunc) (Entry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		atomic.AddInt64(&c.hits, 1)
		return entry, nil
	}

	atomic.AddInt64(&c.misses, 1)

	v, err, _ := c.flight.Do(key.flightKey(), func() (any, error) {
		// A previous flight may have stored the entry after our miss.
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return entry, nil
		}

		computed, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = computed
		c.mu.Unlock()
		return computed, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

// Get returns the cached entry without computing.
func (c *StatsCache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Invalidate removes one entry. Subsequent reads miss.
func (c *StatsCache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.flight.Forget(key.flightKey())
}

// InvalidatePath removes every entry computed against dbPath. Called
// by the database layer after writes make cached statistics stale.
func (c *StatsCache) InvalidatePath(dbPath string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if key.DBPath == dbPath {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries.
func (c *StatsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats reports hit/miss counters.
func (c *StatsCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
