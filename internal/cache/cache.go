/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache holds decoded schedule snapshots in process memory.
package cache

import (
	"sync/atomic"

	"github.com/jellydator/ttlcache/v3"

	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

// Cache maps a cache key (see types.ScheduleKey.CacheKey) to a document
type Cache interface {
	Get(key string) (types.Document, bool)
	Set(key string, doc types.Document)
	Invalidate(key string)
	Clear()
	Stats() Stats
}

// Stats reports cache usage since construction
type Stats struct {
	Size          int    `json:"size"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Insertions    uint64 `json:"insertions"`
	Invalidations uint64 `json:"invalidations"`
}

// MemoryCache is an unbounded in-process cache. Entries never expire and
// stay until invalidated, cleared or the process exits.
type MemoryCache struct {
	items         *ttlcache.Cache[string, types.Document]
	invalidations atomic.Uint64
}

// NewMemoryCache creates an empty cache. No background goroutine is started.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: ttlcache.New[string, types.Document](
			ttlcache.WithTTL[string, types.Document](ttlcache.NoTTL),
			ttlcache.WithDisableTouchOnHit[string, types.Document](),
		),
	}
}

// Get returns the cached document for key
func (c *MemoryCache) Get(key string) (types.Document, bool) {
	item := c.items.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Set stores doc under key, replacing any previous value
func (c *MemoryCache) Set(key string, doc types.Document) {
	c.items.Set(key, doc, ttlcache.NoTTL)
}

// Invalidate removes key; removing an absent key is a no-op
func (c *MemoryCache) Invalidate(key string) {
	c.invalidations.Add(1)
	c.items.Delete(key)
}

// Clear drops every entry
func (c *MemoryCache) Clear() {
	c.items.DeleteAll()
}

// Stats returns a snapshot of cache counters
func (c *MemoryCache) Stats() Stats {
	m := c.items.Metrics()
	return Stats{
		Size:          c.items.Len(),
		Hits:          m.Hits,
		Misses:        m.Misses,
		Insertions:    m.Insertions,
		Invalidations: c.invalidations.Load(),
	}
}

// Close empties the cache at shutdown
func (c *MemoryCache) Close() error {
	c.Clear()
	return nil
}
