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

package schedule

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/timetablegenerator/ttg-legacy/internal/cache"
	"github.com/timetablegenerator/ttg-legacy/internal/logging"
	"github.com/timetablegenerator/ttg-legacy/internal/metrics"
	"github.com/timetablegenerator/ttg-legacy/internal/storage"
	"github.com/timetablegenerator/ttg-legacy/internal/types"
)

// Options configures a Service
type Options struct {
	// InvalidateOnWrite drops the cached copy after a successful Update.
	// When false a cached copy is served until an explicit Refresh.
	InvalidateOnWrite bool
	Metrics           metrics.MetricsProvider
	Logger            *logging.Logger
}

// Service is the read-through cache in front of the blob store
type Service struct {
	store             storage.BlobStore
	cache             cache.Cache
	metrics           metrics.MetricsProvider
	logger            *logging.Logger
	invalidateOnWrite bool

	loads  singleflight.Group
	writes keyedMutex

	// gens is bumped on every refresh and write; a load only fills the
	// cache if the generation it started under is still current
	genMu sync.Mutex
	gens  map[string]uint64
}

// NewService creates a schedule service
func NewService(store storage.BlobStore, c cache.Cache, opts Options) *Service {
	m := opts.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		store:             store,
		cache:             c,
		metrics:           m,
		logger:            logger.WithComponent("schedule"),
		invalidateOnWrite: opts.InvalidateOnWrite,
		writes:            keyedMutex{locks: make(map[string]*refMutex)},
		gens:              make(map[string]uint64),
	}
}

// Get returns the cached document for key, falling back to the store on a
// miss. A document found in the store is cached. Concurrent misses for the
// same key share one store read.
func (s *Service) Get(ctx context.Context, key types.ScheduleKey) storage.LoadResult {
	level := key.Level.String()
	if doc, ok := s.cache.Get(key.CacheKey()); ok {
		s.metrics.RecordCacheLookup(level, true)
		return storage.Found(doc)
	}
	s.metrics.RecordCacheLookup(level, false)

	v, _, _ := s.loads.Do(key.String(), func() (interface{}, error) {
		return s.load(ctx, key), nil
	})
	return v.(storage.LoadResult)
}

// Refresh invalidates key and eagerly repopulates it from the store. It
// never joins a load that started before the invalidation.
func (s *Service) Refresh(ctx context.Context, key types.ScheduleKey) storage.LoadResult {
	s.invalidate(key)

	res := s.load(ctx, key)

	outcome := metrics.OutcomeRefreshed
	if !res.Found {
		outcome = metrics.OutcomeNotFound
	}
	s.metrics.RecordRefresh(key.Level.String(), outcome)
	s.logger.WithContext(ctx).WithKey(key).WithField("outcome", outcome).Info("Cache refreshed")

	return res
}

// load reads key from the store and caches a found document, unless a
// refresh or write happened while it was reading
func (s *Service) load(ctx context.Context, key types.ScheduleKey) storage.LoadResult {
	gen := s.generation(key)
	timer := metrics.NewTimer()
	res := s.store.Load(ctx, key)

	outcome := metrics.OutcomeOK
	if !res.Found {
		outcome = metrics.OutcomeNotFound
	}
	s.metrics.RecordStoreOperation("load", outcome, timer.Duration())

	if res.Found {
		s.setIfCurrent(key, gen, res.Document)
	}
	return res
}

func (s *Service) generation(key types.ScheduleKey) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[key.CacheKey()]
}

func (s *Service) bump(key types.ScheduleKey) {
	s.genMu.Lock()
	s.gens[key.CacheKey()]++
	s.genMu.Unlock()
}

func (s *Service) setIfCurrent(key types.ScheduleKey, gen uint64, doc types.Document) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[key.CacheKey()] != gen {
		return
	}
	s.cache.Set(key.CacheKey(), doc)
}

// invalidate drops the cached copy and detaches any load in flight
func (s *Service) invalidate(key types.ScheduleKey) {
	s.bump(key)
	s.cache.Invalidate(key.CacheKey())
	s.loads.Forget(key.String())
}

// Update persists doc for key. Writers to the same key are serialized.
// The cache is left untouched unless InvalidateOnWrite is set.
func (s *Service) Update(ctx context.Context, key types.ScheduleKey, doc types.Document) error {
	unlock := s.writes.lock(key.String())
	defer unlock()

	start := time.Now()
	err := s.store.Save(ctx, key, doc)
	if err != nil {
		s.metrics.RecordStoreOperation("save", metrics.OutcomeError, time.Since(start))
		return err
	}
	s.metrics.RecordStoreOperation("save", metrics.OutcomeOK, time.Since(start))
	s.metrics.RecordDocumentSize(key.Level.String(), len(doc))

	if s.invalidateOnWrite {
		s.invalidate(key)
	} else {
		// A load that read the old file must not cache it after this write
		s.bump(key)
	}
	return nil
}

// List returns the school ids stored under level
func (s *Service) List(ctx context.Context, level types.APILevel) ([]string, error) {
	return s.store.List(ctx, level)
}

// CacheStats reports cache counters
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// StoreStats reports stored document counts
func (s *Service) StoreStats(ctx context.Context) (storage.StoreStats, error) {
	return s.store.GetStats(ctx)
}

// HealthCheck checks the underlying store
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

// Close drops every cached document
func (s *Service) Close() {
	s.cache.Clear()
}

// keyedMutex hands out one mutex per key and forgets it when unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
