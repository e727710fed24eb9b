package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"kidshelf/discovery/internal/domain"
	"kidshelf/discovery/internal/metrics"
)

const (
	defaultCacheTTL            = 6 * time.Hour
	defaultStaleTTL            = 18 * time.Hour
	defaultWarmInterval        = 5 * time.Minute
	defaultWarmTopQueries      = 12
	defaultCacheMaxEntries     = 400
	defaultPopularMaxEntries   = 200
	maxConcurrentWarmRefreshes = 3 // Limit parallel cache warm refreshes to avoid overwhelming upstream catalogs
)

type searchWarmerConfig struct {
	cacheTTL          time.Duration
	staleTTL          time.Duration
	warmInterval      time.Duration
	warmTopQueries    int
	cacheMaxEntries   int
	popularMaxEntries int
}

type cachedSearchResponse struct {
	response    domain.SearchResponse
	updatedAt   time.Time
	expiresAt   time.Time
	staleUntil  time.Time
	refreshing  bool
	refreshOnce sync.Once // Ensures only one refresh per stale period
}

type popularQuery struct {
	request  domain.SearchRequest
	hits     int
	lastSeen time.Time
	lastWarm time.Time
}

type warmSpec struct {
	key     string
	request domain.SearchRequest
}

func defaultSearchWarmerConfig() searchWarmerConfig {
	return searchWarmerConfig{
		cacheTTL:          defaultCacheTTL,
		staleTTL:          defaultStaleTTL,
		warmInterval:      defaultWarmInterval,
		warmTopQueries:    defaultWarmTopQueries,
		cacheMaxEntries:   defaultCacheMaxEntries,
		popularMaxEntries: defaultPopularMaxEntries,
	}
}

func (s *Service) runWarmer(ctx context.Context) {
	ticker := time.NewTicker(s.warmerCfg.warmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runWarmCycle(ctx)
		}
	}
}

func (s *Service) runWarmCycle(ctx context.Context) {
	now := time.Now()
	specs := s.collectWarmSpecs(now)
	if len(specs) == 0 {
		return
	}

	// Refresh popular queries with bounded concurrency so the warmer never
	// floods the catalogs it is trying to stay friendly with.
	sem := semaphore.NewWeighted(maxConcurrentWarmRefreshes)
	var wg sync.WaitGroup

	for _, spec := range specs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
		}

		wg.Add(1)
		go func(spec warmSpec) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				s.cacheClearRefreshing(spec.key)
				return
			}
			defer sem.Release(1)

			refreshCtx, cancel := context.WithTimeout(ctx, s.timeout+2*time.Second)
			defer cancel()

			resp, err := s.searchNoCache(refreshCtx, spec.request)
			if err != nil {
				s.cacheClearRefreshing(spec.key)
				return
			}
			s.cacheStore(spec.key, resp, time.Now())
		}(spec)
	}

	wg.Wait()
}

func (s *Service) collectWarmSpecs(now time.Time) []warmSpec {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if len(s.popular) == 0 {
		return nil
	}

	keys := make([]string, 0, len(s.popular))
	for key := range s.popular {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		left := s.popular[keys[i]]
		right := s.popular[keys[j]]
		if left.hits != right.hits {
			return left.hits > right.hits
		}
		return left.lastSeen.After(right.lastSeen)
	})

	limit := s.warmerCfg.warmTopQueries
	if limit <= 0 {
		limit = defaultWarmTopQueries
	}
	if len(keys) < limit {
		limit = len(keys)
	}

	specs := make([]warmSpec, 0, limit)
	for _, key := range keys[:limit] {
		pop := s.popular[key]
		if pop == nil {
			continue
		}
		if !pop.lastWarm.IsZero() && now.Sub(pop.lastWarm) < s.warmerCfg.warmInterval/2 {
			continue
		}
		if cacheEntry, ok := s.cache[key]; ok && now.Before(cacheEntry.expiresAt) {
			continue
		}
		pop.lastWarm = now
		if cacheEntry := s.cache[key]; cacheEntry != nil {
			cacheEntry.refreshing = true
		}
		specs = append(specs, warmSpec{key: key, request: pop.request})
	}
	return specs
}

func (s *Service) cacheLookup(key string, now time.Time) (domain.SearchResponse, bool, bool) {
	// Try Redis first
	if s.redisCache != nil {
		resp, found, err := s.redisCache.Get(context.Background(), key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			// Keep a local in-memory copy so the warmer can reason about freshness without re-querying Redis.
			s.cacheStoreMemoryOnly(key, resp, now)
			return resp, true, false
		}
	}

	// Fallback to in-memory
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return domain.SearchResponse{}, false, false
	}

	if now.Before(entry.expiresAt) {
		metrics.CacheHitsTotal.Inc()
		return cloneSearchResponse(entry.response), true, false
	}

	if now.Before(entry.staleUntil) {
		metrics.CacheHitsTotal.Inc()
		// Use sync.Once to ensure only one refresh happens per stale period,
		// even when several requests arrive during the stale window.
		needsRefresh := false
		entry.refreshOnce.Do(func() {
			needsRefresh = true
			entry.refreshing = true
		})
		return cloneSearchResponse(entry.response), true, needsRefresh
	}

	metrics.CacheMissesTotal.Inc()
	delete(s.cache, key)
	delete(s.popular, key)
	return domain.SearchResponse{}, false, false
}

func (s *Service) cacheStore(key string, response domain.SearchResponse, now time.Time) {
	cacheTTL := s.warmerCfg.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	staleTTL := s.warmerCfg.staleTTL
	if staleTTL <= cacheTTL {
		staleTTL = cacheTTL * 3
	}

	if s.redisCache != nil {
		_ = s.redisCache.Set(context.Background(), key, response, cacheTTL)
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchResponse{
		response:   cloneSearchResponse(response),
		updatedAt:  now,
		expiresAt:  now.Add(cacheTTL),
		staleUntil: now.Add(staleTTL),
		refreshing: false,
	}

	s.trimCacheLocked(now)
}

func (s *Service) cacheStoreMemoryOnly(key string, response domain.SearchResponse, now time.Time) {
	cacheTTL := s.warmerCfg.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	staleTTL := s.warmerCfg.staleTTL
	if staleTTL <= cacheTTL {
		staleTTL = cacheTTL * 3
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchResponse{
		response:   cloneSearchResponse(response),
		updatedAt:  now,
		expiresAt:  now.Add(cacheTTL),
		staleUntil: now.Add(staleTTL),
		refreshing: false,
	}
	s.trimCacheLocked(now)
}

func (s *Service) cacheClearRefreshing(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if entry := s.cache[key]; entry != nil {
		entry.refreshing = false
	}
}

func (s *Service) markPopular(key string, request domain.SearchRequest, now time.Time) {
	// Warm first-page requests only; deeper pages are cheap once page one is warm.
	if request.Page > 1 {
		return
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	pop, ok := s.popular[key]
	if !ok {
		s.popular[key] = &popularQuery{
			request:  request,
			hits:     1,
			lastSeen: now,
		}
	} else {
		pop.hits++
		pop.lastSeen = now
		pop.request = request
	}

	limit := s.warmerCfg.popularMaxEntries
	if limit <= 0 {
		limit = defaultPopularMaxEntries
	}
	if len(s.popular) <= limit {
		return
	}

	// Drop least popular + oldest query.
	type pair struct {
		key   string
		value *popularQuery
	}
	items := make([]pair, 0, len(s.popular))
	for popKey, value := range s.popular {
		items = append(items, pair{key: popKey, value: value})
	}
	sort.Slice(items, func(i, j int) bool {
		left := items[i].value
		right := items[j].value
		if left.hits != right.hits {
			return left.hits < right.hits
		}
		return left.lastSeen.Before(right.lastSeen)
	})
	for i := 0; i < len(items)-limit; i++ {
		delete(s.popular, items[i].key)
	}
}

func (s *Service) trimCacheLocked(now time.Time) {
	maxEntries := s.warmerCfg.cacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}

	for key, entry := range s.cache {
		if now.After(entry.staleUntil) {
			delete(s.cache, key)
		}
	}

	if len(s.cache) <= maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedSearchResponse
	}
	items := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-maxEntries; i++ {
		delete(s.cache, items[i].key)
	}
}

func cloneSearchResponse(response domain.SearchResponse) domain.SearchResponse {
	cloned := response
	if response.Items != nil {
		cloned.Items = make([]domain.Item, len(response.Items))
		for i, item := range response.Items {
			copied := item
			copied.Authors = append([]string(nil), item.Authors...)
			copied.Categories = append([]string(nil), item.Categories...)
			copied.Buckets = append([]domain.Bucket(nil), item.Buckets...)
			cloned.Items[i] = copied
		}
	}
	if response.Debug != nil {
		counters := *response.Debug
		cloned.Debug = &counters
	}
	return cloned
}

func buildSearchCacheKey(request domain.SearchRequest) string {
	includeYA := "0"
	if request.IncludeYA {
		includeYA = "1"
	}
	return strings.Join([]string{
		"m=" + string(request.Mode),
		"q=" + strings.ToLower(strings.TrimSpace(request.Query)),
		"b=" + string(request.Bucket),
		"l=" + strings.ToLower(strings.TrimSpace(request.Language)),
		"p=" + strconv.Itoa(request.Page),
		"ps=" + strconv.Itoa(request.PageSize),
		"ya=" + includeYA,
	}, "|")
}
