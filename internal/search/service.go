package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"kidshelf/discovery/internal/domain"
)

const (
	defaultSearchTimeout = 25 * time.Second
	defaultCallTimeout   = 8 * time.Second
)

// BookCatalog is the upstream book source consumed by the service. The
// concrete client lives in internal/providers/books.
type BookCatalog interface {
	FetchPage(ctx context.Context, query, language string, startIndex, maxResults int) (domain.BookPage, error)
	Configured() bool
}

// VideoCatalog is the upstream video source. KidsSafeIDs reports which of
// the given video IDs are confirmed made for kids.
type VideoCatalog interface {
	SearchPage(ctx context.Context, query, categoryID, pageToken string, maxResults int) (domain.VideoPage, error)
	KidsSafeIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	Configured() bool
}

// Service orchestrates one search request: expansion, sequential upstream
// paging, classification, safety filtering, dedup and pagination. Upstream
// calls run one at a time by design, so a single request never bursts the
// catalog quotas shared by every user of the API keys.
type Service struct {
	books  BookCatalog
	videos VideoCatalog

	booksConfigured  bool
	videosConfigured bool

	timeout     time.Duration
	callTimeout time.Duration
	retryCfg    RetryConfig

	cacheDisabled bool
	redisCache    *RedisCacheBackend
	warmerCfg     searchWarmerConfig
	cacheMu       sync.Mutex
	cache         map[string]*cachedSearchResponse
	popular       map[string]*popularQuery

	healthMu sync.Mutex
	health   map[string]*sourceHealth
}

// Option customizes Service construction.
type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) { s.retryCfg = cfg }
}

func WithRedisCache(client *redis.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.redisCache = NewRedisCacheBackend(client)
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.warmerCfg.cacheTTL = ttl
			if s.warmerCfg.staleTTL <= ttl {
				s.warmerCfg.staleTTL = ttl * 3
			}
		}
	}
}

func WithCacheDisabled(disabled bool) Option {
	return func(s *Service) { s.cacheDisabled = disabled }
}

func New(books BookCatalog, videos VideoCatalog, opts ...Option) *Service {
	s := &Service{
		books:       books,
		videos:      videos,
		timeout:     defaultSearchTimeout,
		callTimeout: defaultCallTimeout,
		retryCfg:    DefaultRetryConfig(),
		warmerCfg:   defaultSearchWarmerConfig(),
		cache:       make(map[string]*cachedSearchResponse),
		popular:     make(map[string]*popularQuery),
		health:      make(map[string]*sourceHealth),
	}
	if books != nil {
		s.booksConfigured = books.Configured()
	}
	if videos != nil {
		s.videosConfigured = videos.Configured()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartBackground launches the cache warmer. It returns immediately; the
// warmer stops when ctx is canceled.
func (s *Service) StartBackground(ctx context.Context) {
	if s.cacheDisabled {
		return
	}
	go s.runWarmer(ctx)
}

// Search serves one catalog request. It never fails because an upstream
// page failed: partial upstream trouble degrades the pool, the request
// itself still returns 200 with whatever was collected.
func (s *Service) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	req = req.Normalize()

	cacheable := !s.cacheDisabled && !req.Debug && !req.NoCache
	key := buildSearchCacheKey(req)

	if cacheable {
		now := time.Now()
		if resp, ok, needsRefresh := s.cacheLookup(key, now); ok {
			s.markPopular(key, req, now)
			if needsRefresh {
				go s.refreshStale(key, req)
			}
			return resp, nil
		}
	}

	resp, err := s.searchNoCache(ctx, req)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	if cacheable {
		now := time.Now()
		s.cacheStore(key, resp, now)
		s.markPopular(key, req, now)
	}
	return resp, nil
}

// refreshStale rebuilds a stale cache entry in the background while the
// caller already got the stale copy.
func (s *Service) refreshStale(key string, req domain.SearchRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout+2*time.Second)
	defer cancel()

	resp, err := s.searchNoCache(ctx, req)
	if err != nil {
		s.cacheClearRefreshing(key)
		return
	}
	s.cacheStore(key, resp, time.Now())
}

func (s *Service) searchNoCache(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	req = req.Normalize()
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var result pools
	var queries []string

	switch req.Mode {
	case domain.ModeVideo:
		result, queries = s.searchVideos(ctx, req)
	default:
		result, queries = s.searchBooks(ctx, req)
	}
	if err := ctx.Err(); err != nil && result.size() == 0 {
		return domain.SearchResponse{}, err
	}

	ranked := result.concat()
	pageItems, hasMore := paginate(ranked, req.Page, req.PageSize, result.exhausted)

	resp := domain.SearchResponse{
		Items:     pageItems,
		Page:      req.Page,
		PageSize:  req.PageSize,
		HasMore:   hasMore,
		ElapsedMS: time.Since(started).Milliseconds(),
	}
	if req.Mode == domain.ModeBook {
		resp.TotalApprox = result.totalApprox
	}
	if req.Debug {
		resp.Debug = &domain.DebugCounters{
			Queries:      queries,
			RawSeen:      result.rawSeen,
			WithThumb:    len(result.withThumb),
			WithoutThumb: len(result.withoutThumb),
			CoverRate:    coverRate(len(result.withThumb), result.size()),
			Exhausted:    result.exhausted,
		}
	}
	return resp, nil
}

func (s *Service) searchBooks(ctx context.Context, req domain.SearchRequest) (pools, []string) {
	if blocked, until, lastErr := s.isSourceBlocked(sourceBooks, time.Now()); blocked {
		slog.Warn("book source temporarily blocked",
			slog.Time("until", until),
			slog.String("lastError", lastErr),
		)
		return pools{exhausted: true}, nil
	}

	expressions := ExpandBooks(req.Query)
	queries := make([]string, 0, len(expressions))
	for _, expression := range expressions {
		queries = append(queries, expression.Query)
	}
	return s.buildBookPools(ctx, req, expressions), queries
}

func (s *Service) searchVideos(ctx context.Context, req domain.SearchRequest) (pools, []string) {
	if blocked, until, lastErr := s.isSourceBlocked(sourceVideos, time.Now()); blocked {
		slog.Warn("video source temporarily blocked",
			slog.Time("until", until),
			slog.String("lastError", lastErr),
		)
		return pools{exhausted: true}, nil
	}

	videoQueries := ExpandVideos(req.Query)
	queries := make([]string, 0, len(videoQueries))
	for _, query := range videoQueries {
		queries = append(queries, query.Query)
	}
	result := s.buildVideoPools(ctx, req, videoQueries)
	s.confirmKidsSafe(ctx, &result)
	return result, queries
}

// confirmKidsSafe keeps only videos whose made-for-kids status is confirmed
// by the batched status lookup. A failed lookup drops everything collected:
// unverified content never reaches a child-facing page.
func (s *Service) confirmKidsSafe(ctx context.Context, result *pools) {
	ids := make([]string, 0, result.size())
	for _, item := range result.withThumb {
		ids = append(ids, item.ID)
	}
	for _, item := range result.withoutThumb {
		ids = append(ids, item.ID)
	}
	if len(ids) == 0 {
		return
	}

	safe, err := s.videos.KidsSafeIDs(ctx, ids)
	if err != nil {
		slog.Warn("kids-safe status lookup failed, dropping unverified videos",
			slog.Int("count", len(ids)),
			slog.String("error", err.Error()),
		)
		result.withThumb = nil
		result.withoutThumb = nil
		return
	}

	result.withThumb = filterConfirmed(result.withThumb, safe)
	result.withoutThumb = filterConfirmed(result.withoutThumb, safe)
}

func filterConfirmed(items []domain.Item, safe map[string]struct{}) []domain.Item {
	kept := items[:0]
	for _, item := range items {
		if _, ok := safe[item.ID]; ok {
			kept = append(kept, item)
		}
	}
	return kept
}

func coverRate(withThumb, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(withThumb) / float64(total)
}
