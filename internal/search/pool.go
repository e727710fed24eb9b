package search

import (
	"context"
	"log/slog"
	"time"

	"kidshelf/discovery/internal/domain"
	"kidshelf/discovery/internal/metrics"
)

const (
	bookPageSize              = 40
	bookMaxPagesPerExpression = 50
	// Hard cap on raw items examined per request, across all expressions.
	// Load-bearing for hasMore correctness: stopping at the cap means the
	// walk was not exhaustive.
	bookMaxRawItems = 4000

	videoPageSize         = 50
	videoMaxPagesPerQuery = 2
)

// pools holds the two priority sequences built during one request. Items
// with cover art are surfaced before uncovered items, a deliberate ranking
// policy: both satisfy the same query, covered results are simply better.
type pools struct {
	withThumb    []domain.Item
	withoutThumb []domain.Item
	rawSeen      int
	exhausted    bool
	totalApprox  int
}

func (p *pools) size() int {
	return len(p.withThumb) + len(p.withoutThumb)
}

func (p *pools) add(item domain.Item) {
	if item.Thumbnail != "" {
		p.withThumb = append(p.withThumb, item)
	} else {
		p.withoutThumb = append(p.withoutThumb, item)
	}
}

// concat returns the final ordering: every covered item precedes every
// uncovered one.
func (p *pools) concat() []domain.Item {
	out := make([]domain.Item, 0, p.size())
	out = append(out, p.withThumb...)
	return append(out, p.withoutThumb...)
}

func bookOverfetchTarget(page, pageSize int) int {
	extra := pageSize * 6
	if extra < 60 {
		extra = 60
	}
	return page*pageSize + extra
}

func videoOverfetchTarget(page, pageSize int) int {
	return page*pageSize + 60
}

// buildBookPools walks the query expressions in priority order, paging
// through the book catalog until the overfetch target is reached or every
// expression is exhausted. The seen set is global across expressions, so
// an item surfaced by an earlier expression never reappears.
func (s *Service) buildBookPools(ctx context.Context, req domain.SearchRequest, expressions []domain.QueryExpression) pools {
	result := pools{exhausted: true}
	target := bookOverfetchTarget(req.Page, req.PageSize)
	seen := make(map[string]struct{})

	for _, expression := range expressions {
		startIndex := 0
		for pageIndex := 0; pageIndex < bookMaxPagesPerExpression; pageIndex++ {
			if ctx.Err() != nil {
				result.exhausted = false
				return result
			}

			page, err := s.fetchBookPage(ctx, expression.Query, req.Language, startIndex)
			if err != nil {
				// Expression exhausted, never fatal: the request returns
				// whatever the other expressions collected.
				slog.Warn("book page fetch failed",
					slog.String("query", expression.Query),
					slog.Int("startIndex", startIndex),
					slog.String("error", err.Error()),
				)
				break
			}
			if page.TotalItems > result.totalApprox {
				result.totalApprox = page.TotalItems
			}

			result.rawSeen += len(page.Items)
			metrics.RawItemsFetched.WithLabelValues(sourceBooks).Add(float64(len(page.Items)))

			for _, record := range page.Items {
				// Records with neither id nor title have no identity and
				// stay out of the pools entirely.
				key := bookDedupeKey(record)
				if key == "" {
					continue
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				buckets := Classify(record.Categories, combinedBookText(record))
				if !BookAcceptable(record) {
					continue
				}
				if !req.IncludeYA && HasBucket(buckets, domain.BucketYoungAdult) {
					continue
				}
				if req.Bucket != "" && !HasBucket(buckets, req.Bucket) {
					continue
				}
				result.add(normalizeBook(record, buckets))
			}

			if result.size() >= target || result.rawSeen >= bookMaxRawItems {
				result.exhausted = false
				return result
			}
			if len(page.Items) < bookPageSize {
				break
			}
			startIndex += bookPageSize
			if pageIndex == bookMaxPagesPerExpression-1 {
				// Page cap hit with a full final page: upstream may hold more.
				result.exhausted = false
			}
		}
	}
	return result
}

func (s *Service) fetchBookPage(ctx context.Context, query, language string, startIndex int) (domain.BookPage, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	startedAt := time.Now()
	var page domain.BookPage
	err := RetryWithBackoff(callCtx, s.retryCfg, func() error {
		var fetchErr error
		page, fetchErr = s.books.FetchPage(callCtx, query, language, startIndex, bookPageSize)
		return fetchErr
	})
	s.recordSourceResult(sourceBooks, query, err, time.Since(startedAt), time.Now())
	return page, err
}

// buildVideoPools pages through each video query (two pages per category)
// applying the pre-pool safety checks. The made-for-kids confirmation runs
// afterwards, in the orchestrator, because it needs a batched lookup.
func (s *Service) buildVideoPools(ctx context.Context, req domain.SearchRequest, queries []domain.VideoQuery) pools {
	result := pools{exhausted: true}
	target := videoOverfetchTarget(req.Page, req.PageSize)
	seen := make(map[string]struct{})

	for _, query := range queries {
		pageToken := ""
		for pageIndex := 0; pageIndex < videoMaxPagesPerQuery; pageIndex++ {
			if ctx.Err() != nil {
				result.exhausted = false
				return result
			}

			page, err := s.fetchVideoPage(ctx, query, pageToken)
			if err != nil {
				slog.Warn("video page fetch failed",
					slog.String("query", query.Query),
					slog.String("categoryId", query.CategoryID),
					slog.String("error", err.Error()),
				)
				break
			}

			result.rawSeen += len(page.Items)
			metrics.RawItemsFetched.WithLabelValues(sourceVideos).Add(float64(len(page.Items)))

			for _, record := range page.Items {
				key := videoDedupeKey(record)
				if key == "" {
					continue
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				if !VideoAcceptable(record, query.Music) {
					continue
				}
				result.add(normalizeVideo(record))
			}

			if result.size() >= target {
				result.exhausted = false
				return result
			}
			pageToken = page.NextPageToken
			if pageToken == "" {
				break
			}
			if pageIndex == videoMaxPagesPerQuery-1 {
				// Token still present after the page cap: more exists upstream.
				result.exhausted = false
			}
		}
	}
	return result
}

func (s *Service) fetchVideoPage(ctx context.Context, query domain.VideoQuery, pageToken string) (domain.VideoPage, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	startedAt := time.Now()
	var page domain.VideoPage
	err := RetryWithBackoff(callCtx, s.retryCfg, func() error {
		var fetchErr error
		page, fetchErr = s.videos.SearchPage(callCtx, query.Query, query.CategoryID, pageToken, videoPageSize)
		return fetchErr
	})
	s.recordSourceResult(sourceVideos, query.Query, err, time.Since(startedAt), time.Now())
	return page, err
}
