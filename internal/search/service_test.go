package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"kidshelf/discovery/internal/domain"
)

type fakeBookCatalog struct {
	pages map[string][]domain.BookRecord
	total int
	calls atomic.Int32
}

func (c *fakeBookCatalog) Configured() bool { return true }

func (c *fakeBookCatalog) FetchPage(ctx context.Context, query, language string, startIndex, maxResults int) (domain.BookPage, error) {
	_ = ctx
	_ = language
	c.calls.Add(1)
	if startIndex > 0 {
		return domain.BookPage{TotalItems: c.total}, nil
	}
	return domain.BookPage{
		Items:      append([]domain.BookRecord(nil), c.pages[query]...),
		TotalItems: c.total,
	}, nil
}

// endlessBookCatalog serves full pages of unique records forever, so tests
// can exercise the overfetch target and hasMore.
type endlessBookCatalog struct {
	next atomic.Int32
}

func (c *endlessBookCatalog) Configured() bool { return true }

func (c *endlessBookCatalog) FetchPage(ctx context.Context, query, language string, startIndex, maxResults int) (domain.BookPage, error) {
	_ = ctx
	_ = query
	_ = language
	_ = startIndex
	items := make([]domain.BookRecord, 0, maxResults)
	for i := 0; i < maxResults; i++ {
		n := c.next.Add(1)
		items = append(items, domain.BookRecord{
			ID:         fmt.Sprintf("vol-%d", n),
			Title:      fmt.Sprintf("Book %d", n),
			Categories: []string{"Juvenile Fiction"},
			Thumbnail:  fmt.Sprintf("https://img.test/%d.jpg", n),
		})
	}
	return domain.BookPage{Items: items, TotalItems: 100000}, nil
}

type failingBookCatalog struct {
	calls atomic.Int32
}

func (c *failingBookCatalog) Configured() bool { return true }

func (c *failingBookCatalog) FetchPage(ctx context.Context, query, language string, startIndex, maxResults int) (domain.BookPage, error) {
	c.calls.Add(1)
	return domain.BookPage{}, errors.New("upstream broken")
}

// mixedBookCatalog fails the listed queries and serves the rest, so tests
// can cover one expression breaking while others still contribute.
type mixedBookCatalog struct {
	fail  map[string]bool
	pages map[string][]domain.BookRecord
}

func (c *mixedBookCatalog) Configured() bool { return true }

func (c *mixedBookCatalog) FetchPage(ctx context.Context, query, language string, startIndex, maxResults int) (domain.BookPage, error) {
	_ = ctx
	_ = language
	if c.fail[query] {
		return domain.BookPage{}, fmt.Errorf("%w: HTTP 500: backend error", domain.ErrUpstream)
	}
	if startIndex > 0 {
		return domain.BookPage{}, nil
	}
	return domain.BookPage{Items: append([]domain.BookRecord(nil), c.pages[query]...)}, nil
}

type fakeVideoCatalog struct {
	pages     map[string][]domain.VideoRecord
	safe      map[string]struct{}
	statusErr error
}

func (c *fakeVideoCatalog) Configured() bool { return true }

func (c *fakeVideoCatalog) SearchPage(ctx context.Context, query, categoryID, pageToken string, maxResults int) (domain.VideoPage, error) {
	_ = ctx
	_ = categoryID
	_ = maxResults
	if pageToken != "" {
		return domain.VideoPage{}, nil
	}
	return domain.VideoPage{Items: append([]domain.VideoRecord(nil), c.pages[query]...)}, nil
}

func (c *fakeVideoCatalog) KidsSafeIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	_ = ctx
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	confirmed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := c.safe[id]; ok {
			confirmed[id] = struct{}{}
		}
	}
	return confirmed, nil
}

func newTestService(books BookCatalog, videos VideoCatalog) *Service {
	return New(books, videos,
		WithCacheDisabled(true),
		WithRetryConfig(RetryConfig{MaxAttempts: 1}),
		WithCallTimeout(time.Second),
	)
}

// ---------------------------------------------------------------------------
// Book search
// ---------------------------------------------------------------------------

func TestSearchBooksDedupeAndCoverOrdering(t *testing.T) {
	withCover := domain.BookRecord{
		ID:         "b1",
		Title:      "Dinosaur Facts",
		Categories: []string{"Juvenile Nonfiction"},
		Thumbnail:  "https://img.test/b1.jpg",
	}
	withoutCover := domain.BookRecord{
		ID:         "b2",
		Title:      "Dinosaur Tales",
		Categories: []string{"Juvenile Fiction"},
	}
	catalog := &fakeBookCatalog{
		pages: map[string][]domain.BookRecord{
			"dinosaurs subject:juvenile": {withCover, withoutCover},
			// Same volume surfaced by a later expression must not reappear.
			"dinosaur subject:juvenile": {withCover},
		},
		total: 2,
	}

	service := newTestService(catalog, &fakeVideoCatalog{})
	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:  domain.ModeBook,
		Query: "dinosaurs",
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 2 {
		t.Fatalf("expected 2 items after dedupe, got %d", len(response.Items))
	}
	if response.Items[0].ID != "b1" {
		t.Fatalf("expected covered item first, got %q", response.Items[0].ID)
	}
	if response.HasMore {
		t.Fatal("expected hasMore=false when every expression is exhausted")
	}
	if response.TotalApprox != 2 {
		t.Fatalf("expected totalApprox=2, got %d", response.TotalApprox)
	}
}

func TestSearchBooksHasMoreWhenStoppedEarly(t *testing.T) {
	service := newTestService(&endlessBookCatalog{}, &fakeVideoCatalog{})
	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:     domain.ModeBook,
		Query:    "dinosaurs",
		Page:     1,
		PageSize: 12,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 12 {
		t.Fatalf("expected a full page of 12, got %d", len(response.Items))
	}
	if !response.HasMore {
		t.Fatal("expected hasMore=true when the walk stopped at the overfetch target")
	}
}

func TestSearchBooksSecondPageWindow(t *testing.T) {
	service := newTestService(&endlessBookCatalog{}, &fakeVideoCatalog{})
	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:     domain.ModeBook,
		Query:    "dinosaurs",
		Page:     2,
		PageSize: 12,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 12 {
		t.Fatalf("expected 12 items on page 2, got %d", len(response.Items))
	}
	if response.Page != 2 {
		t.Fatalf("expected page=2, got %d", response.Page)
	}
}

func TestSearchBooksExcludesYoungAdultByDefault(t *testing.T) {
	catalog := &fakeBookCatalog{
		pages: map[string][]domain.BookRecord{
			"vampires subject:juvenile": {
				{ID: "ya1", Title: "Teen Vampires", Categories: []string{"Young Adult Fiction"}},
				{ID: "jf1", Title: "Friendly Monsters", Categories: []string{"Juvenile Fiction"}},
			},
		},
		total: 2,
	}
	service := newTestService(catalog, &fakeVideoCatalog{})

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:  domain.ModeBook,
		Query: "vampires",
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	for _, item := range response.Items {
		if item.ID == "ya1" {
			t.Fatal("young adult item leaked into default results")
		}
	}

	included, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:      domain.ModeBook,
		Query:     "vampires",
		IncludeYA: true,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	found := false
	for _, item := range included.Items {
		if item.ID == "ya1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected young adult item with includeYA=true")
	}
}

func TestSearchBooksBucketFilter(t *testing.T) {
	catalog := &fakeBookCatalog{
		pages: map[string][]domain.BookRecord{
			"space subject:juvenile": {
				{ID: "nf1", Title: "Space Facts", Categories: []string{"Juvenile Nonfiction"}},
				{ID: "f1", Title: "Space Pirates", Categories: []string{"Juvenile Fiction"}},
			},
		},
		total: 2,
	}
	service := newTestService(catalog, &fakeVideoCatalog{})

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:   domain.ModeBook,
		Query:  "space",
		Bucket: domain.BucketJuvenileNonfiction,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].ID != "nf1" {
		t.Fatalf("expected only the nonfiction item, got %+v", response.Items)
	}
}

func TestSearchBooksMatureFilteredOut(t *testing.T) {
	catalog := &fakeBookCatalog{
		pages: map[string][]domain.BookRecord{
			"stories subject:juvenile": {
				{ID: "m1", Title: "Grown Up Stories", MaturityRating: "MATURE", Categories: []string{"Juvenile Fiction"}},
				{ID: "ok1", Title: "Campfire Stories", MaturityRating: "NOT_MATURE", Categories: []string{"Juvenile Fiction"}},
			},
		},
		total: 2,
	}
	service := newTestService(catalog, &fakeVideoCatalog{})

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:  domain.ModeBook,
		Query: "stories",
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	for _, item := range response.Items {
		if item.ID == "m1" {
			t.Fatal("mature item leaked into results")
		}
	}
}

func TestSearchBooksUpstreamFailureReturnsEmptyPage(t *testing.T) {
	catalog := &failingBookCatalog{}
	service := newTestService(catalog, &fakeVideoCatalog{})

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:  domain.ModeBook,
		Query: "dinosaurs",
	})
	if err != nil {
		t.Fatalf("upstream failure must not fail the request: %v", err)
	}
	if len(response.Items) != 0 {
		t.Fatalf("expected empty items, got %d", len(response.Items))
	}
	if response.HasMore {
		t.Fatal("expected hasMore=false when the source is down")
	}
	if catalog.calls.Load() == 0 {
		t.Fatal("expected at least one upstream attempt")
	}
}

func TestSearchBooksPartialUpstreamFailureStillReturnsResults(t *testing.T) {
	catalog := &mixedBookCatalog{
		// First expression answers HTTP 500; the variant expression works.
		fail: map[string]bool{"dinosaurs subject:juvenile": true},
		pages: map[string][]domain.BookRecord{
			"dinosaur subject:juvenile": {
				{ID: "b1", Title: "Dinosaur Facts", Categories: []string{"Juvenile Nonfiction"}, Thumbnail: "https://img.test/b1.jpg"},
			},
		},
	}
	service := newTestService(catalog, &fakeVideoCatalog{})

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:  domain.ModeBook,
		Query: "dinosaurs",
	})
	if err != nil {
		t.Fatalf("one failing expression must not fail the request: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].ID != "b1" {
		t.Fatalf("expected the surviving expression's result, got %+v", response.Items)
	}
	if response.HasMore {
		t.Fatal("surviving expressions were walked to the end, expected hasMore=false")
	}
}

func TestSearchBooksSkipsRecordsWithoutIdentity(t *testing.T) {
	catalog := &fakeBookCatalog{
		pages: map[string][]domain.BookRecord{
			"dinosaurs subject:juvenile": {
				{Categories: []string{"Juvenile Fiction"}, Thumbnail: "https://img.test/x.jpg"},
				{ID: "b1", Title: "Dinosaur Facts", Categories: []string{"Juvenile Nonfiction"}},
			},
		},
		total: 2,
	}
	service := newTestService(catalog, &fakeVideoCatalog{})

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:  domain.ModeBook,
		Query: "dinosaurs",
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].ID != "b1" {
		t.Fatalf("records with neither id nor title must stay out of the pools, got %+v", response.Items)
	}
}

func TestSearchBooksDebugCounters(t *testing.T) {
	catalog := &fakeBookCatalog{
		pages: map[string][]domain.BookRecord{
			"dinosaurs subject:juvenile": {
				{ID: "b1", Title: "Dinosaur Facts", Categories: []string{"Juvenile Nonfiction"}, Thumbnail: "https://img.test/b1.jpg"},
				{ID: "b2", Title: "Dinosaur Tales", Categories: []string{"Juvenile Fiction"}},
			},
		},
		total: 2,
	}
	service := newTestService(catalog, &fakeVideoCatalog{})

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:  domain.ModeBook,
		Query: "dinosaurs",
		Debug: true,
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if response.Debug == nil {
		t.Fatal("expected debug counters")
	}
	if len(response.Debug.Queries) == 0 {
		t.Fatal("expected expanded queries in debug output")
	}
	if response.Debug.RawSeen != 2 {
		t.Fatalf("expected rawSeen=2, got %d", response.Debug.RawSeen)
	}
	if response.Debug.WithThumb != 1 || response.Debug.WithoutThumb != 1 {
		t.Fatalf("unexpected pool counters: %+v", response.Debug)
	}
	if response.Debug.CoverRate != 0.5 {
		t.Fatalf("expected coverRate=0.5, got %v", response.Debug.CoverRate)
	}
	if !response.Debug.Exhausted {
		t.Fatal("expected exhausted=true")
	}
}

// ---------------------------------------------------------------------------
// Video search
// ---------------------------------------------------------------------------

func TestSearchVideosKeepsOnlyConfirmedKidsSafe(t *testing.T) {
	catalog := &fakeVideoCatalog{
		pages: map[string][]domain.VideoRecord{
			"dinosaurs for kids": {
				{ID: "v1", Title: "Dinosaur Songs", Thumbnail: "https://img.test/v1.jpg"},
				{ID: "v2", Title: "Dinosaur Stories"},
			},
		},
		safe: map[string]struct{}{"v1": {}},
	}
	service := newTestService(&fakeBookCatalog{}, catalog)

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:  domain.ModeVideo,
		Query: "dinosaurs",
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].ID != "v1" {
		t.Fatalf("expected only the confirmed video, got %+v", response.Items)
	}
	if response.TotalApprox != 0 {
		t.Fatalf("totalApprox must stay empty for videos, got %d", response.TotalApprox)
	}
}

func TestSearchVideosStatusLookupFailureDropsAll(t *testing.T) {
	catalog := &fakeVideoCatalog{
		pages: map[string][]domain.VideoRecord{
			"dinosaurs for kids": {
				{ID: "v1", Title: "Dinosaur Songs"},
			},
		},
		statusErr: errors.New("quota exceeded"),
	}
	service := newTestService(&fakeBookCatalog{}, catalog)

	response, err := service.Search(context.Background(), domain.SearchRequest{
		Mode:  domain.ModeVideo,
		Query: "dinosaurs",
	})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 0 {
		t.Fatalf("unverified videos must be dropped, got %d items", len(response.Items))
	}
}

func TestSearchVideosEmptyQueryUsesBrowseCategories(t *testing.T) {
	catalog := &fakeVideoCatalog{
		pages: map[string][]domain.VideoRecord{
			"bedtime stories for kids":  {{ID: "v1", Title: "Bedtime Story"}},
			"nursery rhymes kids songs": {{ID: "v2", Title: "Nursery Rhymes Collection"}},
			"learning videos for kids":  {{ID: "v3", Title: "Counting to Ten"}},
		},
		safe: map[string]struct{}{"v1": {}, "v2": {}, "v3": {}},
	}
	service := newTestService(&fakeBookCatalog{}, catalog)

	response, err := service.Search(context.Background(), domain.SearchRequest{Mode: domain.ModeVideo})
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(response.Items) != 3 {
		t.Fatalf("expected one item per browse category, got %d", len(response.Items))
	}
}

// ---------------------------------------------------------------------------
// Caching
// ---------------------------------------------------------------------------

func TestSearchCachesResponses(t *testing.T) {
	catalog := &fakeBookCatalog{
		pages: map[string][]domain.BookRecord{
			"dinosaurs subject:juvenile": {
				{ID: "b1", Title: "Dinosaur Facts", Categories: []string{"Juvenile Nonfiction"}},
			},
		},
		total: 1,
	}
	service := New(catalog, &fakeVideoCatalog{},
		WithRetryConfig(RetryConfig{MaxAttempts: 1}),
		WithCallTimeout(time.Second),
	)

	request := domain.SearchRequest{Mode: domain.ModeBook, Query: "dinosaurs"}
	if _, err := service.Search(context.Background(), request); err != nil {
		t.Fatalf("first search error: %v", err)
	}
	callsAfterFirst := catalog.calls.Load()
	if callsAfterFirst == 0 {
		t.Fatal("expected upstream calls on a cold cache")
	}

	if _, err := service.Search(context.Background(), request); err != nil {
		t.Fatalf("second search error: %v", err)
	}
	if catalog.calls.Load() != callsAfterFirst {
		t.Fatal("expected the second identical request to be served from cache")
	}

	request.NoCache = true
	if _, err := service.Search(context.Background(), request); err != nil {
		t.Fatalf("nocache search error: %v", err)
	}
	if catalog.calls.Load() == callsAfterFirst {
		t.Fatal("expected nocache=true to bypass the cache")
	}
}

func TestWarmCycleRefreshesExpiredEntry(t *testing.T) {
	catalog := &fakeBookCatalog{
		pages: map[string][]domain.BookRecord{
			"dinosaurs subject:juvenile": {
				{ID: "b1", Title: "Dinosaur Facts", Categories: []string{"Juvenile Nonfiction"}},
			},
		},
		total: 1,
	}
	service := New(catalog, &fakeVideoCatalog{},
		WithRetryConfig(RetryConfig{MaxAttempts: 1}),
		WithCallTimeout(time.Second),
	)

	request := domain.SearchRequest{Mode: domain.ModeBook, Query: "dinosaurs"}
	if _, err := service.Search(context.Background(), request); err != nil {
		t.Fatalf("seed search error: %v", err)
	}
	key := buildSearchCacheKey(request.Normalize())

	// Age the entry past its TTL so the warm cycle picks it up.
	service.cacheMu.Lock()
	entry := service.cache[key]
	if entry == nil {
		service.cacheMu.Unlock()
		t.Fatal("expected a cached entry after the seed search")
	}
	entry.expiresAt = time.Now().Add(-time.Minute)
	service.cacheMu.Unlock()

	service.runWarmCycle(context.Background())

	service.cacheMu.Lock()
	defer service.cacheMu.Unlock()
	refreshed := service.cache[key]
	if refreshed == nil {
		t.Fatal("warm cycle dropped the cache entry")
	}
	if !time.Now().Before(refreshed.expiresAt) {
		t.Fatal("warm cycle fetched a fresh response but never stored it")
	}
	if refreshed.refreshing {
		t.Fatal("refreshing flag must clear after a successful warm refresh")
	}
}
